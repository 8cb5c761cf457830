/**
 * JSON路径访问工具
 * @author: sun977
 * @date: 2026.07.18
 * @description: 在解析后的JSON树上按"$.a.b.c"点路径取值
 * @func: hawkBit DDI响应都是松散JSON，这里提供统一的取值入口
 */
package jsonpath

import (
	"fmt"
	"strings"
)

// ErrNotFound 路径不存在或类型不匹配
type ErrNotFound struct {
	Path string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("json path not found: %s", e.Path)
}

// resolve 按点路径逐层下钻
// 只支持对象键访问，键名允许包含'-'（如download-http）
func resolve(root interface{}, path string) (interface{}, bool) {
	trimmed := strings.TrimPrefix(path, "$")
	trimmed = strings.TrimPrefix(trimmed, ".")
	if trimmed == "" {
		return root, true
	}

	node := root
	for _, key := range strings.Split(trimmed, ".") {
		obj, ok := node.(map[string]interface{})
		if !ok {
			return nil, false
		}
		node, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// Contains 判断路径是否存在
func Contains(root interface{}, path string) bool {
	_, ok := resolve(root, path)
	return ok
}

// GetString 按路径取字符串
func GetString(root interface{}, path string) (string, error) {
	node, ok := resolve(root, path)
	if !ok {
		return "", &ErrNotFound{Path: path}
	}
	s, ok := node.(string)
	if !ok {
		return "", &ErrNotFound{Path: path}
	}
	return s, nil
}

// GetInt64 按路径取整数
// encoding/json默认把数字解析成float64，这里统一转换
func GetInt64(root interface{}, path string) (int64, error) {
	node, ok := resolve(root, path)
	if !ok {
		return 0, &ErrNotFound{Path: path}
	}
	switch v := node.(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	}
	return 0, &ErrNotFound{Path: path}
}

// GetArray 按路径取数组
func GetArray(root interface{}, path string) ([]interface{}, error) {
	node, ok := resolve(root, path)
	if !ok {
		return nil, &ErrNotFound{Path: path}
	}
	arr, ok := node.([]interface{})
	if !ok {
		return nil, &ErrNotFound{Path: path}
	}
	return arr, nil
}
