// 自定义日志格式化器
package logger

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// FormatTimestamp 格式化时间戳为统一的毫秒精度格式
// 返回格式："2006-01-02 15:04:05.000"
func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05.000")
}

// NowFormatted 返回当前时间的格式化字符串
func NowFormatted() string {
	return FormatTimestamp(time.Now())
}

// LogType 日志类型枚举
type LogType string

const (
	// AccessLog 访问日志 - 记录本地管理接口的HTTP请求
	AccessLog LogType = "access"
	// SystemLog 系统日志 - 记录系统运行状态
	SystemLog LogType = "system"
	// UpdateLog 更新日志 - 记录部署任务的执行情况（Agent特有）
	UpdateLog LogType = "update"
)

// LogLevel 日志级别类型，封装logrus.Level避免上层直接依赖logrus
type LogLevel int

const (
	// DebugLevel 调试级别
	DebugLevel LogLevel = iota
	// InfoLevel 信息级别
	InfoLevel
	// WarnLevel 警告级别
	WarnLevel
	// ErrorLevel 错误级别
	ErrorLevel
	// FatalLevel 致命错误级别
	FatalLevel
)

// toLogrusLevel 将封装的LogLevel转换为logrus.Level
func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case InfoLevel:
		return logrus.InfoLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case FatalLevel:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// LogAccessRequest 记录HTTP访问日志
// 用于记录本地管理接口的请求信息，包括响应时间、状态码等
func LogAccessRequest(c *gin.Context, startTime time.Time) {
	if LoggerInstance == nil {
		return
	}

	responseTime := time.Since(startTime).Milliseconds()

	LoggerInstance.logger.WithFields(logrus.Fields{
		"type":          AccessLog,
		"method":        c.Request.Method,
		"path":          c.Request.URL.Path,
		"query":         c.Request.URL.RawQuery,
		"status_code":   c.Writer.Status(),
		"response_time": responseTime,
		"client_ip":     c.ClientIP(),
		"user_agent":    c.Request.UserAgent(),
		"response_size": int64(c.Writer.Size()),
	}).Info("HTTP request processed")
}

// LogSystemEvent 记录系统事件日志
// 用于记录系统启动、关闭、组件状态变化等系统级事件
func LogSystemEvent(component, event, message string, level LogLevel, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	logrusLevel := toLogrusLevel(level)

	fields := logrus.Fields{
		"type":      SystemLog,
		"component": component,
		"event":     event,
		"message":   message,
		"level":     logrusLevel.String(),
	}

	for k, v := range extraFields {
		fields[k] = v
	}

	switch logrusLevel {
	case logrus.DebugLevel:
		LoggerInstance.logger.WithFields(fields).Debug(fmt.Sprintf("System event: %s - %s", component, event))
	case logrus.InfoLevel:
		LoggerInstance.logger.WithFields(fields).Info(fmt.Sprintf("System event: %s - %s", component, event))
	case logrus.WarnLevel:
		LoggerInstance.logger.WithFields(fields).Warn(fmt.Sprintf("System event: %s - %s", component, event))
	case logrus.ErrorLevel:
		LoggerInstance.logger.WithFields(fields).Error(fmt.Sprintf("System event: %s - %s", component, event))
	case logrus.FatalLevel:
		LoggerInstance.logger.WithFields(fields).Fatal(fmt.Sprintf("System event: %s - %s", component, event))
	default:
		LoggerInstance.logger.WithFields(fields).Info(fmt.Sprintf("System event: %s - %s", component, event))
	}
}

// LogUpdateOperation 记录更新操作日志（Agent特有）
// 用于记录部署任务从下载到安装完成的各个阶段
func LogUpdateOperation(actionID, stage, status, message string, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := logrus.Fields{
		"type":      UpdateLog,
		"action_id": actionID,
		"stage":     stage,
		"status":    status,
		"message":   message,
	}

	for k, v := range extraFields {
		fields[k] = v
	}

	// 根据状态选择日志级别
	switch status {
	case "failed":
		LoggerInstance.logger.WithFields(fields).Error(fmt.Sprintf("Update %s: %s", stage, message))
	case "running":
		LoggerInstance.logger.WithFields(fields).Debug(fmt.Sprintf("Update %s: %s", stage, message))
	default:
		LoggerInstance.logger.WithFields(fields).Info(fmt.Sprintf("Update %s: %s", stage, message))
	}
}
