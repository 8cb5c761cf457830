/**
 * HTTP通信客户端
 * @author: sun977
 * @date: 2026.07.22
 * @description: Agent端与hawkBit服务端的HTTP通信客户端，遵循DDI协议v1
 */
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	model "neoupdate/internal/model/client"
	"neoupdate/internal/pkg/logger"
	"neoupdate/internal/pkg/version"
)

// 支持的HTTP方法
const (
	MethodGet    = "GET"
	MethodHead   = "HEAD"
	MethodPut    = "PUT"
	MethodPost   = "POST"
	MethodPatch  = "PATCH"
	MethodDelete = "DELETE"
)

// Options REST客户端配置
type Options struct {
	AuthToken      string        // TargetToken，优先生效
	GatewayToken   string        // GatewayToken
	SSLVerify      bool          // 证书与主机名校验开关(同开同关)
	ConnectTimeout time.Duration // 连接超时
	RequestTimeout time.Duration // 整体请求超时
}

// RestClient hawkBit REST客户端
type RestClient struct {
	client    *http.Client
	opts      *Options
	userAgent string
}

// NewRestClient 创建REST客户端实例
// 进程内只需要一个实例，传输层资源在这里统一初始化
func NewRestClient(opts *Options) *RestClient {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: opts.ConnectTimeout,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			// 一个开关同时控制证书链与主机名校验
			InsecureSkipVerify: !opts.SSLVerify,
		},
	}

	return &RestClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.RequestTimeout,
		},
		opts:      opts,
		userAgent: version.GetUserAgent(),
	}
}

// AuthHeader 返回认证头的值
// TargetToken优先于GatewayToken，两者都未配置时返回false
func (c *RestClient) AuthHeader() (string, bool) {
	if c.opts.AuthToken != "" {
		return "TargetToken " + c.opts.AuthToken, true
	}
	if c.opts.GatewayToken != "" {
		return "GatewayToken " + c.opts.GatewayToken, true
	}
	return "", false
}

// Request 执行一次REST请求
// body非nil时序列化为JSON发送；parseResponse为true时解析响应JSON并返回
// 错误分为三类：传输错误(原样包装)、HTTP错误(*model.HTTPError)、JSON解析错误
func (c *RestClient) Request(ctx context.Context, method, url string, body interface{}, parseResponse bool) (map[string]interface{}, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request data: %w", err)
		}
		logger.Debugf("Request body: %s", jsonData)
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json;charset=UTF-8")
	if body != nil {
		req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	}
	if auth, ok := c.AuthHeader(); ok {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if !parseResponse || len(respBody) == 0 {
		return nil, nil
	}

	var root map[string]interface{}
	if err := json.Unmarshal(respBody, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrJSONResponseParse, err)
	}
	logger.Debugf("Response body: %s", respBody)

	return root, nil
}
