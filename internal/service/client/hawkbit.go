/**
 * hawkBit通信服务
 * @author: sun977
 * @date: 2026.07.26
 * @description: 处理Agent与hawkBit服务端的通信，包括轮询、identify和部署分发
 */
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"neoupdate/internal/config"
	model "neoupdate/internal/model/client"
	httpclient "neoupdate/internal/pkg/client"
	"neoupdate/internal/pkg/jsonpath"
	"neoupdate/internal/pkg/logger"
	"neoupdate/internal/pkg/monitor"
	"neoupdate/internal/service/deploy"
)

// HawkbitService hawkBit通信服务接口
type HawkbitService interface {
	// Run 启动轮询主循环，直到ctx取消
	Run(ctx context.Context) error

	// PollOnce 执行单次轮询周期（one-shot模式）
	PollOnce(ctx context.Context) error

	// Interval 当前轮询间隔
	Interval() time.Duration

	// LastPoll 最近一次轮询时间
	LastPoll() time.Time
}

// hawkbitService hawkBit通信服务实现
type hawkbitService struct {
	cfg    *config.Config
	rest   *httpclient.RestClient
	deploy *deploy.Service

	mu       sync.RWMutex
	interval time.Duration
	lastPoll time.Time
}

// NewHawkbitService 创建hawkBit通信服务实例
func NewHawkbitService(cfg *config.Config, rest *httpclient.RestClient, deploySvc *deploy.Service) HawkbitService {
	return &hawkbitService{
		cfg:      cfg,
		rest:     rest,
		deploy:   deploySvc,
		interval: cfg.Hawkbit.RetryWait,
	}
}

// Interval 当前轮询间隔
func (s *hawkbitService) Interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

// LastPoll 最近一次轮询时间
func (s *hawkbitService) LastPoll() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPoll
}

func (s *hawkbitService) setInterval(d time.Duration) {
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

// Run 轮询主循环
// 每秒tick一次累计计数，到达间隔后执行一次轮询周期
// 安装完成事件也在这个循环里消费，安装完成后的动作ID清空在主循环执行
// (下载/校验失败时由下载worker自行清空)
func (s *hawkbitService) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// 启动后第一次tick立即轮询
	lastRun := s.Interval()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case outcome := <-s.deploy.Completions():
			s.deploy.HandleInstallComplete(outcome)
		case <-ticker.C:
			lastRun += time.Second
			if lastRun < s.Interval() {
				continue
			}
			lastRun = 0
			// 轮询失败不会终止常驻模式，周期内部已经记录并重置间隔
			_ = s.PollOnce(ctx)
		}
	}
}

// PollOnce 执行单次轮询周期
// one-shot模式下返回的错误决定进程退出码
func (s *hawkbitService) PollOnce(ctx context.Context) error {
	baseURL := httpclient.BuildAPIURL(s.cfg.Hawkbit, "")

	logger.Info("Checking for new software...")
	s.mu.Lock()
	s.lastPoll = time.Now()
	s.mu.Unlock()

	root, err := s.rest.Request(ctx, httpclient.MethodGet, baseURL, nil, true)
	if err != nil {
		if model.IsHTTPStatus(err, http.StatusUnauthorized) {
			if s.cfg.Hawkbit.AuthToken != "" {
				logger.Warn("Failed to authenticate. Check if auth_token is correct?")
			}
			if s.cfg.Hawkbit.GatewayToken != "" {
				logger.Warn("Failed to authenticate. Check if gateway_token is correct?")
			}
		} else {
			logger.Warnf("Scheduled check for new software failed: %v", err)
		}
		s.setInterval(s.cfg.Hawkbit.RetryWait)
		return err
	}

	// 服务端建议的轮询间隔，缺失时回退到retry_wait
	s.setInterval(s.sleepInterval(root))

	if jsonpath.Contains(root, "$._links.configData") {
		// 服务端要求设备自报属性
		if err := s.identify(ctx); err != nil {
			logger.Warnf("Identify failed: %v", err)
		}
	}

	if jsonpath.Contains(root, "$._links.deploymentBase") {
		// 服务端有新的部署下发
		if err := s.deploy.ProcessDeployment(ctx, root); err != nil {
			if errors.Is(err, model.ErrAlreadyInProgress) {
				logger.Debug(err.Error())
			} else {
				logger.Warn(err.Error())
			}
		}
	} else {
		logger.Info("No new software.")
	}

	if jsonpath.Contains(root, "$._links.cancelAction") {
		// 取消动作只识别不执行
		logger.Warn("cancel action not supported")
	}

	return nil
}

// sleepInterval 从轮询响应里取服务端建议的间隔
func (s *hawkbitService) sleepInterval(root map[string]interface{}) time.Duration {
	sleep, err := jsonpath.GetString(root, "$.config.polling.sleep")
	if err != nil {
		return s.cfg.Hawkbit.RetryWait
	}
	d, err := ParseSleep(sleep)
	if err != nil {
		logger.Warnf("Invalid polling sleep %q: %v", sleep, err)
		return s.cfg.Hawkbit.RetryWait
	}
	return d
}

// identify 向服务端上报设备属性（PUT configData）
func (s *hawkbitService) identify(ctx context.Context) error {
	logger.Debug("Identifying ourself to hawkbit server")

	url := httpclient.BuildAPIURL(s.cfg.Hawkbit, "configData")
	fb := model.NewIdentifyFeedback(s.deviceData())
	_, err := s.rest.Request(ctx, httpclient.MethodPut, url, fb, false)
	return err
}

// deviceData 组装identify上报的设备属性
func (s *hawkbitService) deviceData() map[string]string {
	data := make(map[string]string, len(s.cfg.Hawkbit.Device)+5)
	for k, v := range s.cfg.Hawkbit.Device {
		data[k] = v
	}

	if s.cfg.Hawkbit.SendHostInfo {
		info, err := monitor.GetHostInfo()
		if err != nil {
			logger.Warnf("Failed to collect host info: %v", err)
		}
		if info != nil {
			data["hostname"] = info.Hostname
			data["os"] = info.OS
			data["arch"] = info.Arch
			data["kernel"] = info.KernelVersion
		}
	}

	return data
}

// ParseSleep 解析服务端下发的HH:MM:SS间隔
func ParseSleep(value string) (time.Duration, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(value, "%d:%d:%d", &h, &m, &sec); err != nil {
		return 0, fmt.Errorf("invalid sleep format %q: %w", value, err)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}
