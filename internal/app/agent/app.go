/**
 * Agent应用程序核心逻辑
 * @author: sun977
 * @date: 2026.07.30
 * @description: Agent应用的核心逻辑，负责初始化各组件并驱动轮询主循环
 * @architecture: 配置/日志/传输层只初始化一次，部署状态集中在deploy服务
 */

package agent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"neoupdate/internal/app/agent/router"
	"neoupdate/internal/config"
	handlerMonitor "neoupdate/internal/handler/monitor"
	httpclient "neoupdate/internal/pkg/client"
	"neoupdate/internal/pkg/logger"
	ddiclient "neoupdate/internal/service/client"
	"neoupdate/internal/service/deploy"
)

// App Agent应用程序结构体
type App struct {
	config         *config.Config
	logger         *logger.LoggerManager
	httpServer     *http.Server
	hawkbitService ddiclient.HawkbitService
	deployService  *deploy.Service
	watcher        *config.ConfigWatcher

	cancelPoll context.CancelFunc
	pollDone   chan struct{}
}

// statusSource 聚合monitor handler需要的状态查询
type statusSource struct {
	hawkbit ddiclient.HawkbitService
	deploy  *deploy.Service
}

func (s *statusSource) ActionID() string        { return s.deploy.ActionID() }
func (s *statusSource) Interval() time.Duration { return s.hawkbit.Interval() }
func (s *statusSource) LastPoll() time.Time     { return s.hawkbit.LastPoll() }

// NewApp 创建新的Agent应用程序实例
func NewApp() (*App, error) {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 初始化日志管理器
	loggerManager, err := logger.InitLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	logger.Info("NeoUpdate-Agent application initializing...")

	if cfg.Hawkbit.AuthToken != "" && cfg.Hawkbit.GatewayToken != "" {
		logger.Warn("Both auth_token and gateway_token configured, auth_token takes precedence")
	}

	// 传输层全局只初始化一次
	rest := httpclient.NewRestClient(&httpclient.Options{
		AuthToken:      cfg.Hawkbit.AuthToken,
		GatewayToken:   cfg.Hawkbit.GatewayToken,
		SSLVerify:      cfg.Hawkbit.SSLVerify,
		ConnectTimeout: cfg.Hawkbit.ConnectTimeout,
		RequestTimeout: cfg.Hawkbit.RequestTimeout,
	})

	// 注册安装器回调
	deployService := deploy.NewService(cfg, rest, newInstallerBridge(cfg.Installer))
	hawkbitService := ddiclient.NewHawkbitService(cfg, rest, deployService)

	app := &App{
		config:         cfg,
		logger:         loggerManager,
		hawkbitService: hawkbitService,
		deployService:  deployService,
	}

	// 本地状态接口
	if cfg.Server != nil && cfg.Server.Enabled {
		status := &statusSource{hawkbit: hawkbitService, deploy: deployService}
		monitorHandler := handlerMonitor.NewAgentMonitorHandler(status)
		r := router.NewRouter(cfg.Server, monitorHandler)
		app.httpServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: r.Engine(),
		}
	}

	return app, nil
}

// GetConfig 获取配置实例
func (a *App) GetConfig() *config.Config {
	return a.config
}

// Start 启动Agent应用程序（常驻模式）
func (a *App) Start() error {
	logger.Info("Starting NeoUpdate-Agent...")

	// 启动本地状态接口
	if a.httpServer != nil {
		go func() {
			if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Failed to start status server: ", err)
			}
		}()
		logger.Infof("Status server listening on %s", a.httpServer.Addr)
	}

	// 配置热加载：只应用日志级别变更
	a.startConfigWatcher()

	// 启动轮询主循环
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelPoll = cancel
	a.pollDone = make(chan struct{})
	go func() {
		defer close(a.pollDone)
		_ = a.hawkbitService.Run(ctx)
	}()

	logger.Info("NeoUpdate-Agent started, polling hawkBit for new software")
	return nil
}

// PollOnce 执行单次轮询周期（one-shot模式）
// 返回错误时进程应以退出码1结束
func (a *App) PollOnce(ctx context.Context) error {
	return a.hawkbitService.PollOnce(ctx)
}

// Stop 停止Agent应用程序
func (a *App) Stop(ctx context.Context) error {
	logger.Info("Stopping NeoUpdate-Agent...")

	// 停止轮询
	if a.cancelPoll != nil {
		a.cancelPoll()
		select {
		case <-a.pollDone:
		case <-ctx.Done():
		}
	}

	// 等待下载worker自然退出
	a.deployService.Shutdown()

	if a.watcher != nil {
		_ = a.watcher.Stop()
	}

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop status server: %w", err)
		}
	}

	logger.Info("NeoUpdate-Agent stopped successfully")
	return nil
}

// startConfigWatcher 启动配置文件监听
func (a *App) startConfigWatcher() {
	watcher, err := config.NewConfigWatcher("./configs/config.yaml")
	if err != nil {
		logger.Warnf("Config watcher disabled: %v", err)
		return
	}

	watcher.OnChange(func(oldConfig, newConfig *config.Config) error {
		if newConfig.Log == nil || oldConfig.Log == nil {
			return nil
		}
		if newConfig.Log.Level != oldConfig.Log.Level {
			return a.logger.SetLevel(newConfig.Log.Level)
		}
		return nil
	})

	if err := watcher.Start(); err != nil {
		logger.Warnf("Config watcher disabled: %v", err)
		return
	}
	a.watcher = watcher
}
