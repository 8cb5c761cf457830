/**
 * Agent端路由注册
 * @author: sun977
 * @date: 2026.07.28
 * @description: 本地管理接口的路由注册，统一管理所有路由
 */
package router

import (
	"github.com/gin-gonic/gin"

	"neoupdate/internal/app/agent/middleware"
	"neoupdate/internal/config"
	"neoupdate/internal/handler/monitor"
)

// Router Agent路由器
type Router struct {
	engine *gin.Engine
}

// NewRouter 创建新的路由器
func NewRouter(cfg *config.ServerConfig, monitorHandler monitor.AgentMonitorHandler) *Router {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Logging())

	// 健康检查放在根路径，方便探针直接访问
	engine.GET("/health", monitorHandler.GetHealthStatus)

	api := engine.Group("/api/v1")
	{
		api.GET("/status", monitorHandler.GetAgentStatus)
		api.GET("/metrics", monitorHandler.GetSystemMetrics)
	}

	return &Router{
		engine: engine,
	}
}

// Engine 获取gin引擎
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
