/**
 * Agent监控处理器
 * @author: sun977
 * @date: 2026.07.28
 * @description: 本地管理接口的HTTP处理器，只读状态查询
 */
package monitor

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"neoupdate/internal/pkg/monitor"
	"neoupdate/internal/pkg/version"
)

// StatusProvider 状态来源
// 由App注入，避免handler直接依赖服务实现
type StatusProvider interface {
	ActionID() string        // 当前部署动作ID，空闲时为""
	Interval() time.Duration // 当前轮询间隔
	LastPoll() time.Time     // 最近一次轮询时间
}

// AgentMonitorHandler Agent监控处理器接口
type AgentMonitorHandler interface {
	GetHealthStatus(c *gin.Context)  // 健康检查
	GetAgentStatus(c *gin.Context)   // Agent运行状态
	GetSystemMetrics(c *gin.Context) // 系统指标
}

// agentMonitorHandler Agent监控处理器实现
type agentMonitorHandler struct {
	status StatusProvider
}

// NewAgentMonitorHandler 创建Agent监控处理器实例
func NewAgentMonitorHandler(status StatusProvider) AgentMonitorHandler {
	return &agentMonitorHandler{
		status: status,
	}
}

// GetHealthStatus 健康检查
func (h *agentMonitorHandler) GetHealthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   version.GetVersion(),
		"timestamp": time.Now(),
	})
}

// GetAgentStatus Agent运行状态
// 返回当前部署动作与轮询调度信息
func (h *agentMonitorHandler) GetAgentStatus(c *gin.Context) {
	actionID := h.status.ActionID()
	state := "idle"
	if actionID != "" {
		state = "deploying"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"state":         state,
			"action_id":     actionID,
			"poll_interval": h.status.Interval().String(),
			"last_poll":     h.status.LastPoll(),
		},
		"timestamp": time.Now(),
	})
}

// GetSystemMetrics 系统指标
func (h *agentMonitorHandler) GetSystemMetrics(c *gin.Context) {
	metrics, err := monitor.GetSystemMetrics()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"cpu_usage":    metrics.CPUUsage,
			"memory_usage": metrics.MemoryUsage,
			"disk_usage":   metrics.DiskUsage,
		},
		"timestamp": time.Now(),
	})
}
