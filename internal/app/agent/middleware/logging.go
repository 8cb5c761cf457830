package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"neoupdate/internal/pkg/logger"
)

// Logging 访问日志中间件
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.LogAccessRequest(c, start)
	}
}
