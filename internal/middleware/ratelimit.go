package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Matthew0wolf/Apront/internal/repository"
)

// RateLimit 返回一个基于客户端 IP 的速率限制中间件。
// 计数器存放在 Redis（走 ListCacheRepository.CheckRateLimit）。
// Redis 故障时放行：限流是保护措施，不能变成单点故障。
func RateLimit(limiter repository.ListCacheRepository, maxRequests int, window time.Duration) gin.HandlerFunc {
	if limiter == nil {
		panic("ListCacheRepository cannot be nil for RateLimit middleware")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	return func(c *gin.Context) {
		// 反向代理后面时 ClientIP 依赖正确配置的 trusted proxies
		key := "ratelimit:" + c.ClientIP()

		exceeded, err := limiter.CheckRateLimit(c.Request.Context(), key, maxRequests, window)
		if err != nil {
			logrus.WithError(err).Error("RateLimit: counter check failed, allowing request")
			c.Next()
			return
		}
		if exceeded {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}

		c.Next()
	}
}
