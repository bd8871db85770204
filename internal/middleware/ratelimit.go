// Package middleware 提供 HTTP 请求的中间件
package middleware

import (
	"log"

	"github.com/gin-gonic/gin"

	"ai-pc-server/internal/cache"
	"ai-pc-server/pkg/response"
)

// AIRateLimitMiddleware 创建 AI 请求限流中间件
// 按用户限制每分钟的 AI 调用次数，使用 Redis 固定窗口计数
// 必须放在认证中间件之后
// 参数:
//   - redisCache: Redis 缓存实例
//   - limit: 每分钟允许的请求数，0 表示不限流
//
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func AIRateLimitMiddleware(redisCache *cache.RedisCache, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}

		userID := GetUserID(c)
		if userID == 0 {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		count, err := redisCache.IncrAIRequests(c.Request.Context(), userID)
		if err != nil {
			// Redis 故障时放行，限流不应该拖垮主流程
			log.Printf("[WARN] AI 限流计数失败 user=%d: %v", userID, err)
			c.Next()
			return
		}

		if count > int64(limit) {
			response.TooManyRequests(c, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Next()
	}
}
