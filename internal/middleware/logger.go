// Package middleware 提供 HTTP 请求的中间件
package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LoggerMiddleware 创建请求日志中间件
// 为每个请求分配 request_id，并记录方法、路径、状态码和耗时
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// 分配请求 ID，透传给客户端方便排查问题
		requestID := uuid.NewString()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		if raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		logLine := formatLogLine(requestID, statusCode, latency, clientIP, method, path, errorMessage)

		// 根据状态码选择日志级别
		if statusCode >= 500 {
			log.Printf("[ERROR] %s", logLine)
		} else if statusCode >= 400 {
			log.Printf("[WARN] %s", logLine)
		} else {
			log.Printf("[INFO] %s", logLine)
		}
	}
}

// formatLogLine 格式化日志行
func formatLogLine(requestID string, statusCode int, latency time.Duration, clientIP, method, path, errorMessage string) string {
	// 格式化耗时，1s 以内保留微秒精度
	var latencyStr string
	if latency < time.Millisecond {
		latencyStr = latency.String()
	} else if latency < time.Second {
		latencyStr = latency.Truncate(time.Microsecond).String()
	} else {
		latencyStr = latency.Truncate(time.Millisecond).String()
	}

	logLine := requestID[:8] + " | " +
		strconvStatus(statusCode) + " | " +
		padRight(latencyStr, 12) + " | " +
		padRight(clientIP, 15) + " | " +
		padRight(method, 7) + " | " +
		path

	if errorMessage != "" {
		logLine += " | " + errorMessage
	}

	return logLine
}

// strconvStatus 根据状态码返回带类别标记的状态码
func strconvStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "[" + itoa(code) + " OK]"
	case code >= 300 && code < 400:
		return "[" + itoa(code) + " REDIRECT]"
	case code >= 400 && code < 500:
		return "[" + itoa(code) + " CLIENT_ERR]"
	default:
		return "[" + itoa(code) + " SERVER_ERR]"
	}
}

// itoa 将整数转换为字符串（简单实现）
func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	result := ""
	negative := n < 0
	if negative {
		n = -n
	}

	for n > 0 {
		result = string(rune('0'+n%10)) + result
		n /= 10
	}

	if negative {
		result = "-" + result
	}
	return result
}

// padRight 右填充字符串到指定长度
func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	padding := length - len(s)
	for i := 0; i < padding; i++ {
		s += " "
	}
	return s
}

// RecoveryMiddleware 创建 panic 恢复中间件
// 捕获处理器中的 panic，防止程序崩溃
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()

		c.Next()
	}
}
