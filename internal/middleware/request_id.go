package middleware

import (
	"agentstack/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID 请求 ID 头，上游传入时沿用
const HeaderRequestID = "X-Request-ID"

// RequestIDMiddleware 为每个请求分配请求 ID，写入响应头并作为 trace_id 注入 context
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set("request_id", requestID)
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), requestID))
		c.Header(HeaderRequestID, requestID)

		c.Next()
	}
}

// GetRequestID 从 Gin 上下文获取请求 ID
func GetRequestID(c *gin.Context) string {
	return c.GetString("request_id")
}
