package api

import (
	_ "agentstack/api/docs"
	"agentstack/internal/metrics"
	"agentstack/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SetupRouter 创建 gin 引擎并挂载中间件、系统接口与业务路由
func SetupRouter(c *AppContainer, h *Handlers) *gin.Engine {
	if mode := c.Config.Server.Mode; mode != "" {
		gin.SetMode(mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(RequestLogger(c.Logger))
	router.Use(CORS())
	router.Use(metrics.PrometheusMiddleware())

	router.GET("/health", HealthCheck(c.DB, c.Redis))
	router.GET("/ready", ReadinessCheck(c.DB))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	var apiMiddlewares []gin.HandlerFunc
	if rl := c.Config.Server.RateLimit; rl.Enabled {
		if c.limiter == nil {
			c.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
				RequestsPerSecond: rl.RequestsPerSecond,
				BurstSize:         rl.Burst,
			})
		}
		apiMiddlewares = append(apiMiddlewares, middleware.RateLimitMiddleware(c.limiter))
	}

	RegisterRoutes(router, h, apiMiddlewares...)
	return router
}
