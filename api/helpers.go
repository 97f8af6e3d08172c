package api

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"agentstack/internal/infra"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// ReadinessResponse 就绪检查响应
type ReadinessResponse struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Database string `json:"database,omitempty"`
}

const healthTimeout = 3 * time.Second

// HealthCheck 健康检查，数据库不可用时返回 503，未配置 Redis 记为 disabled
// @Summary 服务健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func HealthCheck(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		resp := HealthResponse{Status: "healthy", Service: "agentstack", Database: "up", Redis: "disabled"}
		status := http.StatusOK

		if db == nil || infra.HealthCheck(ctx, db) != nil {
			resp.Status = "unhealthy"
			resp.Database = "down"
			status = http.StatusServiceUnavailable
		}
		if rdb != nil {
			resp.Redis = "up"
			if err := infra.HealthCheckRedis(ctx, rdb); err != nil {
				// 缓存降级不影响服务可用
				resp.Redis = "down"
				if status == http.StatusOK {
					resp.Status = "degraded"
				}
			}
		}
		c.JSON(status, resp)
	}
}

// ReadinessCheck 就绪检查
// @Summary 服务就绪检查
// @Tags System
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Router /ready [get]
func ReadinessCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, ReadinessResponse{Status: "not_ready", Reason: "database not configured"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		if err := infra.HealthCheck(ctx, db); err != nil {
			c.JSON(http.StatusServiceUnavailable, ReadinessResponse{Status: "not_ready", Reason: "database ping failed"})
			return
		}
		c.JSON(http.StatusOK, ReadinessResponse{Status: "ready", Database: "connected"})
	}
}

// --- 环境变量辅助函数 ---

// getEnvList 读取逗号分隔的环境变量列表
func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var res []string
	for _, p := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(p); v != "" {
			res = append(res, v)
		}
	}
	return res
}

// stringInSlice 判断字符串是否存在于切片中
func stringInSlice(target string, list []string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

// defaultIfEmpty 返回非空列表或默认值
func defaultIfEmpty(list []string, def []string) []string {
	if len(list) == 0 {
		return def
	}
	return list
}
