package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterConfig 限流配置
type RateLimiterConfig struct {
	RequestsPerSecond float64       // 每秒补充的令牌数
	BurstSize         int           // 突发容量
	CleanupInterval   time.Duration // 清理间隔
	IdleTTL           time.Duration // 客户端空闲多久后释放
}

// DefaultRateLimiterConfig 默认配置
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 10,
		BurstSize:         20,
		CleanupInterval:   5 * time.Minute,
		IdleTTL:           10 * time.Minute,
	}
}

type clientState struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 按客户端标识维护令牌桶
type RateLimiter struct {
	config  RateLimiterConfig
	clients map[string]*clientState
	mu      sync.Mutex
	stopCh  chan struct{}
	once    sync.Once
	now     func() time.Time
}

// NewRateLimiter 创建限流器并启动清理协程，使用完毕需调用 Stop
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = def.RequestsPerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = def.BurstSize
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = def.IdleTTL
	}

	rl := &RateLimiter{
		config:  config,
		clients: make(map[string]*clientState),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	go rl.cleanup()
	return rl
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	state, ok := rl.clients[key]
	if !ok {
		state = &clientState{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)}
		rl.clients[key] = state
	}
	state.lastSeen = now
	return state.limiter.AllowN(now, 1)
}

// cleanup 定期清理空闲客户端
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, state := range rl.clients {
		if now.Sub(state.lastSeen) > rl.config.IdleTTL {
			delete(rl.clients, key)
		}
	}
}

// Stop 停止限流器
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// ActiveClients 当前跟踪的客户端数量
func (rl *RateLimiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// RateLimitMiddleware 按客户端 IP 限流，超限返回 429
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(max(1, 1/limiter.config.RequestsPerSecond)))
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"code":    "RATE_LIMIT_EXCEEDED",
				"message": "请求过于频繁，请稍后重试",
			})
			return
		}
		c.Next()
	}
}
