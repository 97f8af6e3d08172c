package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"
)

// SystemCollector 定期采集连接池与运行时指标
type SystemCollector struct {
	db       *sql.DB
	interval time.Duration
}

// NewSystemCollector 创建系统指标收集器，db 可为空
func NewSystemCollector(db *sql.DB, interval time.Duration) *SystemCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &SystemCollector{db: db, interval: interval}
}

// Run 阻塞采集直到 ctx 结束
func (c *SystemCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.CollectOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CollectOnce()
		}
	}
}

// CollectOnce 采集一次
func (c *SystemCollector) CollectOnce() {
	if c.db != nil {
		stats := c.db.Stats()
		DBConnections.WithLabelValues("open").Set(float64(stats.OpenConnections))
		DBConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
		DBConnections.WithLabelValues("idle").Set(float64(stats.Idle))
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryAlloc.Set(float64(m.Alloc))
	Goroutines.Set(float64(runtime.NumGoroutine()))
}

// ObserveTask 包装一次后台任务执行，记录运行数、耗时与结果
func ObserveTask(taskType string, fn func() error) error {
	TasksRunning.WithLabelValues(taskType).Inc()
	defer TasksRunning.WithLabelValues(taskType).Dec()

	start := time.Now()
	err := fn()
	TaskDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "failed"
	}
	TasksTotal.WithLabelValues(taskType, status).Inc()
	return err
}

// ObserveSearch 记录一次语义检索
func ObserveSearch(start time.Time, resultCount int, err error) {
	SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		SearchesTotal.WithLabelValues("failed").Inc()
		return
	}
	SearchesTotal.WithLabelValues("success").Inc()
	SearchResults.Observe(float64(resultCount))
}
