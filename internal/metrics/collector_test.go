package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveTask(t *testing.T) {
	before := testutil.ToFloat64(TasksTotal.WithLabelValues("test_task", "failed"))

	err := ObserveTask("test_task", func() error { return errors.New("boom") })

	assert.EqualError(t, err, "boom")
	assert.Equal(t, before+1, testutil.ToFloat64(TasksTotal.WithLabelValues("test_task", "failed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(TasksRunning.WithLabelValues("test_task")))
}

func TestObserveSearch(t *testing.T) {
	ok := testutil.ToFloat64(SearchesTotal.WithLabelValues("success"))
	failed := testutil.ToFloat64(SearchesTotal.WithLabelValues("failed"))

	ObserveSearch(time.Now(), 3, nil)
	ObserveSearch(time.Now(), 0, errors.New("db down"))

	assert.Equal(t, ok+1, testutil.ToFloat64(SearchesTotal.WithLabelValues("success")))
	assert.Equal(t, failed+1, testutil.ToFloat64(SearchesTotal.WithLabelValues("failed")))
}

func TestSystemCollector_CollectOnceWithoutDB(t *testing.T) {
	c := NewSystemCollector(nil, 0)
	assert.Equal(t, 15*time.Second, c.interval)

	c.CollectOnce()
	assert.Greater(t, testutil.ToFloat64(Goroutines), float64(0))
}
