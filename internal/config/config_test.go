package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 1536, cfg.RAG.Embedding.Dimensions)
	assert.Equal(t, 100, cfg.RAG.Embedding.BatchSize)
	assert.Equal(t, 3, cfg.RAG.Embedding.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.RAG.Embedding.InitialBackoff)
	assert.Equal(t, 10*time.Second, cfg.RAG.Embedding.MaxBackoff)
	assert.Equal(t, 30000, cfg.RAG.Embedding.MaxInputChars)
	assert.Equal(t, 5, cfg.RAG.Search.Limit)
	assert.InDelta(t, 0.7, cfg.RAG.Search.Threshold, 1e-9)
	assert.InDelta(t, 0.6, cfg.RAG.Answer.Threshold, 1e-9)
	assert.Equal(t, "gpt-4o", cfg.RAG.Answer.Model)
	assert.Equal(t, 2000, cfg.RAG.Answer.PassageChars)
	assert.Equal(t, 8000, cfg.RAG.Ingest.SummaryChars)
	assert.Equal(t, 1, cfg.Worker.BatchConcurrency)
	require.NoError(t, cfg.Validate())
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
rag:
  chunk:
    size: 400
    overlap: 40
  embedding:
    initial_backoff: 5ms
`)

	cfg, err := Load("test", path)
	require.NoError(t, err)

	assert.Equal(t, 400, cfg.RAG.Chunk.Size)
	assert.Equal(t, 40, cfg.RAG.Chunk.Overlap)
	assert.Equal(t, 5*time.Millisecond, cfg.RAG.Embedding.InitialBackoff)
	assert.Equal(t, "text-embedding-3-small", cfg.RAG.Embedding.Model)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "database:\n  host: db.local\n")
	t.Setenv("APP_DATABASE_HOST", "db.override")

	cfg, err := Load("test", path)
	require.NoError(t, err)
	assert.Equal(t, "db.override", cfg.Database.Host)
}

func TestValidate(t *testing.T) {
	t.Run("重叠不小于分块大小", func(t *testing.T) {
		cfg := Default()
		cfg.RAG.Chunk.Overlap = cfg.RAG.Chunk.Size
		assert.Error(t, cfg.Validate())
	})

	t.Run("未知向量存储", func(t *testing.T) {
		cfg := Default()
		cfg.RAG.VectorStore.Type = "qdrant"
		assert.Error(t, cfg.Validate())
	})

	t.Run("零次重试", func(t *testing.T) {
		cfg := Default()
		cfg.RAG.Embedding.MaxAttempts = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := &DatabaseConfig{Host: "h", Port: 1, User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=1 user=u password=p dbname=d sslmode=disable", c.GetDSN())
}
