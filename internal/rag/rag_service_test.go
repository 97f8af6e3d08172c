package rag

import (
	"context"
	"encoding/json"
	"testing"

	"agentstack/internal/config"
	"agentstack/internal/rag/parsers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T, source DocumentSource, completion CompletionProvider) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.RAG.Embedding.Dimensions = testDims
	cfg.RAG.VectorStore.Type = "memory"

	svc, err := NewService(cfg, newTestDB(t), nil, Components{
		Source:     source,
		Embeddings: newFakeProvider(testDims),
		Completion: completion,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	svc.Composer.countTokens = func(model, text string) int { return approxTokens(text) }
	return svc
}

func TestService_IngestThenSearchAndAnswer(t *testing.T) {
	const body = "# 部署手册\n\n服务通过 Helm 安装。"
	source := &fakeSource{docs: map[string]*parsers.Document{
		"https://x/deploy.md": {Markdown: body, Filename: "deploy.md", SourceType: "md"},
	}}
	completion := &fakeCompletion{reply: "使用 Helm 安装 (deploy.md)", tokens: 42}
	svc := newTestService(t, source, completion)
	ctx := context.Background()

	ingested, err := svc.Pipeline.Ingest(ctx, "ingest-1", "https://x/deploy.md", nil)
	require.NoError(t, err)

	// 查询文本与摘要一致时相似度为 1
	results, err := svc.Search(ctx, "search-1", body, 5, 0.7)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ingested.DocumentID, results[0].DocumentID)

	job, err := svc.Ledger.Get(ctx, "search-1")
	require.NoError(t, err)
	assert.Equal(t, JobKindSearch, job.TaskName)
	assert.Equal(t, JobStatusSuccess, job.Status)

	answer, err := svc.Answer(ctx, "rag-1", AnswerRequest{Question: body})
	require.NoError(t, err)
	assert.Equal(t, "使用 Helm 安装 (deploy.md)", answer.Answer)
	assert.Equal(t, 42, answer.Tokens)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "deploy.md", answer.Sources[0].Filename)

	job, err = svc.Ledger.Get(ctx, "rag-1")
	require.NoError(t, err)
	assert.Equal(t, JobKindRAGQuery, job.TaskName)
	var stored Answer
	require.NoError(t, json.Unmarshal(job.ResultData, &stored))
	assert.Equal(t, 42, stored.Tokens)
}

func TestService_TracksFailures(t *testing.T) {
	svc := newTestService(t, &fakeSource{}, &fakeCompletion{})
	ctx := context.Background()

	_, err := svc.Search(ctx, "search-bad", "query", 5, 1.5)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	job, err := svc.Ledger.Get(ctx, "search-bad")
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "threshold")
}

func TestService_UntrackedCalls(t *testing.T) {
	svc := newTestService(t, &fakeSource{}, &fakeCompletion{})
	ctx := context.Background()

	answer, err := svc.Answer(ctx, "", AnswerRequest{Question: "What is X?"})
	require.NoError(t, err)
	assert.Equal(t, InsufficientContextAnswer, answer.Answer)

	_, err = svc.Ledger.Get(ctx, "")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestNewService_RequiresDatabaseForPGVector(t *testing.T) {
	cfg := config.Default()
	_, err := NewService(cfg, nil, nil, Components{}, nil)
	require.Error(t, err)
}
