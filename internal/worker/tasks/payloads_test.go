package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("合法的摄取载荷", func(t *testing.T) {
		var p IngestDocumentPayload
		require.NoError(t, Decode([]byte(`{"source_url":"https://x/doc.pdf","metadata":{"owner":"ops"}}`), &p))
		assert.Equal(t, "https://x/doc.pdf", p.SourceURL)
		assert.Equal(t, "ops", p.Metadata["owner"])
	})

	t.Run("缺少 source_url", func(t *testing.T) {
		var p IngestDocumentPayload
		assert.ErrorIs(t, Decode([]byte(`{}`), &p), ErrInvalidPayload)
	})

	t.Run("非 JSON", func(t *testing.T) {
		var p IngestDocumentPayload
		assert.ErrorIs(t, Decode([]byte("not-json"), &p), ErrInvalidPayload)
	})

	t.Run("批量载荷不能包含空 URL", func(t *testing.T) {
		var p IngestBatchPayload
		assert.ErrorIs(t, Decode([]byte(`{"source_urls":["https://x/a.pdf",""]}`), &p), ErrInvalidPayload)
		assert.ErrorIs(t, Decode([]byte(`{"source_urls":[]}`), &p), ErrInvalidPayload)
		require.NoError(t, Decode([]byte(`{"source_urls":["https://x/a.pdf"]}`), &p))
	})

	t.Run("检索阈值范围", func(t *testing.T) {
		var p SemanticSearchPayload
		assert.ErrorIs(t, Decode([]byte(`{"query":"q","threshold":1.2}`), &p), ErrInvalidPayload)

		p = SemanticSearchPayload{}
		require.NoError(t, Decode([]byte(`{"query":"q","limit":0,"threshold":0}`), &p))
		require.NotNil(t, p.Limit)
		assert.Equal(t, 0, *p.Limit)

		p = SemanticSearchPayload{}
		require.NoError(t, Decode([]byte(`{"query":"q"}`), &p))
		assert.Nil(t, p.Limit)
		assert.Nil(t, p.Threshold)
	})

	t.Run("问答载荷", func(t *testing.T) {
		var p RAGQueryPayload
		assert.ErrorIs(t, Decode([]byte(`{"session_id":"s"}`), &p), ErrInvalidPayload)
		require.NoError(t, Decode([]byte(`{"question":"What is X?","model":"gpt-4o-mini"}`), &p))
		assert.Equal(t, "gpt-4o-mini", p.Model)
	})
}
