package rag

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func testDocument(name string, vec []float32) *Document {
	return &Document{
		SourceURL:       "https://example.com/" + name,
		SourceType:      "md",
		Filename:        name,
		ContentMarkdown: "# " + name + "\n\n正文内容",
		Embedding:       newEmbeddingVector(vec),
		Metadata:        datatypes.JSONMap{"title": name},
	}
}

func TestMemoryVectorStore_SearchOrdersAndFilters(t *testing.T) {
	store := NewMemoryVectorStore(3)
	ctx := context.Background()

	require.NoError(t, store.InsertDocument(ctx, testDocument("x", []float32{1, 0, 0})))
	require.NoError(t, store.InsertDocument(ctx, testDocument("xy", []float32{1, 1, 0})))
	require.NoError(t, store.InsertDocument(ctx, testDocument("y", []float32{0, 1, 0})))

	results, err := store.SearchKnowledge(ctx, []float32{1, 0, 0}, 0.5, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "x", results[0].Filename)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-9)
	assert.Equal(t, "xy", results[1].Filename)
	assert.InDelta(t, 0.7071, results[1].Similarity, 1e-3)

	results, err = store.SearchKnowledge(ctx, []float32{1, 0, 0}, 0, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = store.SearchKnowledge(ctx, []float32{1, 0, 0}, 0.5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryVectorStore_InsertAssignsFields(t *testing.T) {
	store := NewMemoryVectorStore(3)
	doc := testDocument("a", []float32{1, 2, 3})

	require.NoError(t, store.InsertDocument(context.Background(), doc))
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, len([]rune(doc.ContentMarkdown)), doc.CharCount)
	assert.False(t, doc.CreatedAt.IsZero())

	got, err := store.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Filename, got.Filename)

	_, err = store.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestMemoryVectorStore_RejectsWrongDimensions(t *testing.T) {
	store := NewMemoryVectorStore(3)

	err := store.InsertDocument(context.Background(), testDocument("a", []float32{1, 2}))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = store.SearchKnowledge(context.Background(), []float32{1}, 0.5, 5)
	assert.Equal(t, KindSearch, KindOf(err))
}

func TestMemoryVectorStore_ChatHistory(t *testing.T) {
	store := NewMemoryVectorStore(3)
	base := time.Now()
	for i := 0; i < 12; i++ {
		store.AppendChatMessage(ChatMessage{
			SessionID: "s1",
			Role:      "user",
			Content:   fmt.Sprintf("m%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}

	msgs, err := store.GetChatHistory(context.Background(), "s1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m9", msgs[0].Content)
	assert.Equal(t, "m11", msgs[2].Content)

	msgs, err = store.GetChatHistory(context.Background(), "s1", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 10)
}

func TestPGVectorStore_InsertAndGet(t *testing.T) {
	db := newTestDB(t)
	store := NewPGVectorStore(db, 3)
	ctx := context.Background()

	doc := testDocument("report.pdf", []float32{0.1, 0.2, 0.3})
	require.NoError(t, store.InsertDocument(ctx, doc))

	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", got.Filename)
	assert.Equal(t, doc.CharCount, got.CharCount)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding.Slice())
	assert.Equal(t, "report.pdf", got.Metadata["title"])

	_, err = store.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestPGVectorStore_InsertFailureLeavesNoRow(t *testing.T) {
	db := newTestDB(t)
	store := NewPGVectorStore(db, 3)
	ctx := context.Background()

	doc := testDocument("a", []float32{1, 0, 0})
	require.NoError(t, store.InsertDocument(ctx, doc))

	dup := testDocument("b", []float32{1, 0, 0})
	dup.ID = doc.ID
	err := store.InsertDocument(ctx, dup)
	assert.Equal(t, KindStorage, KindOf(err))

	var count int64
	require.NoError(t, db.Model(&Document{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPGVectorStore_ChatHistoryChronological(t *testing.T) {
	db := newTestDB(t)
	store := NewPGVectorStore(db, 3)
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, db.Create(&ChatMessage{
			SessionID: "s1",
			Role:      "assistant",
			Content:   fmt.Sprintf("m%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}
	require.NoError(t, db.Create(&ChatMessage{SessionID: "s2", Role: "user", Content: "other"}).Error)

	msgs, err := store.GetChatHistory(context.Background(), "s1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m3", msgs[0].Content)
	assert.Equal(t, "m4", msgs[1].Content)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, cosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, cosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, float64(1), cosineDistance([]float32{0, 0}, []float32{1, 0}))
}
