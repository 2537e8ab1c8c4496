package knowledge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aihub/chatbot-go/internal/config"
	apperrors "github.com/aihub/chatbot-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder 返回预置向量的测试向量化器
type stubEmbedder struct {
	vectors map[string][]float32
	dims    int
	err     error
	calls   int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	vector, ok := s.vectors[text]
	if !ok {
		return make([]float32, s.dims), nil
	}
	return vector, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vector
	}
	return vectors, nil
}

func (s *stubEmbedder) Dimensions() int { return s.dims }
func (s *stubEmbedder) Ready() bool     { return true }

// stubCache 记录命中情况的测试缓存
type stubCache struct {
	data map[string][]float32
	hits int
	sets int
}

func (c *stubCache) Get(ctx context.Context, text string) ([]float32, bool) {
	vector, ok := c.data[text]
	if ok {
		c.hits++
	}
	return vector, ok
}

func (c *stubCache) Set(ctx context.Context, text string, vector []float32) {
	c.sets++
	c.data[text] = vector
}

func testPolicy() config.RetrievalConfig {
	return config.RetrievalConfig{
		ScoreThreshold:     0.2,
		TopK:               5,
		WorkingMultiplier:  2,
		FallbackMultiplier: 3,
		MaxContextChunks:   8,
	}
}

func newTestRetriever(t *testing.T, embedder Embedder, cache EmbeddingCache, policy config.RetrievalConfig) (*Retriever, *MemoryVectorStore) {
	t.Helper()
	store := NewMemoryVectorStore()
	return NewRetriever(store, embedder, cache, policy, "bot"), store
}

func TestRetriever_RetrieveContextFiltersByThreshold(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{dims: 2, vectors: map[string][]float32{"query": {1, 0}}}
	retriever, store := newTestRetriever(t, embedder, nil, testPolicy())

	require.NoError(t, store.EnsureCollection(ctx, "bot_b1", 2))
	_, err := store.Insert(ctx, "bot_b1", []Record{
		{Vector: []float32{1, 0}, Text: "exact"},
		{Vector: []float32{0.99, 0.01}, Text: "near"},
		{Vector: []float32{0, 1}, Text: "orthogonal"},
	})
	require.NoError(t, err)

	window, err := retriever.RetrieveContext(ctx, "b1", "query")
	require.NoError(t, err)

	// 正交向量低于阈值被过滤
	require.Len(t, window.Chunks, 2)
	assert.Equal(t, "exact", window.Chunks[0].Text)
	assert.Equal(t, "near", window.Chunks[1].Text)
	assert.Equal(t, 3, window.RawMatches)
}

func TestRetriever_ThresholdIsConfigurable(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{dims: 2, vectors: map[string][]float32{"query": {1, 0}}}
	policy := testPolicy()
	policy.ScoreThreshold = 0.5
	retriever, store := newTestRetriever(t, embedder, nil, policy)

	require.NoError(t, store.EnsureCollection(ctx, "bot_b1", 2))
	_, err := store.Insert(ctx, "bot_b1", []Record{
		{Vector: []float32{1, 0}, Text: "exact"},
		{Vector: []float32{0.6, 0.8}, Text: "mid"},
		{Vector: []float32{0.3, 0.954}, Text: "weak"},
	})
	require.NoError(t, err)

	// 提高阈值后weak（约0.3）被过滤，不触发兜底
	window, err := retriever.RetrieveContext(ctx, "b1", "query")
	require.NoError(t, err)
	require.Len(t, window.Chunks, 2)
	assert.Equal(t, "exact", window.Chunks[0].Text)
	assert.Equal(t, "mid", window.Chunks[1].Text)
}

func TestRetriever_RetrieveContextDeduplicates(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{dims: 2, vectors: map[string][]float32{"query": {1, 0}}}
	retriever, store := newTestRetriever(t, embedder, nil, testPolicy())

	require.NoError(t, store.EnsureCollection(ctx, "bot_b1", 2))
	_, err := store.Insert(ctx, "bot_b1", []Record{
		{Vector: []float32{0.9, 0.1}, Text: "repeated"},
		{Vector: []float32{1, 0}, Text: "repeated"},
		{Vector: []float32{0.95, 0.05}, Text: "unique"},
	})
	require.NoError(t, err)

	window, err := retriever.RetrieveContext(ctx, "b1", "query")
	require.NoError(t, err)

	// 去重保留分数最高的一条
	require.Len(t, window.Chunks, 2)
	assert.Equal(t, "repeated", window.Chunks[0].Text)
	assert.InDelta(t, 1.0, window.Chunks[0].Score, 1e-9)
	assert.Equal(t, "unique", window.Chunks[1].Text)
}

func TestRetriever_RetrieveContextTruncatesToTopK(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{dims: 2, vectors: map[string][]float32{"query": {1, 0}}}
	policy := testPolicy()
	policy.TopK = 3
	retriever, store := newTestRetriever(t, embedder, nil, policy)

	require.NoError(t, store.EnsureCollection(ctx, "bot_b1", 2))
	records := make([]Record, 7)
	for i := range records {
		records[i] = Record{
			Vector: []float32{1, float32(i) * 0.01},
			Text:   fmt.Sprintf("chunk-%d", i),
		}
	}
	_, err := store.Insert(ctx, "bot_b1", records)
	require.NoError(t, err)

	window, err := retriever.RetrieveContext(ctx, "b1", "query")
	require.NoError(t, err)
	assert.Len(t, window.Chunks, 3)
}

func TestRetriever_RetrieveContextFallback(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{dims: 2, vectors: map[string][]float32{"query": {1, 0}}}
	retriever, store := newTestRetriever(t, embedder, nil, testPolicy())

	require.NoError(t, store.EnsureCollection(ctx, "bot_b1", 2))
	// 相似度约0.1，低于阈值0.2但为正
	_, err := store.Insert(ctx, "bot_b1", []Record{
		{Vector: []float32{0.1, 0.995}, Text: "weak"},
	})
	require.NoError(t, err)

	window, err := retriever.RetrieveContext(ctx, "b1", "query")
	require.NoError(t, err)

	// 阈值全部过滤后兜底召回保留弱相关内容
	require.Len(t, window.Chunks, 1)
	assert.Equal(t, "weak", window.Chunks[0].Text)
	assert.Equal(t, 1, window.RawMatches)
}

func TestRetriever_RetrieveContextNotRelevant(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{dims: 2, vectors: map[string][]float32{"query": {1, 0}}}
	retriever, store := newTestRetriever(t, embedder, nil, testPolicy())

	require.NoError(t, store.EnsureCollection(ctx, "bot_b1", 2))
	_, err := store.Insert(ctx, "bot_b1", []Record{
		{Vector: []float32{0, 1}, Text: "orthogonal"},
	})
	require.NoError(t, err)

	window, err := retriever.RetrieveContext(ctx, "b1", "query")
	require.NoError(t, err)

	// 有命中但相关度为零：窗口为空、原始命中数非零
	assert.Empty(t, window.Chunks)
	assert.Equal(t, 1, window.RawMatches)
}

func TestRetriever_RetrieveContextMissingCollection(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{dims: 2, vectors: map[string][]float32{"query": {1, 0}}}
	retriever, _ := newTestRetriever(t, embedder, nil, testPolicy())

	// 集合不存在视为空知识库
	window, err := retriever.RetrieveContext(ctx, "nope", "query")
	require.NoError(t, err)
	assert.Empty(t, window.Chunks)
	assert.Zero(t, window.RawMatches)
}

func TestRetriever_RetrieveContextEmptyQuery(t *testing.T) {
	embedder := &stubEmbedder{dims: 2}
	retriever, _ := newTestRetriever(t, embedder, nil, testPolicy())

	_, err := retriever.RetrieveContext(context.Background(), "b1", "   ")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
}

func TestRetriever_EmbedQueryUsesCache(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{dims: 2, vectors: map[string][]float32{"query": {1, 0}}}
	cache := &stubCache{data: make(map[string][]float32)}
	retriever, store := newTestRetriever(t, embedder, cache, testPolicy())

	require.NoError(t, store.EnsureCollection(ctx, "bot_b1", 2))
	_, err := store.Insert(ctx, "bot_b1", []Record{{Vector: []float32{1, 0}, Text: "exact"}})
	require.NoError(t, err)

	_, err = retriever.RetrieveContext(ctx, "b1", "query")
	require.NoError(t, err)
	_, err = retriever.RetrieveContext(ctx, "b1", "query")
	require.NoError(t, err)

	// 第二次命中缓存，不再调用向量化
	assert.Equal(t, 1, embedder.calls)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, 1, cache.sets)
}

func TestRetriever_EmbedFailurePropagates(t *testing.T) {
	embedder := &stubEmbedder{dims: 2, err: errors.New("boom")}
	retriever, _ := newTestRetriever(t, embedder, nil, testPolicy())

	_, err := retriever.RetrieveContext(context.Background(), "b1", "query")
	require.Error(t, err)
	// 不可重试的错误只尝试一次
	assert.Equal(t, 1, embedder.calls)
}

func TestRetriever_RetrieveRespectsLimit(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{dims: 2, vectors: map[string][]float32{"query": {1, 0}}}
	retriever, store := newTestRetriever(t, embedder, nil, testPolicy())

	require.NoError(t, store.EnsureCollection(ctx, "bot_b1", 2))
	records := make([]Record, 6)
	for i := range records {
		records[i] = Record{
			Vector: []float32{1, float32(i) * 0.01},
			Text:   fmt.Sprintf("chunk-%d", i),
		}
	}
	_, err := store.Insert(ctx, "bot_b1", records)
	require.NoError(t, err)

	results, err := retriever.Retrieve(ctx, "b1", "query", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
