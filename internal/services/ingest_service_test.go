package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/aihub/chatbot-go/internal/errors"
	"github.com/aihub/chatbot-go/internal/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ingestEmbedder 为每个文本生成固定维度向量，可按子串注入失败
type ingestEmbedder struct {
	failSubstring string
	calls         int
}

func (e *ingestEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *ingestEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if e.failSubstring != "" && strings.Contains(text, e.failSubstring) {
			return nil, errors.New("embedding rejected")
		}
		vectors[i] = []float32{float32(len(text)), 1}
	}
	return vectors, nil
}

func (e *ingestEmbedder) Dimensions() int { return 2 }
func (e *ingestEmbedder) Ready() bool     { return true }

// recordingPublisher 记录发布过的事件类型
type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	p.events = append(p.events, eventType)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func newIngestFixture(t *testing.T, embedder knowledge.Embedder, batchSize int) (*IngestService, *knowledge.MemoryVectorStore, *recordingPublisher) {
	t.Helper()
	store := knowledge.NewMemoryVectorStore()
	retriever := knowledge.NewRetriever(store, embedder, nil, chatTestPolicy(), "bot")
	chunker, err := knowledge.NewChunker(4, 1)
	require.NoError(t, err)
	publisher := &recordingPublisher{}
	service := NewIngestService(nil, store, embedder, chunker, retriever, nil, publisher, batchSize)
	return service, store, publisher
}

func TestIngestService_IngestDocument(t *testing.T) {
	ctx := context.Background()
	embedder := &ingestEmbedder{}
	service, store, publisher := newIngestFixture(t, embedder, 3)

	result, err := service.IngestDocument(ctx, "b1", 7, "doc.txt", "abcdefghij")
	require.NoError(t, err)

	// 4个块分两批写入
	assert.Equal(t, 4, result.ChunkCount)
	assert.Zero(t, result.FailedCount)
	assert.NotEmpty(t, result.DocumentID)
	assert.Equal(t, 2, embedder.calls)

	count, err := store.Count(ctx, "bot_b1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	assert.Equal(t, []string{"document.ingested"}, publisher.events)

	// 每条记录携带来源元数据
	records, _, err := store.Scroll(ctx, "bot_b1", 10, "")
	require.NoError(t, err)
	require.Len(t, records, 4)
	for _, record := range records {
		assert.Equal(t, "doc.txt", record.Metadata["filename"])
		assert.Contains(t, record.Metadata, "chunk_index")
		assert.Contains(t, record.Metadata, "chunk_length")
		assert.Contains(t, record.Metadata, "original_file_size")
		assert.Contains(t, record.Metadata, "created_at")
		assert.Equal(t, uint(7), record.Metadata["user_id"])
	}
}

func TestIngestService_IngestDocumentPartialFailure(t *testing.T) {
	ctx := context.Background()
	// 第一批包含ghij，向量化失败；第二批正常
	embedder := &ingestEmbedder{failSubstring: "ghij"}
	service, store, _ := newIngestFixture(t, embedder, 3)

	result, err := service.IngestDocument(ctx, "b1", 7, "doc.txt", "abcdefghij")
	require.Error(t, err)

	var batchErr *apperrors.BatchInsertError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, "bot_b1", batchErr.Collection)
	assert.Equal(t, []int{0, 1, 2}, batchErr.FailedIndexes)

	// 失败批次不影响后续批次，成功的块保持已写入
	require.NotNil(t, result)
	assert.Equal(t, 1, result.ChunkCount)
	assert.Equal(t, 3, result.FailedCount)

	count, err := store.Count(ctx, "bot_b1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestIngestService_IngestDocumentEmptyText(t *testing.T) {
	service, _, _ := newIngestFixture(t, &ingestEmbedder{}, 3)

	_, err := service.IngestDocument(context.Background(), "b1", 7, "doc.txt", "   ")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
}

func TestIngestService_ListBotDocuments(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newIngestFixture(t, &ingestEmbedder{}, 3)

	_, err := service.IngestDocument(ctx, "b1", 7, "first.txt", "abcdefghij")
	require.NoError(t, err)
	_, err = service.IngestDocument(ctx, "b1", 7, "second.txt", "klmno")
	require.NoError(t, err)

	docs, err := service.ListBotDocuments(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	// 按文件名排序聚合
	assert.Equal(t, "first.txt", docs[0].Filename)
	assert.Equal(t, 4, docs[0].ChunkCount)
	assert.NotEmpty(t, docs[0].Preview)
	assert.Equal(t, "second.txt", docs[1].Filename)
	assert.Equal(t, 2, docs[1].ChunkCount)
}

func TestIngestService_ListBotDocumentsEmpty(t *testing.T) {
	service, _, _ := newIngestFixture(t, &ingestEmbedder{}, 3)

	// 集合不存在视为没有文档
	docs, err := service.ListBotDocuments(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestIngestService_CollectionStats(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newIngestFixture(t, &ingestEmbedder{}, 3)

	// 集合不存在时统计为0
	count, err := service.CollectionStats(ctx, "b1")
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = service.IngestDocument(ctx, "b1", 7, "doc.txt", "abcdefghij")
	require.NoError(t, err)

	count, err = service.CollectionStats(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}
