package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/aihub/chatbot-go/internal/errors"
	"github.com/aihub/chatbot-go/internal/interfaces"
	"github.com/aihub/chatbot-go/internal/knowledge"
	"github.com/aihub/chatbot-go/internal/logger"
	"github.com/aihub/chatbot-go/internal/metrics"
	"github.com/aihub/chatbot-go/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const documentPreviewLength = 100

// IngestResult 文档摄取结果
type IngestResult struct {
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename"`
	ChunkCount  int    `json:"chunk_count"`
	FailedCount int    `json:"failed_count"`
	StoragePath string `json:"storage_path,omitempty"`
}

// DocumentSummary 机器人知识库中一个文档的概要
type DocumentSummary struct {
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
	Preview    string `json:"preview"`
}

// IngestService 文档摄取服务：分块、向量化并写入机器人集合
type IngestService struct {
	db        interfaces.DatabaseInterface
	store     knowledge.VectorStore
	embedder  knowledge.Embedder
	chunker   *knowledge.Chunker
	retriever *knowledge.Retriever
	source    interfaces.DocumentSource
	publisher interfaces.EventPublisher
	batchSize int
}

// NewIngestService 创建摄取服务；source和publisher可以为nil
func NewIngestService(
	db interfaces.DatabaseInterface,
	store knowledge.VectorStore,
	embedder knowledge.Embedder,
	chunker *knowledge.Chunker,
	retriever *knowledge.Retriever,
	source interfaces.DocumentSource,
	publisher interfaces.EventPublisher,
	batchSize int,
) *IngestService {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &IngestService{
		db:        db,
		store:     store,
		embedder:  embedder,
		chunker:   chunker,
		retriever: retriever,
		source:    source,
		publisher: publisher,
		batchSize: batchSize,
	}
}

// IngestDocument 摄取一篇文档到机器人知识库
//
// 文本被切分为重叠块，按批次向量化并写入向量集合。单个批次失败
// 不中断后续批次，全部完成后如有失败批次则返回BatchInsertError，
// 其中记录失败块的下标；成功的块保持已写入状态。
func (s *IngestService) IngestDocument(ctx context.Context, botID string, userID uint, filename, text string) (*IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewInvalidInputError("text", "document text is empty")
	}
	if filename == "" {
		filename = "document.txt"
	}

	chunks := s.chunker.Split(filename, text)
	if len(chunks) == 0 {
		return nil, apperrors.NewInvalidInputError("text", "document produced no chunks")
	}

	collection := s.retriever.CollectionName(botID)
	err := knowledge.WithRetry(ctx, "ensure collection", func() error {
		return s.store.EnsureCollection(ctx, collection, s.embedder.Dimensions())
	})
	if err != nil {
		return nil, err
	}

	documentID := uuid.New().String()
	createdAt := time.Now().UTC().Format(time.RFC3339)
	originalSize := len(text)

	// 原始文本归档，失败不阻塞摄取
	storagePath := ""
	if s.source != nil && s.source.Ready() {
		storagePath = fmt.Sprintf("bots/%s/%s/%s", botID, documentID, strings.ReplaceAll(filename, "/", "_"))
		if err := s.source.StoreText(ctx, storagePath, text); err != nil {
			logger.GetLogger().Warn("归档原始文档失败",
				zap.String("path", storagePath),
				zap.Error(err))
			storagePath = ""
		}
	}

	inserted := 0
	var failedIndexes []int
	var lastBatchErr error
	for start := 0; start < len(chunks); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		if err := s.insertBatch(ctx, collection, documentID, userID, filename, originalSize, createdAt, batch); err != nil {
			lastBatchErr = err
			for _, chunk := range batch {
				failedIndexes = append(failedIndexes, chunk.Index)
			}
			continue
		}
		inserted += len(batch)
	}

	metrics.ChunksIngested.Add(float64(inserted))

	status := "completed"
	if len(failedIndexes) > 0 {
		status = "partial"
	}
	doc := models.BotDocument{
		DocumentID:  documentID,
		BotID:       botID,
		Filename:    filename,
		FileSize:    int64(originalSize),
		ChunkCount:  inserted,
		StoragePath: storagePath,
		Status:      status,
		CreateTime:  time.Now(),
	}
	if s.db != nil {
		if err := s.db.GetDB().WithContext(ctx).Create(&doc).Error; err != nil {
			logger.GetLogger().Warn("登记文档失败",
				zap.String("document_id", documentID),
				zap.Error(err))
		}
	}

	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, "document.ingested", map[string]interface{}{
			"bot_id":      botID,
			"document_id": documentID,
			"filename":    filename,
			"chunk_count": inserted,
		})
	}

	result := &IngestResult{
		DocumentID:  documentID,
		Filename:    filename,
		ChunkCount:  inserted,
		FailedCount: len(failedIndexes),
		StoragePath: storagePath,
	}
	if len(failedIndexes) > 0 {
		return result, &apperrors.BatchInsertError{
			Collection:    collection,
			FailedIndexes: failedIndexes,
			Cause:         lastBatchErr,
		}
	}

	logger.GetLogger().Info("文档摄取完成",
		zap.String("bot_id", botID),
		zap.String("document_id", documentID),
		zap.Int("chunks", inserted))
	return result, nil
}

// insertBatch 向量化并写入一个批次
func (s *IngestService) insertBatch(ctx context.Context, collection, documentID string, userID uint, filename string, originalSize int, createdAt string, batch []knowledge.Chunk) error {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Text
	}

	var vectors [][]float32
	err := knowledge.WithRetry(ctx, "embed batch", func() error {
		var embedErr error
		vectors, embedErr = s.embedder.EmbedBatch(ctx, texts)
		return embedErr
	})
	if err != nil {
		return err
	}

	records := make([]knowledge.Record, len(batch))
	for i, chunk := range batch {
		records[i] = knowledge.Record{
			Vector: vectors[i],
			Text:   chunk.Text,
			Metadata: map[string]interface{}{
				"document_id":        documentID,
				"filename":           filename,
				"chunk_index":        chunk.Index,
				"chunk_length":       chunk.ByteLength,
				"original_file_size": originalSize,
				"created_at":         createdAt,
				"user_id":            userID,
			},
		}
	}

	return knowledge.WithRetry(ctx, "insert batch", func() error {
		_, insertErr := s.store.Insert(ctx, collection, records)
		return insertErr
	})
}

// ListBotDocuments 遍历机器人集合，按文件名聚合出文档列表
func (s *IngestService) ListBotDocuments(ctx context.Context, botID string) ([]DocumentSummary, error) {
	collection := s.retriever.CollectionName(botID)

	grouped := make(map[string]*DocumentSummary)
	cursor := ""
	for {
		records, nextCursor, err := s.store.Scroll(ctx, collection, 100, cursor)
		if err != nil {
			if apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
				return []DocumentSummary{}, nil
			}
			return nil, err
		}

		for _, record := range records {
			filename := "unknown"
			if v, ok := record.Metadata["filename"].(string); ok && v != "" {
				filename = v
			}

			summary, ok := grouped[filename]
			if !ok {
				summary = &DocumentSummary{Filename: filename}
				grouped[filename] = summary
			}
			summary.ChunkCount++
			if summary.Preview == "" {
				summary.Preview = previewText(record.Text)
			}
		}

		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	summaries := make([]DocumentSummary, 0, len(grouped))
	for _, summary := range grouped {
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Filename < summaries[j].Filename
	})
	return summaries, nil
}

// FetchDocumentText 读取已归档文档的原始文本
func (s *IngestService) FetchDocumentText(ctx context.Context, documentID string) (string, error) {
	if s.source == nil || !s.source.Ready() {
		return "", apperrors.NewSystemError(apperrors.ErrCodeConfiguration, "document storage not configured")
	}
	if s.db == nil {
		return "", apperrors.NewSystemError(apperrors.ErrCodeConfiguration, "database not configured")
	}

	var doc models.BotDocument
	err := s.db.GetDB().WithContext(ctx).Where("document_id = ?", documentID).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.NewNotFoundError("document")
		}
		return "", apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to load document").WithCause(err)
	}
	if doc.StoragePath == "" {
		return "", apperrors.NewNotFoundError("document archive")
	}

	return s.source.FetchText(ctx, doc.StoragePath)
}

// CollectionStats 机器人集合的向量总数，集合不存在视为0
func (s *IngestService) CollectionStats(ctx context.Context, botID string) (int64, error) {
	count, err := s.store.Count(ctx, s.retriever.CollectionName(botID))
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// previewText 截取文档预览
func previewText(text string) string {
	runes := []rune(text)
	if len(runes) <= documentPreviewLength {
		return text
	}
	return string(runes[:documentPreviewLength]) + "..."
}
