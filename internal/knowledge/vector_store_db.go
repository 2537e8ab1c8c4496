package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	apperrors "github.com/aihub/chatbot-go/internal/errors"
	"github.com/aihub/chatbot-go/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DBVectorStore 基于关系数据库的向量存储，向量以JSON存储、相似度在内存计算
//
// 适合小规模知识库或无Milvus环境的部署，检索复杂度为O(集合大小)。
type DBVectorStore struct {
	db *gorm.DB
}

// NewDBVectorStore 创建数据库向量存储
func NewDBVectorStore(db *gorm.DB) *DBVectorStore {
	return &DBVectorStore{db: db}
}

func (s *DBVectorStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return apperrors.NewConfigurationError("vector dimension must be positive")
	}

	// 幂等：冲突时不更新，保留已有集合的维度
	coll := models.BotCollection{
		Name:       name,
		Dimension:  dimension,
		CreateTime: time.Now(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&coll).Error
	if err != nil {
		return apperrors.NewStoreUnavailableError("ensure collection", err)
	}
	return nil
}

// getCollection 读取集合登记，不存在时返回NotFound
func (s *DBVectorStore) getCollection(ctx context.Context, name string) (*models.BotCollection, error) {
	var coll models.BotCollection
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&coll).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("collection " + name)
		}
		return nil, apperrors.NewStoreUnavailableError("get collection", err)
	}
	return &coll, nil
}

func (s *DBVectorStore) Insert(ctx context.Context, name string, records []Record) ([]string, error) {
	coll, err := s.getCollection(ctx, name)
	if err != nil {
		return nil, err
	}

	rows := make([]models.BotEmbedding, 0, len(records))
	ids := make([]string, 0, len(records))
	for _, record := range records {
		if len(record.Vector) != coll.Dimension {
			return nil, apperrors.NewDimensionMismatchError(coll.Dimension, len(record.Vector))
		}
		if record.ID == "" {
			record.ID = uuid.New().String()
		}

		embedding, err := json.Marshal(record.Vector)
		if err != nil {
			return nil, apperrors.NewStoreUnavailableError("encode vector", err)
		}
		metadata, err := json.Marshal(record.Metadata)
		if err != nil {
			return nil, apperrors.NewStoreUnavailableError("encode metadata", err)
		}

		rows = append(rows, models.BotEmbedding{
			RecordID:   record.ID,
			Collection: name,
			Text:       record.Text,
			Embedding:  string(embedding),
			Metadata:   string(metadata),
			CreateTime: time.Now(),
		})
		ids = append(ids, record.ID)
	}

	if len(rows) == 0 {
		return ids, nil
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, apperrors.NewStoreUnavailableError("insert", err)
	}
	return ids, nil
}

func (s *DBVectorStore) Search(ctx context.Context, name string, vector []float32, limit int) ([]SearchMatch, error) {
	coll, err := s.getCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != coll.Dimension {
		return nil, apperrors.NewDimensionMismatchError(coll.Dimension, len(vector))
	}

	var rows []models.BotEmbedding
	err = s.db.WithContext(ctx).
		Where("collection = ?", name).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("search", err)
	}

	matches := make([]SearchMatch, 0, len(rows))
	for _, row := range rows {
		record, err := decodeEmbeddingRow(row)
		if err != nil {
			return nil, err
		}
		matches = append(matches, SearchMatch{
			Text:     record.Text,
			Score:    cosineSimilarity(vector, record.Vector),
			Metadata: record.Metadata,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *DBVectorStore) DropCollection(ctx context.Context, name string) error {
	// 删除不存在的集合静默成功
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection = ?", name).Delete(&models.BotEmbedding{}).Error; err != nil {
			return err
		}
		return tx.Where("name = ?", name).Delete(&models.BotCollection{}).Error
	})
	if err != nil {
		return apperrors.NewStoreUnavailableError("drop collection", err)
	}
	return nil
}

func (s *DBVectorStore) Scroll(ctx context.Context, name string, pageSize int, cursor string) ([]Record, string, error) {
	if _, err := s.getCollection(ctx, name); err != nil {
		return nil, "", err
	}

	var afterSeq int64
	if cursor != "" {
		parsed, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, "", apperrors.NewInvalidInputError("cursor", "cursor is not a valid sequence number")
		}
		afterSeq = parsed
	}
	if pageSize <= 0 {
		pageSize = 100
	}

	var rows []models.BotEmbedding
	err := s.db.WithContext(ctx).
		Where("collection = ? AND seq > ?", name, afterSeq).
		Order("seq ASC").
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, "", apperrors.NewStoreUnavailableError("scroll", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		record, err := decodeEmbeddingRow(row)
		if err != nil {
			return nil, "", err
		}
		records = append(records, record)
	}

	nextCursor := ""
	if len(rows) == pageSize {
		nextCursor = strconv.FormatInt(rows[len(rows)-1].Seq, 10)
	}
	return records, nextCursor, nil
}

func (s *DBVectorStore) Count(ctx context.Context, name string) (int64, error) {
	if _, err := s.getCollection(ctx, name); err != nil {
		return 0, err
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.BotEmbedding{}).
		Where("collection = ?", name).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.NewStoreUnavailableError("count", err)
	}
	return count, nil
}

func (s *DBVectorStore) Ready() bool {
	return s.db != nil
}

// decodeEmbeddingRow 解码数据库行为Record
func decodeEmbeddingRow(row models.BotEmbedding) (Record, error) {
	var vector []float32
	if err := json.Unmarshal([]byte(row.Embedding), &vector); err != nil {
		return Record{}, apperrors.NewStoreUnavailableError("decode vector", err)
	}

	var metadata map[string]interface{}
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &metadata); err != nil {
			return Record{}, apperrors.NewStoreUnavailableError("decode metadata", err)
		}
	}

	return Record{
		ID:       row.RecordID,
		Vector:   vector,
		Text:     row.Text,
		Metadata: metadata,
	}, nil
}
