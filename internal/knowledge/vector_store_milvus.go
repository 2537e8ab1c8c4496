package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/aihub/chatbot-go/internal/errors"
	"github.com/aihub/chatbot-go/internal/logger"
	"github.com/google/uuid"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address  string
	Username string
	Password string
	Database string
	UseTLS   bool
	Timeout  time.Duration
}

// MilvusVectorStore 基于Milvus的向量存储
type MilvusVectorStore struct {
	milvusClient client.Client

	mu         sync.RWMutex
	dimensions map[string]int
	loaded     map[string]bool
}

// NewMilvusVectorStore 创建Milvus向量存储
func NewMilvusVectorStore(ctx context.Context, opts MilvusOptions) (*MilvusVectorStore, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Database == "" {
		opts.Database = "default"
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	milvusClient, err := client.NewClient(connectCtx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("connect", err)
	}

	return &MilvusVectorStore{
		milvusClient: milvusClient,
		dimensions:   make(map[string]int),
		loaded:       make(map[string]bool),
	}, nil
}

func (s *MilvusVectorStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return apperrors.NewConfigurationError("vector dimension must be positive")
	}

	hasCollection, err := s.milvusClient.HasCollection(ctx, name)
	if err != nil {
		return apperrors.NewStoreUnavailableError("check collection", err)
	}
	if hasCollection {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: name,
		Description:    "bot knowledge vectors",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     "metadata",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", dimension),
				},
			},
		},
	}

	if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return apperrors.NewStoreUnavailableError("create collection", err)
	}

	// 创建向量索引，HNSW失败时回退IVF_FLAT
	var index entity.Index
	var indexErr error
	index, indexErr = entity.NewIndexHNSW(entity.COSINE, 8, 64)
	if indexErr != nil {
		index, indexErr = entity.NewIndexIvfFlat(entity.COSINE, 128)
		if indexErr != nil {
			return apperrors.NewStoreUnavailableError("create index", indexErr)
		}
	}
	if err := s.milvusClient.CreateIndex(ctx, name, "vector", index, false); err != nil {
		// 索引创建失败不影响写入，检索退化为暴力搜索
		logger.GetLogger().Warn("创建向量索引失败",
			zap.String("collection", name),
			zap.Error(err))
	}

	s.mu.Lock()
	s.dimensions[name] = dimension
	s.mu.Unlock()

	return nil
}

// getDimension 获取集合向量维度（带缓存）
func (s *MilvusVectorStore) getDimension(ctx context.Context, name string) (int, error) {
	s.mu.RLock()
	dim, ok := s.dimensions[name]
	s.mu.RUnlock()
	if ok {
		return dim, nil
	}

	hasCollection, err := s.milvusClient.HasCollection(ctx, name)
	if err != nil {
		return 0, apperrors.NewStoreUnavailableError("check collection", err)
	}
	if !hasCollection {
		return 0, apperrors.NewNotFoundError("collection " + name)
	}

	coll, err := s.milvusClient.DescribeCollection(ctx, name)
	if err != nil {
		return 0, apperrors.NewStoreUnavailableError("describe collection", err)
	}
	for _, field := range coll.Schema.Fields {
		if field.Name != "vector" {
			continue
		}
		parsed, err := strconv.Atoi(field.TypeParams["dim"])
		if err != nil {
			return 0, apperrors.NewStoreUnavailableError("describe collection", err)
		}
		dim = parsed
	}
	if dim == 0 {
		return 0, apperrors.NewStoreUnavailableError("describe collection",
			fmt.Errorf("collection %s has no vector field", name))
	}

	s.mu.Lock()
	s.dimensions[name] = dim
	s.mu.Unlock()
	return dim, nil
}

// ensureLoaded 搜索前加载集合到内存
func (s *MilvusVectorStore) ensureLoaded(ctx context.Context, name string) error {
	s.mu.RLock()
	loaded := s.loaded[name]
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	if err := s.milvusClient.LoadCollection(ctx, name, false); err != nil {
		return apperrors.NewStoreUnavailableError("load collection", err)
	}

	s.mu.Lock()
	s.loaded[name] = true
	s.mu.Unlock()
	return nil
}

func (s *MilvusVectorStore) Insert(ctx context.Context, name string, records []Record) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}

	dim, err := s.getDimension(ctx, name)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(records))
	texts := make([]string, 0, len(records))
	metadatas := make([]string, 0, len(records))
	vectors := make([][]float32, 0, len(records))
	for _, record := range records {
		if len(record.Vector) != dim {
			return nil, apperrors.NewDimensionMismatchError(dim, len(record.Vector))
		}
		if record.ID == "" {
			record.ID = uuid.New().String()
		}

		metadata, err := json.Marshal(record.Metadata)
		if err != nil {
			return nil, apperrors.NewStoreUnavailableError("encode metadata", err)
		}

		ids = append(ids, record.ID)
		texts = append(texts, record.Text)
		metadatas = append(metadatas, string(metadata))
		vectors = append(vectors, record.Vector)
	}

	_, err = s.milvusClient.Insert(ctx, name, "",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("metadata", metadatas),
		entity.NewColumnFloatVector("vector", dim, vectors))
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("insert", err)
	}

	if err := s.milvusClient.Flush(ctx, name, false); err != nil {
		// 刷新失败不影响写入，数据会随后台落盘可见
		logger.GetLogger().Warn("刷新集合失败",
			zap.String("collection", name),
			zap.Error(err))
	}

	return ids, nil
}

func (s *MilvusVectorStore) Search(ctx context.Context, name string, vector []float32, limit int) ([]SearchMatch, error) {
	dim, err := s.getDimension(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, apperrors.NewDimensionMismatchError(dim, len(vector))
	}
	if err := s.ensureLoaded(ctx, name); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	searchResults, err := s.milvusClient.Search(
		ctx,
		name,
		[]string{},
		"",
		[]string{"text", "metadata"},
		[]entity.Vector{entity.FloatVector(vector)},
		"vector",
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("search", err)
	}
	if len(searchResults) == 0 {
		return []SearchMatch{}, nil
	}

	result := searchResults[0]
	if result.Err != nil {
		return nil, apperrors.NewStoreUnavailableError("search", result.Err)
	}
	if result.ResultCount == 0 {
		return []SearchMatch{}, nil
	}

	var texts, metadatas []string
	for _, field := range result.Fields {
		switch field.Name() {
		case "text":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				texts = col.Data()
			}
		case "metadata":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				metadatas = col.Data()
			}
		}
	}

	matches := make([]SearchMatch, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		match := SearchMatch{}
		if i < len(texts) {
			match.Text = texts[i]
		}
		if i < len(result.Scores) {
			match.Score = float64(result.Scores[i])
		}
		if i < len(metadatas) && metadatas[i] != "" {
			var metadata map[string]interface{}
			if err := json.Unmarshal([]byte(metadatas[i]), &metadata); err == nil {
				match.Metadata = metadata
			}
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func (s *MilvusVectorStore) DropCollection(ctx context.Context, name string) error {
	hasCollection, err := s.milvusClient.HasCollection(ctx, name)
	if err != nil {
		return apperrors.NewStoreUnavailableError("check collection", err)
	}
	// 删除不存在的集合静默成功
	if !hasCollection {
		return nil
	}

	if err := s.milvusClient.DropCollection(ctx, name); err != nil {
		return apperrors.NewStoreUnavailableError("drop collection", err)
	}

	s.mu.Lock()
	delete(s.dimensions, name)
	delete(s.loaded, name)
	s.mu.Unlock()
	return nil
}

func (s *MilvusVectorStore) Scroll(ctx context.Context, name string, pageSize int, cursor string) ([]Record, string, error) {
	if _, err := s.getDimension(ctx, name); err != nil {
		return nil, "", err
	}
	if err := s.ensureLoaded(ctx, name); err != nil {
		return nil, "", err
	}

	offset := int64(0)
	if cursor != "" {
		parsed, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, "", apperrors.NewInvalidInputError("cursor", "cursor is not a valid offset")
		}
		offset = parsed
	}
	if pageSize <= 0 {
		pageSize = 100
	}

	resultSet, err := s.milvusClient.Query(
		ctx,
		name,
		[]string{},
		`id != ""`,
		[]string{"id", "text", "metadata"},
		client.WithOffset(offset),
		client.WithLimit(int64(pageSize)),
	)
	if err != nil {
		return nil, "", apperrors.NewStoreUnavailableError("scroll", err)
	}

	var ids, texts, metadatas []string
	if col, ok := resultSet.GetColumn("id").(*entity.ColumnVarChar); ok {
		ids = col.Data()
	}
	if col, ok := resultSet.GetColumn("text").(*entity.ColumnVarChar); ok {
		texts = col.Data()
	}
	if col, ok := resultSet.GetColumn("metadata").(*entity.ColumnVarChar); ok {
		metadatas = col.Data()
	}

	records := make([]Record, 0, len(ids))
	for i := range ids {
		record := Record{ID: ids[i]}
		if i < len(texts) {
			record.Text = texts[i]
		}
		if i < len(metadatas) && metadatas[i] != "" {
			var metadata map[string]interface{}
			if err := json.Unmarshal([]byte(metadatas[i]), &metadata); err == nil {
				record.Metadata = metadata
			}
		}
		records = append(records, record)
	}

	nextCursor := ""
	if len(records) == pageSize {
		nextCursor = strconv.FormatInt(offset+int64(len(records)), 10)
	}
	return records, nextCursor, nil
}

func (s *MilvusVectorStore) Count(ctx context.Context, name string) (int64, error) {
	if _, err := s.getDimension(ctx, name); err != nil {
		return 0, err
	}

	stats, err := s.milvusClient.GetCollectionStatistics(ctx, name)
	if err != nil {
		return 0, apperrors.NewStoreUnavailableError("collection statistics", err)
	}
	count, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, apperrors.NewStoreUnavailableError("collection statistics", err)
	}
	return count, nil
}

func (s *MilvusVectorStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}

// Close 关闭Milvus连接
func (s *MilvusVectorStore) Close() error {
	if s.milvusClient == nil {
		return nil
	}
	return s.milvusClient.Close()
}
