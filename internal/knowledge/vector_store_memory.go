package knowledge

import (
	"context"
	"sort"
	"strconv"
	"sync"

	apperrors "github.com/aihub/chatbot-go/internal/errors"
	"github.com/google/uuid"
)

// memoryCollection 内存集合
type memoryCollection struct {
	dimension int
	records   []Record
}

// MemoryVectorStore 内存向量存储，用于测试与本地开发
type MemoryVectorStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

// NewMemoryVectorStore 创建内存向量存储
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{
		collections: make(map[string]*memoryCollection),
	}
}

func (s *MemoryVectorStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return apperrors.NewConfigurationError("vector dimension must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 幂等：已存在的集合保持原样
	if _, ok := s.collections[name]; ok {
		return nil
	}
	s.collections[name] = &memoryCollection{dimension: dimension}
	return nil
}

func (s *MemoryVectorStore) Insert(ctx context.Context, name string, records []Record) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[name]
	if !ok {
		return nil, apperrors.NewNotFoundError("collection " + name)
	}

	ids := make([]string, 0, len(records))
	for _, record := range records {
		if len(record.Vector) != coll.dimension {
			return nil, apperrors.NewDimensionMismatchError(coll.dimension, len(record.Vector))
		}
		if record.ID == "" {
			record.ID = uuid.New().String()
		}
		coll.records = append(coll.records, record)
		ids = append(ids, record.ID)
	}
	return ids, nil
}

func (s *MemoryVectorStore) Search(ctx context.Context, name string, vector []float32, limit int) ([]SearchMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[name]
	if !ok {
		return nil, apperrors.NewNotFoundError("collection " + name)
	}
	if len(vector) != coll.dimension {
		return nil, apperrors.NewDimensionMismatchError(coll.dimension, len(vector))
	}

	matches := make([]SearchMatch, 0, len(coll.records))
	for _, record := range coll.records {
		matches = append(matches, SearchMatch{
			Text:     record.Text,
			Score:    cosineSimilarity(vector, record.Vector),
			Metadata: record.Metadata,
		})
	}

	// 稳定排序，相同分数按写入先后
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *MemoryVectorStore) DropCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, name)
	return nil
}

func (s *MemoryVectorStore) Scroll(ctx context.Context, name string, pageSize int, cursor string) ([]Record, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[name]
	if !ok {
		return nil, "", apperrors.NewNotFoundError("collection " + name)
	}

	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", apperrors.NewInvalidInputError("cursor", "cursor is not a valid offset")
		}
		offset = parsed
	}
	if offset >= len(coll.records) {
		return nil, "", nil
	}

	end := offset + pageSize
	if pageSize <= 0 || end > len(coll.records) {
		end = len(coll.records)
	}

	page := make([]Record, end-offset)
	copy(page, coll.records[offset:end])

	nextCursor := ""
	if end < len(coll.records) {
		nextCursor = strconv.Itoa(end)
	}
	return page, nextCursor, nil
}

func (s *MemoryVectorStore) Count(ctx context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[name]
	if !ok {
		return 0, apperrors.NewNotFoundError("collection " + name)
	}
	return int64(len(coll.records)), nil
}

func (s *MemoryVectorStore) Ready() bool {
	return true
}
