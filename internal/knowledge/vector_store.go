package knowledge

import (
	"context"
	"math"
)

// Record 向量存储中的一条记录
type Record struct {
	ID       string                 `json:"id"`
	Vector   []float32              `json:"vector"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

// SearchMatch 相似度检索命中结果
type SearchMatch struct {
	Text     string                 `json:"text"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`
}

// VectorStore 向量存储接口，每个集合对应一个机器人的知识库
//
// EnsureCollection 幂等：集合已存在时不改动现有数据。
// Insert 为未指定ID的记录生成唯一ID，返回写入的ID列表。
// DropCollection 对不存在的集合静默成功。
// Scroll 按稳定顺序分页遍历集合，nextCursor为空表示遍历结束。
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, dimension int) error
	Insert(ctx context.Context, name string, records []Record) ([]string, error)
	Search(ctx context.Context, name string, vector []float32, limit int) ([]SearchMatch, error)
	DropCollection(ctx context.Context, name string) error
	Scroll(ctx context.Context, name string, pageSize int, cursor string) ([]Record, string, error)
	Count(ctx context.Context, name string) (int64, error)
	Ready() bool
}

// vectorNorm 计算向量模长
func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosineSimilarity 计算余弦相似度，任一向量模长为0时返回0
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	normA := vectorNorm(a)
	normB := vectorNorm(b)
	if normA == 0 || normB == 0 {
		return 0
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}
