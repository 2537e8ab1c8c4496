package knowledge

import (
	"context"
	"strings"

	"github.com/aihub/chatbot-go/internal/config"
	apperrors "github.com/aihub/chatbot-go/internal/errors"
	"github.com/aihub/chatbot-go/internal/logger"
	"github.com/aihub/chatbot-go/internal/metrics"
	"go.uber.org/zap"
)

// EmbeddingCache 查询向量缓存接口，失效或未命中不影响检索
type EmbeddingCache interface {
	Get(ctx context.Context, text string) ([]float32, bool)
	Set(ctx context.Context, text string, vector []float32)
}

// RetrievalResult 检索结果块
type RetrievalResult struct {
	Text     string                 `json:"text"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`
}

// ContextWindow 一次检索得到的上下文窗口
//
// RawMatches 为过滤前的原始命中数，用于区分"知识库为空"
// 与"有内容但相关度不足"两种无上下文情形。
type ContextWindow struct {
	Chunks     []RetrievalResult `json:"chunks"`
	RawMatches int               `json:"raw_matches"`
}

// Retriever 面向机器人的相似度检索器
//
// 检索流程：向量化查询 -> 放宽倍数召回 -> 相似度阈值过滤 ->
// 无命中时兜底放宽召回 -> 去重 -> 截断。
type Retriever struct {
	store            VectorStore
	embedder         Embedder
	cache            EmbeddingCache
	policy           config.RetrievalConfig
	collectionPrefix string
}

// NewRetriever 创建检索器；cache可以为nil
func NewRetriever(store VectorStore, embedder Embedder, cache EmbeddingCache, policy config.RetrievalConfig, collectionPrefix string) *Retriever {
	if collectionPrefix == "" {
		collectionPrefix = "bot"
	}
	return &Retriever{
		store:            store,
		embedder:         embedder,
		cache:            cache,
		policy:           policy,
		collectionPrefix: collectionPrefix,
	}
}

// CollectionName 机器人对应的向量集合名
func (r *Retriever) CollectionName(botID string) string {
	return r.collectionPrefix + "_" + botID
}

// embedQuery 向量化查询文本，优先使用缓存，失败时带退避重试
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if r.cache != nil {
		if vector, ok := r.cache.Get(ctx, query); ok {
			return vector, nil
		}
	}

	var vector []float32
	err := WithRetry(ctx, "embed query", func() error {
		var embedErr error
		vector, embedErr = r.embedder.Embed(ctx, query)
		return embedErr
	})
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(ctx, query, vector)
	}
	return vector, nil
}

// RetrieveContext 为查询检索上下文窗口
//
// 先以 TopK*WorkingMultiplier 召回并按相似度阈值过滤；全部被过滤掉且
// 原始命中非空时，以 TopK*FallbackMultiplier 放宽召回、只要求相似度为正。
// 结果按文本去重（保留首个、即分数最高的），最终截断到
// min(TopK, MaxContextChunks)。集合不存在视为空知识库，返回空窗口。
func (r *Retriever) RetrieveContext(ctx context.Context, botID, query string) (ContextWindow, error) {
	metrics.RetrievalsTotal.Inc()

	query = strings.TrimSpace(query)
	if query == "" {
		return ContextWindow{}, apperrors.NewInvalidInputError("query", "query is empty")
	}

	vector, err := r.embedQuery(ctx, query)
	if err != nil {
		return ContextWindow{}, err
	}

	collection := r.CollectionName(botID)
	workingLimit := r.policy.TopK * r.policy.WorkingMultiplier

	matches, err := r.searchWithRetry(ctx, collection, vector, workingLimit)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
			metrics.RetrievalsEmpty.Inc()
			return ContextWindow{}, nil
		}
		return ContextWindow{}, err
	}

	rawMatches := len(matches)
	filtered := filterByScore(matches, r.policy.ScoreThreshold)

	// 阈值全部过滤掉但确有内容时，放宽召回兜底
	if len(filtered) == 0 && rawMatches > 0 {
		fallbackLimit := r.policy.TopK * r.policy.FallbackMultiplier
		fallback, err := r.searchWithRetry(ctx, collection, vector, fallbackLimit)
		if err != nil {
			return ContextWindow{}, err
		}
		if len(fallback) > rawMatches {
			rawMatches = len(fallback)
		}
		filtered = filterPositive(fallback)

		logger.GetLogger().Debug("检索触发兜底召回",
			zap.String("collection", collection),
			zap.Int("raw_matches", rawMatches),
			zap.Int("fallback_kept", len(filtered)))
	}

	results := dedupeByText(filtered)

	maxChunks := r.policy.TopK
	if r.policy.MaxContextChunks > 0 && r.policy.MaxContextChunks < maxChunks {
		maxChunks = r.policy.MaxContextChunks
	}
	if len(results) > maxChunks {
		results = results[:maxChunks]
	}

	if len(results) == 0 {
		metrics.RetrievalsEmpty.Inc()
	}
	return ContextWindow{Chunks: results, RawMatches: rawMatches}, nil
}

// Retrieve 按指定数量检索相关块，不应用兜底策略
func (r *Retriever) Retrieve(ctx context.Context, botID, query string, limit int) ([]RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewInvalidInputError("query", "query is empty")
	}
	if limit <= 0 {
		limit = r.policy.TopK
	}

	vector, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := r.searchWithRetry(ctx, r.CollectionName(botID), vector, limit*r.policy.WorkingMultiplier)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
			return []RetrievalResult{}, nil
		}
		return nil, err
	}

	results := dedupeByText(filterByScore(matches, r.policy.ScoreThreshold))
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *Retriever) searchWithRetry(ctx context.Context, collection string, vector []float32, limit int) ([]SearchMatch, error) {
	var matches []SearchMatch
	err := WithRetry(ctx, "vector search", func() error {
		var searchErr error
		matches, searchErr = r.store.Search(ctx, collection, vector, limit)
		return searchErr
	})
	return matches, err
}

// filterByScore 保留相似度不低于threshold的命中
func filterByScore(matches []SearchMatch, threshold float64) []SearchMatch {
	kept := make([]SearchMatch, 0, len(matches))
	for _, match := range matches {
		if match.Score >= threshold {
			kept = append(kept, match)
		}
	}
	return kept
}

// filterPositive 兜底召回只保留相似度为正的命中
func filterPositive(matches []SearchMatch) []SearchMatch {
	kept := make([]SearchMatch, 0, len(matches))
	for _, match := range matches {
		if match.Score > 0 {
			kept = append(kept, match)
		}
	}
	return kept
}

// dedupeByText 按文本去重，命中按分数降序排列时保留的是最高分
func dedupeByText(matches []SearchMatch) []RetrievalResult {
	seen := make(map[string]struct{}, len(matches))
	results := make([]RetrievalResult, 0, len(matches))
	for _, match := range matches {
		if _, ok := seen[match.Text]; ok {
			continue
		}
		seen[match.Text] = struct{}{}
		results = append(results, RetrievalResult{
			Text:     match.Text,
			Score:    match.Score,
			Metadata: match.Metadata,
		})
	}
	return results
}
