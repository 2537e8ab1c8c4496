package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/aihub/chatbot-go/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const embeddingCachePrefix = "query_embedding:"

// RedisEmbeddingCache 基于Redis的查询向量缓存，所有操作尽力而为
type RedisEmbeddingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisEmbeddingCache 创建查询向量缓存
func NewRedisEmbeddingCache(client *redis.Client, ttl time.Duration) *RedisEmbeddingCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisEmbeddingCache{client: client, ttl: ttl}
}

// cacheKey 对查询文本取哈希做键，避免超长键
func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return embeddingCachePrefix + hex.EncodeToString(sum[:])
}

func (c *RedisEmbeddingCache) Get(ctx context.Context, text string) ([]float32, bool) {
	if c.client == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, cacheKey(text)).Bytes()
	if err != nil {
		return nil, false
	}

	var vector []float32
	if err := json.Unmarshal(raw, &vector); err != nil {
		return nil, false
	}
	return vector, true
}

func (c *RedisEmbeddingCache) Set(ctx context.Context, text string, vector []float32) {
	if c.client == nil {
		return
	}

	raw, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(text), raw, c.ttl).Err(); err != nil {
		logger.GetLogger().Debug("写入向量缓存失败", zap.Error(err))
	}
}
