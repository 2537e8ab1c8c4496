package di

import (
	"context"
	"fmt"

	"github.com/aihub/chatbot-go/internal/config"
	"github.com/aihub/chatbot-go/internal/database"
	"github.com/aihub/chatbot-go/internal/interfaces"
	"github.com/aihub/chatbot-go/internal/kafka"
	"github.com/aihub/chatbot-go/internal/knowledge"
	"github.com/aihub/chatbot-go/internal/services"
	"github.com/aihub/chatbot-go/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
)

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container) error {
	// 注册配置
	if err := container.Provide(func() (*config.Config, error) {
		cfg := config.GetAppConfig()
		if cfg == nil {
			return nil, fmt.Errorf("config not loaded")
		}
		return cfg, nil
	}); err != nil {
		return err
	}

	// 注册数据库
	if err := container.Provide(func(cfg *config.Config) (interfaces.DatabaseInterface, error) {
		return database.NewDatabase(cfg)
	}); err != nil {
		return err
	}

	// 注册Redis客户端（未启用时为nil）
	if err := container.Provide(database.NewRedisClient); err != nil {
		return err
	}

	// 注册查询向量缓存
	if err := container.Provide(func(cfg *config.Config, rdb *redis.Client) knowledge.EmbeddingCache {
		if rdb == nil {
			return nil
		}
		return services.NewRedisEmbeddingCache(rdb, cfg.Redis.TTL)
	}); err != nil {
		return err
	}

	// 注册向量存储（按配置选择后端）
	if err := container.Provide(func(cfg *config.Config, db interfaces.DatabaseInterface) (knowledge.VectorStore, error) {
		switch cfg.Knowledge.VectorStore.Provider {
		case "milvus":
			return knowledge.NewMilvusVectorStore(context.Background(), knowledge.MilvusOptions{
				Address:  cfg.Knowledge.VectorStore.Address,
				Username: cfg.Knowledge.VectorStore.Username,
				Password: cfg.Knowledge.VectorStore.Password,
				Database: cfg.Knowledge.VectorStore.Database,
				UseTLS:   cfg.Knowledge.VectorStore.UseTLS,
				Timeout:  cfg.Knowledge.VectorStore.Timeout,
			})
		case "database":
			return knowledge.NewDBVectorStore(db.GetDB()), nil
		case "memory":
			return knowledge.NewMemoryVectorStore(), nil
		default:
			return nil, fmt.Errorf("unknown vector store provider: %s", cfg.Knowledge.VectorStore.Provider)
		}
	}); err != nil {
		return err
	}

	// 注册向量化与生成
	if err := container.Provide(func(cfg *config.Config) knowledge.Embedder {
		return knowledge.NewOpenAIEmbedder(cfg.AI.OpenAIAPIKey, cfg.AI.EmbeddingModel, cfg.Knowledge.VectorStore.VectorSize, cfg.AI.RequestTimeout)
	}); err != nil {
		return err
	}

	if err := container.Provide(func(cfg *config.Config) knowledge.Generator {
		return knowledge.NewOpenAIGenerator(cfg.AI.OpenAIAPIKey, cfg.AI.ChatModel, cfg.AI.MaxTokens, cfg.AI.Temperature, cfg.AI.RequestTimeout)
	}); err != nil {
		return err
	}

	// 注册分块器与检索器
	if err := container.Provide(func(cfg *config.Config) (*knowledge.Chunker, error) {
		return knowledge.NewChunker(cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap)
	}); err != nil {
		return err
	}

	if err := container.Provide(func(cfg *config.Config, store knowledge.VectorStore, embedder knowledge.Embedder, cache knowledge.EmbeddingCache) *knowledge.Retriever {
		return knowledge.NewRetriever(store, embedder, cache, cfg.Knowledge.Retrieval, cfg.Knowledge.VectorStore.CollectionPrefix)
	}); err != nil {
		return err
	}

	// 注册文档源（未启用时为nil）
	if err := container.Provide(func(cfg *config.Config) (interfaces.DocumentSource, error) {
		if !cfg.Storage.Enabled {
			return nil, nil
		}
		return storage.NewMinioDocumentSource(cfg)
	}); err != nil {
		return err
	}

	// 注册事件发布器（未启用时为空实现）
	if err := container.Provide(func(cfg *config.Config) (interfaces.EventPublisher, error) {
		if !cfg.Queue.Enabled {
			return &kafka.NoopPublisher{}, nil
		}
		return kafka.NewProducer(cfg)
	}); err != nil {
		return err
	}

	// 注册服务
	if err := container.Provide(services.NewBotService); err != nil {
		return err
	}

	if err := container.Provide(func(
		db interfaces.DatabaseInterface,
		store knowledge.VectorStore,
		embedder knowledge.Embedder,
		chunker *knowledge.Chunker,
		retriever *knowledge.Retriever,
		source interfaces.DocumentSource,
		publisher interfaces.EventPublisher,
		cfg *config.Config,
	) *services.IngestService {
		return services.NewIngestService(db, store, embedder, chunker, retriever, source, publisher, cfg.Knowledge.InsertBatchSize)
	}); err != nil {
		return err
	}

	if err := container.Provide(services.NewChatService); err != nil {
		return err
	}

	return nil
}
