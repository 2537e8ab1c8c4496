package interfaces

import (
	"context"

	"gorm.io/gorm"
)

// DatabaseInterface 数据库接口
type DatabaseInterface interface {
	GetDB() *gorm.DB
	Close() error
	HealthCheck() error
}

// EventPublisher 事件发布接口
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
	Close() error
}

// DocumentSource 文档源接口，按对象键读写已提取的原始文本
type DocumentSource interface {
	FetchText(ctx context.Context, key string) (string, error)
	StoreText(ctx context.Context, key, text string) error
	Ready() bool
}
