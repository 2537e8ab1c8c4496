package database

import (
	"fmt"

	"github.com/aihub/chatbot-go/internal/config"
	"github.com/aihub/chatbot-go/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database 数据库包装器，实现interfaces.DatabaseInterface
type Database struct {
	db *gorm.DB
}

// NewDatabase 连接PostgreSQL并迁移元数据表
func NewDatabase(cfg *config.Config) (*Database, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	logMode := logger.Warn
	if cfg.Server.Env == "development" {
		logMode = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 获取底层的sql.DB设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &Database{db: db}, nil
}

// NewDatabaseFromGorm 从现有gorm连接构建包装器（测试用）
func NewDatabaseFromGorm(db *gorm.DB) *Database {
	return &Database{db: db}
}

// autoMigrate 自动迁移元数据表（按依赖顺序）
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Bot{},
		&models.BotDocument{},
		&models.ChatMessage{},
		&models.BotCollection{},
		&models.BotEmbedding{},
	)
}

// GetDB 获取gorm连接
func (d *Database) GetDB() *gorm.DB {
	return d.db
}

// Close 关闭数据库连接
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck 数据库健康检查
func (d *Database) HealthCheck() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
