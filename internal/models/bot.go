package models

import "time"

// User 用户
type User struct {
	UserID       uint      `gorm:"primaryKey;column:user_id" json:"user_id"`
	Username     string    `gorm:"size:100;uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"size:200;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreateTime   time.Time `gorm:"column:create_time" json:"create_time"`
	UpdateTime   time.Time `gorm:"column:update_time" json:"update_time"`
}

func (User) TableName() string {
	return "users"
}

// Bot 机器人，每个机器人对应向量存储中的一个独立集合
type Bot struct {
	BotID       string    `gorm:"primaryKey;column:bot_id;size:64" json:"bot_id"`
	Name        string    `gorm:"size:200;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	OwnerID     uint      `gorm:"column:owner_id;not null;index" json:"owner_id"`
	Owner       User      `gorm:"foreignKey:OwnerID" json:"-"`
	Status      string    `gorm:"size:20;default:active" json:"status"`
	CreateTime  time.Time `gorm:"column:create_time" json:"create_time"`
	UpdateTime  time.Time `gorm:"column:update_time" json:"update_time"`

	// 关系
	Documents []BotDocument `gorm:"foreignKey:BotID" json:"-"`
}

func (Bot) TableName() string {
	return "bots"
}

// BotDocument 机器人已摄取的文档登记
type BotDocument struct {
	DocumentID  string    `gorm:"primaryKey;column:document_id;size:64" json:"document_id"`
	BotID       string    `gorm:"column:bot_id;size:64;not null;index" json:"bot_id"`
	Filename    string    `gorm:"size:500;not null" json:"filename"`
	FileSize    int64     `gorm:"column:file_size;default:0" json:"file_size"`
	ChunkCount  int       `gorm:"column:chunk_count;default:0" json:"chunk_count"`
	StoragePath string    `gorm:"size:500" json:"storage_path"`
	Status      string    `gorm:"size:20;default:processing" json:"status"`
	CreateTime  time.Time `gorm:"column:create_time" json:"create_time"`
}

func (BotDocument) TableName() string {
	return "bot_documents"
}

// ChatMessage 聊天消息记录
type ChatMessage struct {
	MessageID  uint      `gorm:"primaryKey;column:message_id" json:"message_id"`
	BotID      string    `gorm:"column:bot_id;size:64;not null;index" json:"bot_id"`
	UserID     uint      `gorm:"column:user_id" json:"user_id"`
	Role       string    `gorm:"size:20;not null" json:"role"` // user, assistant
	Content    string    `gorm:"type:text;not null" json:"content"`
	CreateTime time.Time `gorm:"column:create_time" json:"create_time"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// BotCollection 向量集合登记（database 向量存储后端使用）
type BotCollection struct {
	Name       string    `gorm:"primaryKey;size:128" json:"name"`
	Dimension  int       `gorm:"not null" json:"dimension"`
	CreateTime time.Time `gorm:"column:create_time" json:"create_time"`
}

func (BotCollection) TableName() string {
	return "bot_collections"
}

// BotEmbedding 向量记录（database 向量存储后端使用）
type BotEmbedding struct {
	Seq        int64     `gorm:"primaryKey;autoIncrement;column:seq" json:"seq"`
	RecordID   string    `gorm:"column:record_id;size:64;uniqueIndex;not null" json:"record_id"`
	Collection string    `gorm:"size:128;not null;index" json:"collection"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	Embedding  string    `gorm:"type:json;not null" json:"embedding"`
	Metadata   string    `gorm:"type:json" json:"metadata"`
	CreateTime time.Time `gorm:"column:create_time" json:"create_time"`
}

func (BotEmbedding) TableName() string {
	return "bot_embeddings"
}
