package services

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/aihub/chatbot-go/internal/errors"
	"github.com/aihub/chatbot-go/internal/interfaces"
	"github.com/aihub/chatbot-go/internal/knowledge"
	"github.com/aihub/chatbot-go/internal/logger"
	"github.com/aihub/chatbot-go/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BotService 机器人管理服务
type BotService struct {
	db        interfaces.DatabaseInterface
	store     knowledge.VectorStore
	retriever *knowledge.Retriever
	publisher interfaces.EventPublisher
}

// NewBotService 创建机器人服务
func NewBotService(db interfaces.DatabaseInterface, store knowledge.VectorStore, retriever *knowledge.Retriever, publisher interfaces.EventPublisher) *BotService {
	return &BotService{
		db:        db,
		store:     store,
		retriever: retriever,
		publisher: publisher,
	}
}

// CreateBot 创建机器人
func (s *BotService) CreateBot(ctx context.Context, ownerID uint, name, description string) (*models.Bot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewInvalidInputError("name", "bot name is required")
	}

	now := time.Now()
	bot := &models.Bot{
		BotID:       uuid.New().String(),
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		Status:      "active",
		CreateTime:  now,
		UpdateTime:  now,
	}
	if err := s.db.GetDB().WithContext(ctx).Create(bot).Error; err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to create bot").WithCause(err)
	}

	logger.GetLogger().Info("创建机器人",
		zap.String("bot_id", bot.BotID),
		zap.Uint("owner_id", ownerID))
	return bot, nil
}

// ListBots 列出用户的机器人
func (s *BotService) ListBots(ctx context.Context, ownerID uint) ([]models.Bot, error) {
	var bots []models.Bot
	err := s.db.GetDB().WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("create_time DESC").
		Find(&bots).Error
	if err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to list bots").WithCause(err)
	}
	return bots, nil
}

// GetBot 获取机器人
func (s *BotService) GetBot(ctx context.Context, botID string) (*models.Bot, error) {
	var bot models.Bot
	err := s.db.GetDB().WithContext(ctx).Where("bot_id = ?", botID).First(&bot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("bot")
		}
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to get bot").WithCause(err)
	}
	return &bot, nil
}

// VerifyBotAccess 校验用户对机器人的访问权限
func (s *BotService) VerifyBotAccess(ctx context.Context, botID string, userID uint) (*models.Bot, error) {
	bot, err := s.GetBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.OwnerID != userID {
		return nil, apperrors.NewAccessDeniedError()
	}
	return bot, nil
}

// DeleteBot 删除机器人及其文档登记，并级联删除向量集合
func (s *BotService) DeleteBot(ctx context.Context, botID string, userID uint) error {
	bot, err := s.VerifyBotAccess(ctx, botID, userID)
	if err != nil {
		return err
	}

	err = s.db.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("bot_id = ?", botID).Delete(&models.BotDocument{}).Error; err != nil {
			return err
		}
		if err := tx.Where("bot_id = ?", botID).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Delete(bot).Error
	})
	if err != nil {
		return apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to delete bot").WithCause(err)
	}

	// 集合删除幂等，失败不回滚元数据删除
	if err := s.store.DropCollection(ctx, s.retriever.CollectionName(botID)); err != nil {
		logger.GetLogger().Warn("删除向量集合失败",
			zap.String("bot_id", botID),
			zap.Error(err))
	}

	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, "bot.deleted", map[string]interface{}{
			"bot_id":  botID,
			"user_id": userID,
		})
	}

	logger.GetLogger().Info("删除机器人", zap.String("bot_id", botID))
	return nil
}
