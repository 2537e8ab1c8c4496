package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/aihub/chatbot-go/internal/errors"
	"github.com/aihub/chatbot-go/internal/interfaces"
	"github.com/aihub/chatbot-go/internal/knowledge"
	"github.com/aihub/chatbot-go/internal/logger"
	"github.com/aihub/chatbot-go/internal/metrics"
	"github.com/aihub/chatbot-go/internal/models"
	"go.uber.org/zap"
)

// 固定回复文案
const (
	msgNoInformation = "I don't have any relevant information to answer your question."
	msgNotRelevant   = "I found some related information, but it wasn't relevant enough to provide a good answer."
	msgGenerateError = "I apologize, but I'm having trouble generating a response at the moment. Please try again later."
	msgEmptyAnswer   = "I'm having trouble generating a response right now. Please try again."

	defaultBotPersona = "an AI assistant"
)

const answerPromptTemplate = `Based on the following excerpts from a document, please answer the user's question.
You are %s, a helpful AI assistant.
Only use information from the provided context.
If the context doesn't contain relevant information, say so.
Keep your response concise and focused on the question.

Context:
%s

User Question: %s`

// ChatAnswer 一次问答的结果
type ChatAnswer struct {
	Answer     string                      `json:"answer"`
	Chunks     []knowledge.RetrievalResult `json:"chunks,omitempty"`
	FromModel  bool                        `json:"from_model"`
	RawMatches int                         `json:"raw_matches"`
}

// ChatService 问答服务：检索上下文、拼装提示词并生成答案
type ChatService struct {
	db        interfaces.DatabaseInterface
	retriever *knowledge.Retriever
	generator knowledge.Generator
	publisher interfaces.EventPublisher
}

// NewChatService 创建问答服务
func NewChatService(db interfaces.DatabaseInterface, retriever *knowledge.Retriever, generator knowledge.Generator, publisher interfaces.EventPublisher) *ChatService {
	return &ChatService{
		db:        db,
		retriever: retriever,
		generator: generator,
		publisher: publisher,
	}
}

// ComposePrompt 由上下文块与问题拼装提示词
func ComposePrompt(botName, question string, chunks []knowledge.RetrievalResult) string {
	persona := strings.TrimSpace(botName)
	if persona == "" {
		persona = defaultBotPersona
	}

	lines := make([]string, len(chunks))
	for i, chunk := range chunks {
		lines[i] = "- " + chunk.Text
	}
	contextBlock := strings.Join(lines, "\n\n")

	return fmt.Sprintf(answerPromptTemplate, persona, contextBlock, question)
}

// Answer 回答用户针对某机器人的提问
//
// 上下文为空时直接返回固定文案，不调用生成模型：原始命中为0说明
// 知识库没有任何相关内容，命中非空但全部被过滤说明相关度不足。
// 向量化或向量存储故障降级为无上下文路径，不把底层错误抛给用户。
// 生成失败（重试后）返回道歉文案。
func (s *ChatService) Answer(ctx context.Context, bot *models.Bot, userID uint, question string) (*ChatAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.NewInvalidInputError("question", "question is empty")
	}

	window, err := s.retriever.RetrieveContext(ctx, bot.BotID, question)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeEmbeddingFailed) ||
			apperrors.IsCode(err, apperrors.ErrCodeStoreUnavailable) {
			// 检索链路故障时降级回答，而不是把错误暴露给用户
			logger.GetLogger().Error("检索失败，降级为无上下文回答",
				zap.String("bot_id", bot.BotID),
				zap.Error(err))
			window = knowledge.ContextWindow{}
		} else {
			return nil, err
		}
	}

	answer := &ChatAnswer{
		Chunks:     window.Chunks,
		RawMatches: window.RawMatches,
	}

	if len(window.Chunks) == 0 {
		if window.RawMatches > 0 {
			answer.Answer = msgNotRelevant
		} else {
			answer.Answer = msgNoInformation
		}
		s.recordTurn(ctx, bot.BotID, userID, question, answer.Answer)
		return answer, nil
	}

	prompt := ComposePrompt(bot.Name, question, window.Chunks)

	// 每次提问只发起一次生成调用，瞬时失败的重试在生成器适配器内部
	generated, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		metrics.GenerationFailures.Inc()
		logger.GetLogger().Error("生成答案失败",
			zap.String("bot_id", bot.BotID),
			zap.Error(err))
		answer.Answer = msgGenerateError
		s.recordTurn(ctx, bot.BotID, userID, question, answer.Answer)
		return answer, nil
	}

	if strings.TrimSpace(generated) == "" {
		answer.Answer = msgEmptyAnswer
	} else {
		answer.Answer = generated
		answer.FromModel = true
	}

	s.recordTurn(ctx, bot.BotID, userID, question, answer.Answer)

	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, "chat.answered", map[string]interface{}{
			"bot_id":      bot.BotID,
			"user_id":     userID,
			"from_model":  answer.FromModel,
			"chunks_used": len(window.Chunks),
		})
	}

	return answer, nil
}

// recordTurn 持久化一轮问答，失败仅记录日志
func (s *ChatService) recordTurn(ctx context.Context, botID string, userID uint, question, answer string) {
	if s.db == nil {
		return
	}

	now := time.Now()
	turns := []models.ChatMessage{
		{BotID: botID, UserID: userID, Role: "user", Content: question, CreateTime: now},
		{BotID: botID, UserID: userID, Role: "assistant", Content: answer, CreateTime: now},
	}
	if err := s.db.GetDB().WithContext(ctx).Create(&turns).Error; err != nil {
		logger.GetLogger().Warn("保存聊天记录失败",
			zap.String("bot_id", botID),
			zap.Error(err))
	}
}

// History 机器人最近的聊天记录，按时间升序返回
func (s *ChatService) History(ctx context.Context, botID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	var turns []models.ChatMessage
	err := s.db.GetDB().WithContext(ctx).
		Where("bot_id = ?", botID).
		Order("message_id DESC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to load chat history").WithCause(err)
	}

	// 反转为时间升序
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
