package knowledge

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/aihub/chatbot-go/internal/errors"
	openai "github.com/sashabaranov/go-openai"
)

// Generator 定义答案生成接口
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Ready() bool
}

// NoopGenerator 默认占位实现
type NoopGenerator struct{}

func (n *NoopGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "", apperrors.NewSystemError(apperrors.ErrCodeConfiguration, "generation provider not configured")
}

func (n *NoopGenerator) Ready() bool {
	return false
}

// OpenAIGenerator 使用OpenAI Chat Completion生成答案
//
// 瞬时失败在适配器内部带退避重试，调用方每次提问只发起一次Generate。
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// NewOpenAIGenerator 创建OpenAI生成器；apiKey为空时退化为占位实现
func NewOpenAIGenerator(apiKey, model string, maxTokens int, temperature float64, timeout time.Duration) Generator {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopGenerator{}
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIGenerator{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
		timeout:     timeout,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", apperrors.NewInvalidInputError("prompt", "prompt is empty")
	}

	var content string
	err := WithRetry(ctx, "chat completion", func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		resp, err := g.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model: g.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   g.maxTokens,
			Temperature: g.temperature,
		})
		if err != nil {
			return apperrors.NewGenerationError(err)
		}
		if len(resp.Choices) == 0 {
			return apperrors.NewGenerationError(nil).WithDetails("no choices returned")
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (g *OpenAIGenerator) Ready() bool {
	return g.client != nil
}
