package knowledge

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/aihub/chatbot-go/internal/errors"
	openai "github.com/sashabaranov/go-openai"
)

// Embedder 定义文本向量化接口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Ready() bool
}

// NoopEmbedder 默认占位实现
type NoopEmbedder struct{}

func (n *NoopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, apperrors.NewSystemError(apperrors.ErrCodeConfiguration, "embedding provider not configured")
}

func (n *NoopEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, apperrors.NewSystemError(apperrors.ErrCodeConfiguration, "embedding provider not configured")
}

func (n *NoopEmbedder) Dimensions() int {
	return 0
}

func (n *NoopEmbedder) Ready() bool {
	return false
}

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder 使用OpenAI Embedding API
type OpenAIEmbedder struct {
	client      *openai.Client
	model       string
	dimensions  int
	requestDims int
	timeout     time.Duration
}

// NewOpenAIEmbedder 创建OpenAI嵌入向量生成器；apiKey为空时退化为占位实现
//
// dimensions>0 且模型支持降维时（text-embedding-3系列），请求按指定
// 维度输出向量；否则使用模型的原生维度。
func NewOpenAIEmbedder(apiKey, model string, dimensions int, timeout time.Duration) Embedder {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopEmbedder{}
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	dims, ok := embeddingDimensions[model]
	if !ok {
		dims = 1536
	}

	requestDims := 0
	if dimensions > 0 && strings.HasPrefix(model, "text-embedding-3") {
		requestDims = dimensions
		dims = dimensions
	}

	return &OpenAIEmbedder{
		client:      openai.NewClient(apiKey),
		model:       model,
		dimensions:  dims,
		requestDims: requestDims,
		timeout:     timeout,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperrors.NewInvalidInputError("texts", "no texts to embed")
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, apperrors.NewInvalidInputError("texts", "text is empty")
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(e.model),
		Input:      texts,
		Dimensions: e.requestDims,
	})
	if err != nil {
		return nil, apperrors.NewEmbeddingError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, apperrors.NewEmbeddingError(nil).WithDetails("embedding response incomplete")
	}

	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vector := make([]float32, len(item.Embedding))
		copy(vector, item.Embedding)
		vectors[i] = vector
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) Ready() bool {
	return e.client != nil
}
