package knowledge

import (
	"strings"

	apperrors "github.com/aihub/chatbot-go/internal/errors"
)

// Chunk 表示分块后的文本结构
type Chunk struct {
	Text           string
	Index          int
	SourceDocument string
	ByteLength     int
}

// Chunker 文本分块器，按固定窗口重叠切分
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker 创建分块器；overlap >= size 会导致窗口无法推进，直接拒绝
func NewChunker(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, apperrors.NewConfigurationError("chunk size must be positive")
	}
	if overlap < 0 {
		return nil, apperrors.NewConfigurationError("chunk overlap must not be negative")
	}
	if overlap >= chunkSize {
		return nil, apperrors.NewConfigurationError("chunk overlap must be less than chunk size")
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
	}, nil
}

// Split 将文档文本切分为多个chunk
//
// 每个窗口长chunkSize个字符，起点每次前移 chunkSize-chunkOverlap，
// 相邻窗口共享 chunkOverlap 个字符；窗口去除首尾空白，空窗口丢弃，
// 末尾窗口可以短于chunkSize。同样的输入总是产生同样的切分。
func (c *Chunker) Split(sourceDocument, text string) []Chunk {
	runes := []rune(text)
	step := c.chunkSize - c.chunkOverlap

	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunkText := strings.TrimSpace(string(runes[start:end]))
		if chunkText == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Text:           chunkText,
			Index:          len(chunks),
			SourceDocument: sourceDocument,
			ByteLength:     len(chunkText),
		})
	}

	return chunks
}
