package knowledge

import (
	"strings"
	"testing"

	apperrors "github.com/aihub/chatbot-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunker_InvalidConfig(t *testing.T) {
	// 重叠不小于窗口大小时游标无法推进，必须拒绝
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{"零窗口", 0, 0},
		{"负窗口", -1, 0},
		{"负重叠", 10, -1},
		{"重叠等于窗口", 10, 10},
		{"重叠大于窗口", 10, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunker, err := NewChunker(tc.size, tc.overlap)
			assert.Nil(t, chunker)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfiguration))
		})
	}
}

func TestChunker_SplitOverlappingWindows(t *testing.T) {
	chunker, err := NewChunker(4, 1)
	require.NoError(t, err)

	chunks := chunker.Split("doc.txt", "abcdefghij")

	// 起点每次前移3，末尾窗口只剩一个字符
	require.Len(t, chunks, 4)
	assert.Equal(t, "abcd", chunks[0].Text)
	assert.Equal(t, "defg", chunks[1].Text)
	assert.Equal(t, "ghij", chunks[2].Text)
	assert.Equal(t, "j", chunks[3].Text)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, "doc.txt", chunk.SourceDocument)
	}
}

func TestChunker_SplitDeterministic(t *testing.T) {
	chunker, err := NewChunker(50, 10)
	require.NoError(t, err)

	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20)
	first := chunker.Split("a.txt", text)
	second := chunker.Split("a.txt", text)

	assert.Equal(t, first, second)
}

func TestChunker_SplitTrimsAndDropsEmpty(t *testing.T) {
	chunker, err := NewChunker(4, 1)
	require.NoError(t, err)

	// 纯空白窗口被丢弃，其余窗口去除首尾空白
	chunks := chunker.Split("b.txt", "ab      cd")
	for _, chunk := range chunks {
		assert.NotEmpty(t, chunk.Text)
		assert.Equal(t, strings.TrimSpace(chunk.Text), chunk.Text)
	}

	// 下标在丢弃后保持连续
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
	}
}

func TestChunker_SplitEmptyInput(t *testing.T) {
	chunker, err := NewChunker(500, 50)
	require.NoError(t, err)

	assert.Empty(t, chunker.Split("c.txt", ""))
	assert.Empty(t, chunker.Split("c.txt", "   \n\t  "))
}

func TestChunker_SplitShortInput(t *testing.T) {
	chunker, err := NewChunker(500, 50)
	require.NoError(t, err)

	chunks := chunker.Split("d.txt", "hello world")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Text)
}

func TestChunker_SplitMultibyte(t *testing.T) {
	chunker, err := NewChunker(4, 1)
	require.NoError(t, err)

	// 窗口按字符计数而不是字节
	chunks := chunker.Split("e.txt", "一二三四五六七")
	require.Len(t, chunks, 3)
	assert.Equal(t, "一二三四", chunks[0].Text)
	assert.Equal(t, "四五六七", chunks[1].Text)
	assert.Equal(t, "七", chunks[2].Text)
}
