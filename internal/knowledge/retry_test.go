package knowledge

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/aihub/chatbot-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry_NonRetryableFailsFast(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), "op", func() error {
		calls++
		return errors.New("permanent")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_RetryableRecovers(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), "op", func() error {
		calls++
		if calls == 1 {
			return apperrors.NewEmbeddingError(errors.New("transient"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := WithRetry(ctx, "op", func() error {
		calls++
		cancel()
		return apperrors.NewEmbeddingError(errors.New("transient"))
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
