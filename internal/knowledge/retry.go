package knowledge

import (
	"context"
	"time"

	apperrors "github.com/aihub/chatbot-go/internal/errors"
	"github.com/aihub/chatbot-go/internal/logger"
	"go.uber.org/zap"
)

const (
	maxRetryAttempts  = 3
	initialRetryDelay = time.Second
)

// WithRetry 带指数退避的重试执行，仅重试瞬时外部错误
//
// 最多尝试maxRetryAttempts次，退避从initialRetryDelay开始每次翻倍；
// 不可重试的错误立即返回，上下文取消时返回ctx.Err()。
func WithRetry(ctx context.Context, op string, fn func() error) error {
	delay := initialRetryDelay

	var err error
	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !apperrors.IsRetryable(err) {
			return err
		}
		if attempt == maxRetryAttempts {
			break
		}

		logger.GetLogger().Warn("操作失败，准备重试",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return err
}
