package execution

import (
	"context"
	"time"

	"BarPilot/internal/domain/models"
	drepo "BarPilot/internal/domain/repository"
)

// RetryExecutor decorates an Executor with bounded exponential backoff.
// Submission errors and timeouts are retried up to the attempt limit; the
// final failure surfaces as ExecutionRejected so the caller falls back to
// HOLD. A fill is never assumed.
type RetryExecutor struct {
	inner      drepo.Executor
	attempts   int
	backoffMin time.Duration
	backoffMax time.Duration
}

func NewRetryExecutor(inner drepo.Executor, attempts int, backoffMin, backoffMax time.Duration) *RetryExecutor {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryExecutor{inner: inner, attempts: attempts, backoffMin: backoffMin, backoffMax: backoffMax}
}

func (e *RetryExecutor) Submit(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	var lastErr error
	backoff := e.backoffMin

	for attempt := 1; attempt <= e.attempts; attempt++ {
		res, err := e.inner.Submit(ctx, req)
		if err == nil {
			// Explicit rejections are final: the venue answered.
			return res, nil
		}
		lastErr = err

		if attempt == e.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return models.OrderResult{}, &models.ExecutionRejected{
				EventID: req.EventID, Attempts: attempt, Reason: ctx.Err().Error(),
			}
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > e.backoffMax {
			backoff = e.backoffMax
		}
	}
	return models.OrderResult{}, &models.ExecutionRejected{
		EventID: req.EventID, Attempts: e.attempts, Reason: lastErr.Error(),
	}
}

var _ drepo.Executor = (*RetryExecutor)(nil)
