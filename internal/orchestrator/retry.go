package orchestrator

import (
	"context"
	"time"

	"github.com/dusk-indust/mailmerge/internal/merge"
	"go.uber.org/zap"
)

// retryPolicy bounds adapter calls in time and in attempts.
type retryPolicy struct {
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger
}

// do runs fn under a per-call timeout, retrying transient failures with
// linear backoff. It stops early when ctx is done and returns the last error.
func (p retryPolicy) do(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err = fn(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !merge.IsTransient(err) || attempt == p.maxAttempts {
			return err
		}

		wait := p.backoff * time.Duration(attempt)
		p.logger.Debug("retrying transient failure",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
