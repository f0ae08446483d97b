package render

import (
	"context"
	"log/slog"
	"time"

	"github.com/novvoo/go-pdffill/pkg/logging"
)

// RetryPolicy retries I/O at the backend boundary with exponential backoff
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
	Backoff float64
}

// DefaultRetry returns 2 retries starting at 200ms, doubling each time
func DefaultRetry() RetryPolicy {
	return RetryPolicy{Retries: 2, Delay: 200 * time.Millisecond, Backoff: 2.0}
}

// Do runs fn until it succeeds, the retries are used up or ctx is done.
// The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	logger = logging.OrNop(logger)
	delay := p.Delay
	var err error
	for attempt := 0; ; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= p.Retries {
			return err
		}

		logger.Warn("retrying", "op", op, "attempt", attempt+1, "delay", delay, "error", err)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if p.Backoff > 1 {
			delay = time.Duration(float64(delay) * p.Backoff)
		}
	}
}
