package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// RetryConfig bounds how many times a rate-limited operation is attempted.
// Zero means the operation runs once and is never retried.
type RetryConfig struct {
	MaxRetries int
}

// Limited is a result that may report a rate limit.
type Limited interface {
	IsRateLimited() bool
	RetryDelay() time.Duration // 0 when the backend gave no hint
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type retryOptions struct {
	sleep  SleepFunc
	logger *slog.Logger
}

// Option configures Do.
type Option func(*retryOptions)

// WithSleep overrides the wait between attempts (for testing).
func WithSleep(fn SleepFunc) Option {
	return func(o *retryOptions) {
		o.sleep = fn
	}
}

// WithLogger sets the logger used to report waits.
func WithLogger(l *slog.Logger) Option {
	return func(o *retryOptions) {
		o.logger = l
	}
}

// Do runs op until it returns a result that is not rate-limited, or until
// cfg.MaxRetries attempts have been made. The final result is returned
// as-is, so callers must still check IsRateLimited on it.
//
// An error from op is returned immediately without retrying. If ctx is
// cancelled while waiting, the last result is returned with ctx.Err().
func Do[T Limited](ctx context.Context, cfg RetryConfig, label string, op func(context.Context) (T, error), opts ...Option) (T, error) {
	o := retryOptions{sleep: Sleep, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	attempt := 0
	for {
		res, err := op(ctx)
		if err != nil {
			return res, err
		}
		if !res.IsRateLimited() {
			return res, nil
		}

		attempt++
		if attempt >= cfg.MaxRetries {
			o.logger.Warn("rate limited, retries exhausted",
				"label", label,
				"attempts", attempt,
			)
			return res, nil
		}

		delay := res.RetryDelay()
		if delay <= 0 {
			delay = DefaultDelay
		}
		o.logger.Warn("rate limited, waiting before retry",
			"label", label,
			"attempt", attempt,
			"max_retries", cfg.MaxRetries,
			"delay", delay.Round(time.Second).String(),
			"resume_at", time.Now().Add(delay).Format(time.Kitchen),
		)

		if err := o.sleep(ctx, delay); err != nil {
			return res, err
		}
	}
}
