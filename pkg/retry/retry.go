package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/harrisonrobin/sheetsync/pkg/syncerr"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
)

// Governor retries rate-limited remote calls with exponential backoff.
// Only errors for which syncerr.IsRateLimited holds are retried; anything
// else is returned on the spot.
type Governor struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// Sleep waits for d or until ctx is done. Defaults to a timer-based wait.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter returns the random part added to each delay. Defaults to [0, BaseDelay).
	Jitter func(base time.Duration) time.Duration

	Log logrus.FieldLogger
}

// New returns a Governor with the default sleep and jitter.
func New(maxAttempts int, baseDelay time.Duration, log logrus.FieldLogger) *Governor {
	return &Governor{MaxAttempts: maxAttempts, BaseDelay: baseDelay, Log: log}
}

// Execute runs fn until it succeeds, fails with a non rate-limit error, or
// MaxAttempts attempts have all been rate limited. A nil Governor uses the
// defaults.
func (g *Governor) Execute(ctx context.Context, op string, fn func(context.Context) error) error {
	if g == nil {
		g = &Governor{}
	}
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !syncerr.IsRateLimited(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		delay := g.Delay(attempt) + g.jitter()
		if g.Log != nil {
			g.Log.WithFields(logrus.Fields{
				"op":      op,
				"attempt": attempt + 1,
				"delay":   delay,
			}).Warn("rate limited, backing off")
		}
		if serr := g.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return syncerr.Errorf(syncerr.KindRetryExhausted, op, "gave up after %d attempts: %w", attempts, err)
}

// Delay is the pre-jitter wait after the given 0-based attempt: BaseDelay * 2^attempt.
func (g *Governor) Delay(attempt int) time.Duration {
	base := g.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	return base << uint(attempt)
}

func (g *Governor) jitter() time.Duration {
	if g.Jitter != nil {
		return g.Jitter(g.BaseDelay)
	}
	if g.BaseDelay <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(g.BaseDelay)))
}

func (g *Governor) sleep(ctx context.Context, d time.Duration) error {
	if g.Sleep != nil {
		return g.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do is Execute for calls that return a value.
func Do[T any](ctx context.Context, g *Governor, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := g.Execute(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
