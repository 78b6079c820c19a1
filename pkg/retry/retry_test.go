package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harrisonrobin/sheetsync/pkg/syncerr"
)

func newTestGovernor(delays *[]time.Duration) *Governor {
	return &Governor{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		Sleep: func(ctx context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
		Jitter: func(time.Duration) time.Duration { return 0 },
	}
}

func TestExecuteSucceedsOnFifthAttempt(t *testing.T) {
	var delays []time.Duration
	g := newTestGovernor(&delays)

	calls := 0
	err := g.Execute(context.Background(), "write cell", func(context.Context) error {
		calls++
		if calls < 5 {
			return syncerr.New(syncerr.KindRateLimited, "write cell", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if calls != 5 {
		t.Errorf("expected 5 attempts, got %d", calls)
	}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %d (%v)", len(want), len(delays), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, want[i], delays[i])
		}
		if i > 0 && delays[i] <= delays[i-1] {
			t.Errorf("delays should strictly increase, got %v", delays)
		}
	}
}

func TestExecuteExhausts(t *testing.T) {
	var delays []time.Duration
	g := newTestGovernor(&delays)

	calls := 0
	err := g.Execute(context.Background(), "list events", func(context.Context) error {
		calls++
		return syncerr.New(syncerr.KindRateLimited, "list events", nil)
	})
	if !errors.Is(err, syncerr.ErrRetryExhausted) {
		t.Fatalf("expected RetryExhausted, got %v", err)
	}
	if calls != 5 {
		t.Errorf("expected exactly 5 attempts, got %d", calls)
	}
	if len(delays) != 4 {
		t.Errorf("expected 4 sleeps, got %d", len(delays))
	}
}

func TestExecuteDoesNotRetryOtherErrors(t *testing.T) {
	var delays []time.Duration
	g := newTestGovernor(&delays)

	boom := errors.New("connection reset")
	calls := 0
	err := g.Execute(context.Background(), "delete event", func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected the original error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
	if len(delays) != 0 {
		t.Errorf("expected no sleeps, got %v", delays)
	}
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	g := &Governor{MaxAttempts: 5, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := g.Execute(ctx, "read range", func(context.Context) error {
		calls++
		return syncerr.New(syncerr.KindRateLimited, "read range", nil)
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestDoReturnsValue(t *testing.T) {
	var delays []time.Duration
	g := newTestGovernor(&delays)

	calls := 0
	v, err := Do(context.Background(), g, "read range", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", syncerr.New(syncerr.KindRateLimited, "read range", nil)
		}
		return "rows", nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if v != "rows" {
		t.Errorf("expected 'rows', got %q", v)
	}
}
