package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type throttled struct {
	after time.Duration
	ok    bool
}

func (throttled) Error() string                        { return "429 too many requests" }
func (t throttled) RetryAfter() (time.Duration, bool) { return t.after, t.ok }

func recordingSleeper(delays *[]time.Duration) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestDoRetriesWithExponentialBackoff(t *testing.T) {
	var delays []time.Duration
	cfg := DefaultConfig()
	cfg.Sleeper = recordingSleeper(&delays)

	calls := 0
	err := Do(context.Background(), cfg, func(context.Context, int) error {
		calls++
		if calls < 4 {
			return errors.New("503")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	var delays []time.Duration
	cfg := DefaultConfig()
	cfg.Sleeper = recordingSleeper(&delays)
	boom := errors.New("boom")

	calls := 0
	err := Do(context.Background(), cfg, func(context.Context, int) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, calls)
	assert.Len(t, delays, 4)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	var delays []time.Duration
	cfg := DefaultConfig()
	cfg.Sleeper = recordingSleeper(&delays)
	bad := errors.New("422 invalid input")

	calls := 0
	err := Do(context.Background(), cfg, func(context.Context, int) error {
		calls++
		return Permanent(bad)
	})
	assert.Equal(t, bad, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, DefaultConfig(), func(context.Context, int) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestNextDelayRateLimited(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name    string
		attempt int
		err     error
		want    time.Duration
	}{
		{name: "plain error", attempt: 1, err: errors.New("x"), want: time.Second},
		{name: "hint larger than backoff", attempt: 1, err: throttled{after: 30 * time.Second, ok: true}, want: 30 * time.Second},
		{name: "hint smaller than backoff", attempt: 4, err: throttled{after: time.Second, ok: true}, want: 8 * time.Second},
		{name: "no hint uses floor", attempt: 2, err: throttled{}, want: 10 * time.Second},
		{name: "backoff above floor", attempt: 5, err: throttled{}, want: 16 * time.Second},
		{name: "capped", attempt: 10, err: errors.New("x"), want: 60 * time.Second},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NextDelay(cfg, tc.attempt, tc.err))
		})
	}
}

func TestBackoffBoundsProperty(t *testing.T) {
	cfg := DefaultConfig()
	properties := gopter.NewProperties(nil)

	properties.Property("backoff stays within base and max", prop.ForAll(
		func(attempt int) bool {
			d := NextDelay(cfg, attempt, errors.New("x"))
			return d >= cfg.BaseDelay && d <= cfg.MaxDelay
		},
		gen.IntRange(1, 64),
	))
	properties.Property("backoff never shrinks", prop.ForAll(
		func(attempt int) bool {
			return NextDelay(cfg, attempt+1, errors.New("x")) >= NextDelay(cfg, attempt, errors.New("x"))
		},
		gen.IntRange(1, 64),
	))
	properties.Property("throttled delay is at least the floor", prop.ForAll(
		func(attempt int) bool {
			return NextDelay(cfg, attempt, throttled{}) >= cfg.RateLimitFloor
		},
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}
