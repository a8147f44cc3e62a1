package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Config configures retry behaviour.
type Config struct {
	MaxAttempts    int           // attempts including the first call
	BaseDelay      time.Duration // delay before the second attempt
	MaxDelay       time.Duration // cap for the exponential part
	Multiplier     float64
	RateLimitFloor time.Duration // minimum wait after a throttled call without a hint
	Sleeper        Sleeper
	Logger         *zerolog.Logger
}

// DefaultConfig returns the provider retry policy: 1s, 2s, 4s, 8s, max 60s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		BaseDelay:      time.Second,
		MaxDelay:       60 * time.Second,
		Multiplier:     2,
		RateLimitFloor: 10 * time.Second,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RateLimited is implemented by errors caused by upstream throttling.
type RateLimited interface {
	RetryAfter() (time.Duration, bool)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Func is one attempt; attempt starts at 1.
type Func func(ctx context.Context, attempt int) error

// Do runs fn until it succeeds, returns a permanent error, the context is
// done, or the attempts are exhausted.
func Do(ctx context.Context, cfg Config, fn Func) error {
	cfg = cfg.withDefaults()
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.Debug().Int("attempts", attempt).Msg("retry: succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			var p *permanentError
			errors.As(err, &p)
			return p.err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := NextDelay(cfg, attempt, err)
		logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("delay", delay).
			Msg("retry: attempt failed")

		if err := cfg.Sleeper(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("retry: gave up after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// NextDelay returns the wait before attempt+1 given the error of attempt.
func NextDelay(cfg Config, attempt int, err error) time.Duration {
	cfg = cfg.withDefaults()
	delay := backoff(cfg, attempt)

	var rl RateLimited
	if errors.As(err, &rl) {
		hint, ok := rl.RetryAfter()
		if !ok {
			hint = cfg.RateLimitFloor
		}
		if hint > delay {
			delay = hint
		}
	}
	return delay
}

func backoff(cfg Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = def.Multiplier
	}
	if c.RateLimitFloor <= 0 {
		c.RateLimitFloor = def.RateLimitFloor
	}
	if c.Sleeper == nil {
		c.Sleeper = SleepContext
	}
	return c
}
