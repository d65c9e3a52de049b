// Package retry re-runs work that failed for a transient reason: a lost
// deadlock, a lock timeout, a dropped connection or a broker leadership change.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0; 0.1 spreads each delay by +/-10%
	MaxSameErrorType int     // after N consecutive failures of one class the error is treated as permanent; 0 disables

	// Retryable, when set, marks additional errors as transient in
	// DoIfRetryable, e.g. a driver's error-number classification.
	Retryable func(error) bool

	// OnRetry, when set, is called before each wait with the 1-based number of
	// the attempt that failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns defaults for SQL batches that lose a deadlock or lock wait:
// 3 retries with 100ms initial delay, capped at 5s, doubling each time, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

func (c *Config) isRetryable(err error) bool {
	if c.Retryable != nil && c.Retryable(err) {
		return true
	}
	return IsRetryable(err)
}

// backoff tracks the delay between attempts of one retry loop.
type backoff struct {
	cfg   *Config
	delay time.Duration
}

func newBackoff(cfg *Config) *backoff {
	return &backoff{cfg: cfg, delay: cfg.InitialDelay}
}

// wait sleeps before the next attempt and grows the delay. It returns the
// context error when ctx ends first.
func (b *backoff) wait(ctx context.Context, attempt int, err error) error {
	d := b.jittered()
	if b.cfg.OnRetry != nil {
		b.cfg.OnRetry(attempt, err, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	if b.cfg.Multiplier > 0 {
		b.delay = time.Duration(float64(b.delay) * b.cfg.Multiplier)
	}
	if b.cfg.MaxDelay > 0 && b.delay > b.cfg.MaxDelay {
		b.delay = b.cfg.MaxDelay
	}
	return nil
}

// jittered spreads the current delay by +/- JitterFactor.
func (b *backoff) jittered() time.Duration {
	if b.cfg.JitterFactor <= 0 {
		return b.delay
	}
	jitter := float64(b.delay) * b.cfg.JitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(b.delay) + jitter)
}

// DoWithResult runs fn until it succeeds, retrying every error, and returns
// its result. The last result is returned alongside the last error.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	b := newBackoff(cfg)
	for attempt := 1; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if attempt > cfg.MaxRetries {
			return result, err
		}
		if werr := b.wait(ctx, attempt, err); werr != nil {
			return result, werr
		}
	}
}

// DoIfRetryable runs fn and retries it only while it fails with a transient
// error. Permanent errors are returned at once, and so is an error class that
// keeps repeating MaxSameErrorType times in a row.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	b := newBackoff(cfg)
	var lastClass string
	sameClass := 0
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !cfg.isRetryable(err) {
			return err
		}

		class := errorClass(err)
		if class == lastClass {
			sameClass++
		} else {
			lastClass, sameClass = class, 1
		}
		if cfg.MaxSameErrorType > 0 && sameClass >= cfg.MaxSameErrorType {
			return fmt.Errorf("repeated error (%d times, type=%s): %w", sameClass, class, err)
		}

		if attempt > cfg.MaxRetries {
			return err
		}
		if werr := b.wait(ctx, attempt, err); werr != nil {
			return werr
		}
	}
}

// RetryableError is implemented by errors that know whether they are transient.
type RetryableError interface {
	error
	IsRetryable() bool
}

// transientPatterns maps lower-case message fragments of transient failures
// to the class used to detect repeats. Earlier entries win.
var transientPatterns = []struct {
	fragment string
	class    string
}{
	{"deadlock", "deadlock"},
	{"lock request time out", "lock_timeout"},
	{"connection refused", "connection"},
	{"connection reset", "connection"},
	{"broken pipe", "broken_pipe"},
	{"no such host", "dns"},
	{"temporary failure", "dns"},
	{"network is unreachable", "network"},
	{"i/o timeout", "timeout"},
	{"timeout", "timeout"},
	{"timed out", "timeout"},
	{"leader not available", "leader"},
	{"not leader for partition", "leader"},
}

// IsRetryable reports whether err is transient. An error implementing
// RetryableError decides for itself; otherwise the message is matched against
// known transient failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return errorClass(err) != "unknown"
}

func errorClass(err error) string {
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p.fragment) {
			return p.class
		}
	}
	return "unknown"
}
