package httpretry

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"time"

	"go.uber.org/zap"
)

// Policy controls the exponential backoff applied between retry attempts.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	Jitter      time.Duration
}

// DefaultPolicy matches the upstream politeness settings used across the
// service: four attempts, 400ms base doubling up to 8s, up to 250ms jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		Base:        400 * time.Millisecond,
		Cap:         8 * time.Second,
		Jitter:      250 * time.Millisecond,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Base <= 0 {
		p.Base = 100 * time.Millisecond
	}
	if p.Cap <= 0 {
		p.Cap = p.Base
	}
	return p
}

// Delay computes the sleep before retrying after the given zero-based
// attempt: min(Cap, Base*2^attempt) plus uniform jitter.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 0 {
		attempt = 0
	}

	delay := p.Cap
	// Guard the shift: past 32 doublings the cap has long been reached.
	if attempt < 32 {
		d := p.Base << uint(attempt)
		if d > 0 && d < p.Cap {
			delay = d
		}
	}
	if p.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return delay
}

// Do runs fn with retries per the policy. A nil retryable classifier retries
// every failure; otherwise the first non-retryable error is returned as-is.
// The last error is returned once attempts are exhausted.
func Do(ctx context.Context, logger *zap.Logger, p Policy, retryable func(error) bool, fn func(context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	p = p.normalized()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Delay(attempt)
		logger.Warn("retrying after failure",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// IsRetryable classifies upstream failures: rate limiting and server-side
// statuses retry, transient transport errors retry, everything else is
// terminal. Context cancellation is never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return false
}

// JitterSleep pauses for a uniformly random duration in [min, max],
// honoring context cancellation. Used for the deliberate pauses between
// sibling upstream calls.
func JitterSleep(ctx context.Context, min, max time.Duration) error {
	if min < 0 {
		min = 0
	}
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
	}
	if d <= 0 {
		return nil
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
