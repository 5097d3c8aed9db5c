package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// MaxThrottleWait is the longest a caller will block in Wait before aborting.
const MaxThrottleWait = 60 * time.Second

// Throttle maps usage pressure on an operation to suggested delays so the
// companion degrades gracefully instead of hitting hard limits.
type Throttle struct {
	limiter *Limiter
}

func NewThrottle(l *Limiter) *Throttle {
	return &Throttle{limiter: l}
}

// Delay returns how long the caller should pause before performing op.
//
//	u < 0.5        → 0
//	0.5 ≤ u < 0.8  → 500ms
//	0.8 ≤ u < 0.95 → 2s
//	u ≥ 0.95       → resetIn/remaining (or resetIn when nothing remains)
func (t *Throttle) Delay(op string) time.Duration {
	_, remaining, resetIn := t.limiter.Check(op, 1)
	limit, ok := t.limiter.limitFor(op)
	if !ok || limit <= 0 {
		return 0
	}

	u := 1 - float64(remaining)/float64(limit)
	switch {
	case u < 0.5:
		return 0
	case u < 0.8:
		return 500 * time.Millisecond
	case u < 0.95:
		return 2 * time.Second
	default:
		if remaining > 0 {
			return resetIn / time.Duration(remaining)
		}
		return resetIn
	}
}

// Warning returns a user-facing warning string when usage crosses the 0.75,
// 0.9, or 1.0 thresholds, and "" otherwise.
func (t *Throttle) Warning(op string) string {
	_, remaining, resetIn := t.limiter.Check(op, 1)
	limit, ok := t.limiter.limitFor(op)
	if !ok || limit <= 0 {
		return ""
	}

	u := 1 - float64(remaining)/float64(limit)
	switch {
	case u >= 1.0:
		return fmt.Sprintf("%s limit reached; resets in %s", op, resetIn.Round(time.Second))
	case u >= 0.9:
		return fmt.Sprintf("%s usage at %.0f%%; slowing down", op, u*100)
	case u >= 0.75:
		return fmt.Sprintf("%s usage at %.0f%%", op, u*100)
	}
	return ""
}

// Wait blocks for the suggested delay. It aborts with an error rather than
// waiting longer than MaxThrottleWait, and respects context cancellation.
func (t *Throttle) Wait(ctx context.Context, op string) error {
	d := t.Delay(op)
	if d <= 0 {
		return nil
	}
	if d > MaxThrottleWait {
		return fmt.Errorf("throttle wait for %s would exceed %s (suggested %s)", op, MaxThrottleWait, d.Round(time.Second))
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (l *Limiter) limitFor(op string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.limits[op]
	return n, ok
}
