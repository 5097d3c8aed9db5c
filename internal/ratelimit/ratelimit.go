// Package ratelimit implements the persistent per-operation usage and cost
// accountant with lazy window resets and a graceful-degradation throttle.
package ratelimit

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/nextlevelbuilder/inkling/internal/state"
)

const (
	// StateFile is the snapshot written under the state directory.
	StateFile = "rate_limits.json"

	// DefaultPeriod is the counter window when none is configured for an op.
	DefaultPeriod = 24 * time.Hour

	dailyCostPeriod   = 24 * time.Hour
	monthlyCostPeriod = 30 * 24 * time.Hour
)

// Usage is one operation's windowed counter.
type Usage struct {
	Count       int       `json:"count"`
	PeriodStart time.Time `json:"period_start"`
	PeriodSecs  int       `json:"period_seconds"`
}

// Costs accumulates spend in USD across three lazy-reset windows.
type Costs struct {
	Daily        float64   `json:"daily"`
	Monthly      float64   `json:"monthly"`
	Total        float64   `json:"total"`
	DailyStart   time.Time `json:"daily_start"`
	MonthlyStart time.Time `json:"monthly_start"`
}

type snapshot struct {
	Usage map[string]*Usage `json:"usage"`
	Costs Costs             `json:"costs"`
}

// Limiter tracks per-op windowed counters and costs. All window resets are
// lazy: they happen on the next read or write after the window expires.
// Persistence failures are swallowed; in-memory state stays authoritative.
type Limiter struct {
	mu     sync.Mutex
	usage  map[string]*Usage
	limits map[string]int
	costs  Costs
	path   string
	now    func() time.Time
}

// New creates a limiter persisting to dir. A corrupt or missing snapshot
// resets counters to zero.
func New(dir string) *Limiter {
	l := &Limiter{
		usage:  make(map[string]*Usage),
		limits: make(map[string]int),
		now:    time.Now,
	}
	if dir != "" {
		l.path = filepath.Join(dir, StateFile)
		var snap snapshot
		if err := state.LoadJSON(l.path, &snap); err == nil {
			if snap.Usage != nil {
				l.usage = snap.Usage
			}
			l.costs = snap.Costs
		}
	}
	return l
}

// SetLimit configures the max count per window for an op.
func (l *Limiter) SetLimit(op string, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[op] = n
}

// SetPeriod configures the window length for an op.
func (l *Limiter) SetPeriod(op string, period time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := l.ensure(op)
	u.PeriodSecs = int(period.Seconds())
}

// Check reports whether n more uses of op are allowed, together with the
// remaining allowance and the time until the window resets. Ops without a
// configured limit are always allowed with remaining -1.
func (l *Limiter) Check(op string, n int) (allowed bool, remaining int, resetIn time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.ensure(op)
	l.maybeReset(u)

	limit, ok := l.limits[op]
	resetIn = l.resetIn(u)
	if !ok {
		return true, -1, resetIn
	}
	remaining = limit - u.Count
	if remaining < 0 {
		remaining = 0
	}
	return u.Count+n <= limit, remaining, resetIn
}

// Record counts n uses of op and persists the snapshot.
func (l *Limiter) Record(op string, n int) {
	l.mu.Lock()
	u := l.ensure(op)
	l.maybeReset(u)
	u.Count += n
	l.mu.Unlock()
	l.save()
}

// RecordCost accumulates spend for op into the daily/monthly/total ledgers.
func (l *Limiter) RecordCost(op string, usd float64) {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.costs.DailyStart) >= dailyCostPeriod {
		l.costs.Daily = 0
		l.costs.DailyStart = now
	}
	if now.Sub(l.costs.MonthlyStart) >= monthlyCostPeriod {
		l.costs.Monthly = 0
		l.costs.MonthlyStart = now
	}
	l.costs.Daily += usd
	l.costs.Monthly += usd
	l.costs.Total += usd
	l.mu.Unlock()

	slog.Debug("ratelimit.cost_recorded", "op", op, "usd", usd)
	l.save()
}

// GetUsage returns a copy of the op's counter after applying lazy reset.
func (l *Limiter) GetUsage(op string) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := l.ensure(op)
	l.maybeReset(u)
	return *u
}

// GetCosts returns the current cost ledger.
func (l *Limiter) GetCosts() Costs {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.costs
}

// Reset zeroes one op's counter, or all counters when op is empty.
func (l *Limiter) Reset(op string) {
	l.mu.Lock()
	if op == "" {
		for _, u := range l.usage {
			u.Count = 0
			u.PeriodStart = l.now()
		}
	} else if u, ok := l.usage[op]; ok {
		u.Count = 0
		u.PeriodStart = l.now()
	}
	l.mu.Unlock()
	l.save()
}

func (l *Limiter) ensure(op string) *Usage {
	u, ok := l.usage[op]
	if !ok {
		u = &Usage{
			PeriodStart: l.now(),
			PeriodSecs:  int(DefaultPeriod.Seconds()),
		}
		l.usage[op] = u
	}
	if u.PeriodSecs <= 0 {
		u.PeriodSecs = int(DefaultPeriod.Seconds())
	}
	return u
}

func (l *Limiter) maybeReset(u *Usage) {
	period := time.Duration(u.PeriodSecs) * time.Second
	if l.now().Sub(u.PeriodStart) >= period {
		u.Count = 0
		u.PeriodStart = l.now()
	}
}

func (l *Limiter) resetIn(u *Usage) time.Duration {
	period := time.Duration(u.PeriodSecs) * time.Second
	rem := period - l.now().Sub(u.PeriodStart)
	if rem < 0 {
		return 0
	}
	return rem
}

func (l *Limiter) save() {
	if l.path == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := snapshot{Usage: l.usage, Costs: l.costs}
	if err := state.SaveJSON(l.path, snap); err != nil {
		slog.Warn("ratelimit.save_failed", "error", err)
	}
}

// String summarizes the ledger for status displays.
func (c Costs) String() string {
	return fmt.Sprintf("today $%.4f, month $%.4f, total $%.4f", c.Daily, c.Monthly, c.Total)
}
