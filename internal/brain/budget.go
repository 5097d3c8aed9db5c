package brain

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/nextlevelbuilder/inkling/internal/state"
)

// BudgetFile holds the daily token counter.
const BudgetFile = "token_budget.json"

const budgetPeriod = 24 * time.Hour

type budgetSnapshot struct {
	TokensUsedToday int       `json:"tokens_used_today"`
	LastReset       time.Time `json:"last_reset"`
}

// TokenBudget caps daily token spend. The counter survives restarts and
// rolls over 24 hours after the last reset.
type TokenBudget struct {
	mu         sync.Mutex
	dir        string
	dailyLimit int
	used       int
	lastReset  time.Time
	now        func() time.Time
}

// LoadBudget restores the counter from dir. A missing or corrupt snapshot
// starts fresh. dailyLimit <= 0 disables the budget.
func LoadBudget(dir string, dailyLimit int) *TokenBudget {
	b := &TokenBudget{dir: dir, dailyLimit: dailyLimit, now: time.Now}
	var snap budgetSnapshot
	if err := state.LoadJSON(filepath.Join(dir, BudgetFile), &snap); err == nil {
		b.used = snap.TokensUsedToday
		b.lastReset = snap.LastReset
	}
	if b.lastReset.IsZero() {
		b.lastReset = b.now()
	}
	return b
}

// rollover requires b.mu held.
func (b *TokenBudget) rollover() {
	if b.now().Sub(b.lastReset) > budgetPeriod {
		b.used = 0
		b.lastReset = b.now()
	}
}

// Check reports whether n more tokens fit in today's budget.
func (b *TokenBudget) Check(n int) bool {
	if b.dailyLimit <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return b.used+n <= b.dailyLimit
}

// Record adds spent tokens and persists. A failed write keeps the
// in-memory counter authoritative.
func (b *TokenBudget) Record(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	b.used += n
	snap := budgetSnapshot{TokensUsedToday: b.used, LastReset: b.lastReset}
	if err := state.SaveJSON(filepath.Join(b.dir, BudgetFile), snap); err != nil {
		slog.Warn("brain.budget.save_failed", "error", err)
	}
}

// UsedToday returns today's counter after any pending rollover.
func (b *TokenBudget) UsedToday() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return b.used
}

// DailyLimit returns the configured cap, 0 when unlimited.
func (b *TokenBudget) DailyLimit() int { return b.dailyLimit }
