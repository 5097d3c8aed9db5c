// Package progression implements the XP curve, levels, prestige,
// achievements, daily streak, and the anti-farming award limiter.
package progression

import (
	"fmt"
	"log/slog"
	"math"
	"time"
)

const (
	MaxLevel    = 25
	MaxPrestige = 10

	historyCap = 50

	// hourlyXPCap bounds XP from limited sources in any rolling hour.
	hourlyXPCap = 100

	// chatCooldown is the shared minimum gap between chat-category awards.
	// The gate is intentionally shared across all chat sources.
	chatCooldown = 5 * time.Second
)

// Source names an XP-awarding event category.
type Source string

const (
	SourceGreeting     Source = "greeting"
	SourceQuickChat    Source = "quick_chat"
	SourceDeepChat     Source = "deep_chat"
	SourceTaskComplete Source = "task_complete"
	SourceSocial       Source = "social"
	SourceStreak       Source = "streak"
	SourceFirstOfDay   Source = "first_of_day"
	SourceAchievement  Source = "achievement"
	SourceSystem       Source = "system"
)

// IsChat reports whether the source is subject to the chat anti-spam gate.
func (s Source) IsChat() bool {
	switch s {
	case SourceGreeting, SourceQuickChat, SourceDeepChat:
		return true
	}
	return false
}

// Achievement IDs.
const (
	AchievementLegendary = "legendary"
	AchievementStreak7   = "streak_7"
)

// achievementXP is the bonus granted when an achievement unlocks. These
// awards bypass the limiter.
var achievementXP = map[string]int{
	AchievementLegendary: 100,
	AchievementStreak7:   50,
}

// XPForLevel returns the total XP required to reach level k.
func XPForLevel(k int) int {
	if k <= 1 {
		return 0
	}
	return int(math.Floor(100 * math.Pow(float64(k), 1.8)))
}

// LevelForXP derives the level for a total XP value, capped at MaxLevel.
func LevelForXP(xp int) int {
	level := 1
	for k := 2; k <= MaxLevel; k++ {
		if xp >= XPForLevel(k) {
			level = k
		} else {
			break
		}
	}
	return level
}

// AchievementState records one achievement's unlock status.
type AchievementState struct {
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// AwardRecord is one entry in the bounded XP history.
type AwardRecord struct {
	Source Source    `json:"source"`
	Amount int       `json:"amount"`
	Time   time.Time `json:"time"`
}

// Tracker holds all progression state. Not safe for concurrent use; the
// owning personality serializes access.
type Tracker struct {
	xp          int
	level       int
	prestige    int
	badges      []string
	history     []AwardRecord
	achievements map[string]*AchievementState

	lastInteractionDate string
	currentStreak       int

	limiter *awardLimiter
	now     func() time.Time
}

// NewTracker creates an empty tracker at level 1.
func NewTracker() *Tracker {
	t := &Tracker{
		level:        1,
		achievements: make(map[string]*AchievementState),
		now:          time.Now,
	}
	t.limiter = newAwardLimiter(t.nowFunc)
	return t
}

func (t *Tracker) nowFunc() time.Time { return t.now() }

// SetClock replaces the tracker's clock (tests and replay).
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

func (t *Tracker) XP() int            { return t.xp }
func (t *Tracker) Level() int         { return t.level }
func (t *Tracker) Prestige() int      { return t.prestige }
func (t *Tracker) Badges() []string   { return append([]string(nil), t.badges...) }
func (t *Tracker) CurrentStreak() int { return t.currentStreak }

// XPMultiplier is applied to every base award.
func (t *Tracker) XPMultiplier() int { return 1 + t.prestige }

// History returns a copy of the bounded award history, oldest first.
func (t *Tracker) History() []AwardRecord {
	return append([]AwardRecord(nil), t.history...)
}

// Achievements returns the unlock map (shared reference; callers must not mutate).
func (t *Tracker) Achievements() map[string]*AchievementState {
	return t.achievements
}

// AwardXP runs the full award protocol: prestige multiplier, rate limiting,
// level recompute, history append. Returns whether anything was awarded and
// the actual amount after clamps and penalties.
func (t *Tracker) AwardXP(source Source, base int, prompt string) (bool, int) {
	if base <= 0 {
		return false, 0
	}
	amount := base * t.XPMultiplier()

	amount, ok := t.limiter.gate(source, amount, prompt)
	if !ok {
		return false, 0
	}

	t.add(source, amount)
	t.limiter.record(source, amount, prompt)
	return true, amount
}

// add applies XP without consulting the limiter (achievements, restores).
func (t *Tracker) add(source Source, amount int) {
	t.xp += amount
	prev := t.level
	t.level = LevelForXP(t.xp)

	t.history = append(t.history, AwardRecord{Source: source, Amount: amount, Time: t.now()})
	if len(t.history) > historyCap {
		t.history = t.history[len(t.history)-historyCap:]
	}

	if t.level > prev {
		slog.Info("progression.level_up", "from", prev, "to", t.level, "xp", t.xp)
	}
	if t.level >= MaxLevel {
		t.Unlock(AchievementLegendary)
	}
}

// LeveledUp reports level transitions since a caller-held previous level.
func (t *Tracker) LeveledUp(prev int) bool { return t.level > prev }

// Unlock marks an achievement unlocked, granting its bonus XP outside the
// limiter. Re-unlocking is a no-op.
func (t *Tracker) Unlock(id string) bool {
	a, ok := t.achievements[id]
	if ok && a.Unlocked {
		return false
	}
	ts := t.now()
	t.achievements[id] = &AchievementState{Unlocked: true, UnlockedAt: &ts}
	slog.Info("progression.achievement_unlocked", "id", id)

	if bonus := achievementXP[id]; bonus > 0 {
		t.add(SourceAchievement, bonus*t.XPMultiplier())
	}
	return true
}

// RecordInteractionDay updates the daily streak from a YYYY-MM-DD date
// string and reports whether this is the first interaction of that day.
func (t *Tracker) RecordInteractionDay(today string) bool {
	if t.lastInteractionDate == today {
		return false
	}
	if t.lastInteractionDate == "" {
		t.currentStreak = 1
	} else {
		last, err := time.Parse("2006-01-02", t.lastInteractionDate)
		cur, err2 := time.Parse("2006-01-02", today)
		switch {
		case err != nil || err2 != nil:
			t.currentStreak = 1
		case cur.Sub(last) == 24*time.Hour:
			t.currentStreak++
		default:
			t.currentStreak = 1
		}
	}
	t.lastInteractionDate = today

	if t.currentStreak >= 7 {
		t.Unlock(AchievementStreak7)
	}
	return true
}

// CanPrestige reports whether the prestige operation is available.
func (t *Tracker) CanPrestige() bool {
	return t.level == MaxLevel && t.prestige < MaxPrestige
}

// DoPrestige resets XP and level, increments prestige, and records the
// prestige badge. Badges and achievements are preserved. Irreversible.
func (t *Tracker) DoPrestige() error {
	if !t.CanPrestige() {
		return fmt.Errorf("prestige requires level %d (at %d) and prestige below %d (at %d)",
			MaxLevel, t.level, MaxPrestige, t.prestige)
	}
	t.prestige++
	t.xp = 0
	t.level = 1
	t.badges = append(t.badges, fmt.Sprintf("prestige_%d", t.prestige))
	slog.Info("progression.prestige", "prestige", t.prestige)
	return nil
}

// ChatQuality classifies one chat turn into an XP source and base amount.
func ChatQuality(msgLen, turns int, isQuestion bool, sentiment float64) (Source, int) {
	switch {
	case msgLen < 20 && !isQuestion:
		return SourceGreeting, 2
	case turns >= 3 && msgLen > 50:
		return SourceDeepChat, 15
	default:
		return SourceQuickChat, 5
	}
}
