package progression

// Snapshot is the serialized form embedded in the personality state file.
type Snapshot struct {
	XP                  int                          `json:"xp"`
	Level               int                          `json:"level"`
	Prestige            int                          `json:"prestige"`
	Badges              []string                     `json:"badges,omitempty"`
	History             []AwardRecord                `json:"xp_history,omitempty"`
	Achievements        map[string]*AchievementState `json:"achievements,omitempty"`
	LastInteractionDate string                       `json:"last_interaction_date,omitempty"`
	CurrentStreak       int                          `json:"current_streak"`
}

// Snapshot captures the tracker for persistence.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		XP:                  t.xp,
		Level:               t.level,
		Prestige:            t.prestige,
		Badges:              append([]string(nil), t.badges...),
		History:             append([]AwardRecord(nil), t.history...),
		Achievements:        t.achievements,
		LastInteractionDate: t.lastInteractionDate,
		CurrentStreak:       t.currentStreak,
	}
}

// Restore replaces the tracker state from a snapshot, re-deriving the level
// from XP so the level invariant holds even for hand-edited files.
func (t *Tracker) Restore(s Snapshot) {
	t.xp = s.XP
	t.prestige = s.Prestige
	t.level = LevelForXP(s.XP)
	t.badges = append([]string(nil), s.Badges...)
	t.history = append([]AwardRecord(nil), s.History...)
	if len(t.history) > historyCap {
		t.history = t.history[len(t.history)-historyCap:]
	}
	t.achievements = s.Achievements
	if t.achievements == nil {
		t.achievements = make(map[string]*AchievementState)
	}
	t.lastInteractionDate = s.LastInteractionDate
	t.currentStreak = s.CurrentStreak
}
