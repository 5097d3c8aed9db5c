package personality

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/inkling/internal/progression"
	"github.com/nextlevelbuilder/inkling/internal/state"
)

// StateFile is the snapshot written under the state directory.
const StateFile = "personality.json"

// Snapshot is the serialized personality, progression included.
type Snapshot struct {
	Name             string               `json:"name"`
	Traits           Traits               `json:"traits"`
	Mood             MoodState            `json:"mood"`
	LastInteraction  time.Time            `json:"last_interaction"`
	InteractionCount int                  `json:"interaction_count"`
	Progression      progression.Snapshot `json:"progression"`
	LastThought      string               `json:"last_thought,omitempty"`
	LastThoughtAt    time.Time            `json:"last_thought_at,omitzero"`
	BatteryHint      string               `json:"battery_hint,omitempty"`
	Social           SocialStats          `json:"social_stats"`
}

// SnapshotState captures the personality for persistence.
func (p *Personality) SnapshotState() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Name:             p.name,
		Traits:           p.traits,
		Mood:             p.mood,
		LastInteraction:  p.lastInteraction,
		InteractionCount: p.interactionCount,
		Progression:      p.tracker.Snapshot(),
		LastThought:      p.lastThought,
		LastThoughtAt:    p.lastThoughtAt,
		BatteryHint:      p.batteryHint,
		Social:           p.social,
	}
}

// RestoreState replaces personality state from a snapshot. Invalid moods
// and out-of-range scalars are normalized rather than rejected.
func (p *Personality) RestoreState(s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.Name != "" {
		p.name = s.Name
	}
	p.traits = s.Traits
	p.traits.Clamp()

	p.mood = s.Mood
	if !p.mood.Current.Valid() {
		p.mood.Current = p.traits.baseline()
	}
	p.mood.Intensity = clamp01(p.mood.Intensity)
	if len(p.mood.History) > moodHistoryCap {
		p.mood.History = p.mood.History[len(p.mood.History)-moodHistoryCap:]
	}

	if !s.LastInteraction.IsZero() {
		p.lastInteraction = s.LastInteraction
	}
	p.interactionCount = s.InteractionCount
	p.tracker.Restore(s.Progression)
	p.lastThought = s.LastThought
	p.lastThoughtAt = s.LastThoughtAt
	p.batteryHint = s.BatteryHint
	p.social = s.Social
}

// LoadFile restores from dir/personality.json; missing or corrupt files
// leave the personality at defaults.
func (p *Personality) LoadFile(dir string) {
	var snap Snapshot
	if err := state.LoadJSON(filepath.Join(dir, StateFile), &snap); err != nil {
		slog.Debug("personality.load_defaulted", "error", err)
		return
	}
	p.RestoreState(snap)
}

// FilePersister returns a WithPersist function writing to dir.
// Failures are logged and swallowed.
func FilePersister(dir string) func(Snapshot) {
	path := filepath.Join(dir, StateFile)
	return func(s Snapshot) {
		if err := state.SaveJSON(path, s); err != nil {
			slog.Warn("personality.save_failed", "error", err)
		}
	}
}
