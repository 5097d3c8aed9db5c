package personality

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/inkling/internal/progression"
)

// Priority mirrors task priority for XP mapping without importing the task
// store (personality is below it in the dependency order).
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// taskXP maps task priority to completion XP.
var taskXP = map[Priority]int{
	PriorityLow:    10,
	PriorityMedium: 15,
	PriorityHigh:   25,
	PriorityUrgent: 40,
}

const (
	taskOnTimeBonus  = 10
	taskStreak3Bonus = 15
	taskStreak7Bonus = 30
)

// socialReaction defines the mood transition and XP for one social event.
type socialReaction struct {
	mood      Mood
	intensity float64
	baseXP    int
}

// socialTable maps social event names to reactions. Unknown names are a
// contract violation surfaced to the caller.
var socialTable = map[string]socialReaction{
	"greeting":   {MoodHappy, 0.6, 5},
	"compliment": {MoodGrateful, 0.8, 10},
	"new_friend": {MoodExcited, 0.9, 20},
	"teasing":    {MoodMischievous, 0.7, 5},
	"gift":       {MoodExcited, 0.85, 15},
	"ignored":    {MoodLonely, 0.5, 0},
	"farewell":   {MoodCool, 0.5, 0},
}

// interaction transition tables, keyed by current mood.
var positiveInteraction = map[Mood]struct {
	mood      Mood
	intensity float64
}{
	MoodLonely: {MoodGrateful, 0.7},
	MoodBored:  {MoodCurious, 0.6},
	MoodSad:    {MoodHappy, 0.5},
	MoodSleepy: {MoodCurious, 0.5},
}

var negativeInteraction = map[Mood]struct {
	mood      Mood
	intensity float64
}{
	MoodHappy:   {MoodSad, 0.4},
	MoodExcited: {MoodBored, 0.5},
}

// SocialStats summarizes social-event history for prompt assembly.
type SocialStats struct {
	EventCount    int       `json:"event_count"`
	PositiveCount int       `json:"positive_count"`
	LastEvent     string    `json:"last_event,omitempty"`
	LastEventAt   time.Time `json:"last_event_at,omitzero"`
}

// MoodListener observes mood transitions. Called synchronously.
type MoodListener func(mood Mood, intensity float64)

// LevelListener observes level-ups. Called synchronously.
type LevelListener func(level, prestige int)

// Personality is the fan-in event hub. All mutations funnel through its
// event methods; other components never touch the fields directly.
type Personality struct {
	mu sync.Mutex

	name             string
	traits           Traits
	mood             MoodState
	lastInteraction  time.Time
	interactionCount int
	tracker          *progression.Tracker
	lastThought      string
	lastThoughtAt    time.Time
	batteryHint      string
	social           SocialStats

	decayRate float64
	now       func() time.Time

	moodListeners  []MoodListener
	levelListeners []LevelListener

	persist func(Snapshot) // best-effort state writer, may be nil
}

// Option configures a Personality.
type Option func(*Personality)

// WithClock overrides the clock (tests).
func WithClock(now func() time.Time) Option {
	return func(p *Personality) { p.now = now }
}

// WithDecayRate overrides the per-minute intensity decay rate.
func WithDecayRate(r float64) Option {
	return func(p *Personality) { p.decayRate = r }
}

// WithPersist registers the best-effort snapshot writer invoked after every
// mutation. Write failures never propagate to event callers.
func WithPersist(fn func(Snapshot)) Option {
	return func(p *Personality) { p.persist = fn }
}

// New creates a personality with default traits and a neutral mood.
func New(name string, opts ...Option) *Personality {
	p := &Personality{
		name:      name,
		traits:    DefaultTraits(),
		tracker:   progression.NewTracker(),
		decayRate: 0.01,
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	p.tracker.SetClock(p.now)
	p.mood = MoodState{Current: MoodCurious, Intensity: 0.6, LastChange: p.now()}
	p.lastInteraction = p.now()
	return p
}

func (p *Personality) Name() string { return p.name }

// Traits returns a copy of the trait scalars.
func (p *Personality) Traits() Traits {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.traits
}

// Mood returns the current mood and intensity.
func (p *Personality) Mood() (Mood, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mood.Current, p.mood.Intensity
}

// Energy is the derived UI scalar: mood energy times intensity.
func (p *Personality) Energy() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mood.Current.Energy() * p.mood.Intensity
}

// BatteryHint returns the current battery phrasing for prompt assembly.
func (p *Personality) BatteryHint() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batteryHint
}

// InteractionCount returns the lifetime interaction counter.
func (p *Personality) InteractionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interactionCount
}

// Progression exposes the XP tracker. Callers must route all mutation
// through Personality methods; read-only use is fine.
func (p *Personality) Progression() *progression.Tracker { return p.tracker }

// OnMoodChange registers a mood listener. Listeners run synchronously in
// registration order; panics are swallowed.
func (p *Personality) OnMoodChange(fn MoodListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moodListeners = append(p.moodListeners, fn)
}

// OnLevelUp registers a level-up listener.
func (p *Personality) OnLevelUp(fn LevelListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levelListeners = append(p.levelListeners, fn)
}

// SetMood forces a mood transition and notifies listeners.
func (p *Personality) SetMood(m Mood, intensity float64) {
	p.mu.Lock()
	p.setMoodLocked(m, intensity)
	p.mu.Unlock()
	p.save()
}

// OnInteraction reacts to a user interaction. Returns true when this is the
// first interaction of the calendar day (callers may grant the daily bonus).
func (p *Personality) OnInteraction(positive bool) bool {
	p.mu.Lock()
	now := p.now()
	p.lastInteraction = now
	p.interactionCount++
	firstOfDay := p.tracker.RecordInteractionDay(now.Format("2006-01-02"))

	if positive {
		if next, ok := positiveInteraction[p.mood.Current]; ok {
			p.setMoodLocked(next.mood, next.intensity)
		} else {
			p.mood.AdjustIntensity(0.2, 0)
		}
	} else {
		if next, ok := negativeInteraction[p.mood.Current]; ok {
			p.setMoodLocked(next.mood, next.intensity)
		} else {
			p.mood.AdjustIntensity(-0.2, 0.1)
		}
	}
	p.mu.Unlock()
	p.save()
	return firstOfDay
}

// OnSuccess reacts to a completed operation of the given magnitude in [0,1].
func (p *Personality) OnSuccess(magnitude float64) {
	p.mu.Lock()
	switch {
	case magnitude >= 0.7:
		p.setMoodLocked(MoodExcited, magnitude)
	case magnitude >= 0.4:
		p.mood.AdjustIntensity(0.15, 0)
	default:
		p.mood.AdjustIntensity(0.05, 0)
	}
	p.mu.Unlock()
	p.save()
}

// OnFailure reacts to a failed operation of the given magnitude in [0,1].
func (p *Personality) OnFailure(magnitude float64) {
	p.mu.Lock()
	switch {
	case magnitude >= 0.7:
		p.setMoodLocked(MoodSad, magnitude)
	case magnitude >= 0.4:
		p.mood.AdjustIntensity(-0.15, 0.1)
	default:
		p.mood.AdjustIntensity(-0.05, 0.1)
	}
	p.mu.Unlock()
	p.save()
}

// OnSocialEvent applies the social reaction table and awards its XP.
// Unknown event names return an error and mutate nothing.
func (p *Personality) OnSocialEvent(name string) error {
	reaction, ok := socialTable[name]
	if !ok {
		return fmt.Errorf("unknown social event %q", name)
	}

	p.mu.Lock()
	p.setMoodLocked(reaction.mood, reaction.intensity)
	p.social.EventCount++
	if reaction.baseXP > 0 {
		p.social.PositiveCount++
	}
	p.social.LastEvent = name
	p.social.LastEventAt = p.now()

	prevLevel := p.tracker.Level()
	if reaction.baseXP > 0 {
		p.tracker.AwardXP(progression.SourceSocial, reaction.baseXP, "")
	}
	p.notifyLevelLocked(prevLevel)
	p.mu.Unlock()
	p.save()
	return nil
}

// OnTaskEvent awards completion XP by priority plus on-time and streak
// bonuses, and lifts the mood in proportion.
func (p *Personality) OnTaskEvent(priority Priority, onTime bool, streakDays int) {
	base, ok := taskXP[priority]
	if !ok {
		base = taskXP[PriorityMedium]
	}

	p.mu.Lock()
	prevLevel := p.tracker.Level()
	p.tracker.AwardXP(progression.SourceTaskComplete, base, "")
	if onTime {
		p.tracker.AwardXP(progression.SourceTaskComplete, taskOnTimeBonus, "")
	}
	switch {
	case streakDays >= 7:
		p.tracker.AwardXP(progression.SourceStreak, taskStreak7Bonus, "")
	case streakDays >= 3:
		p.tracker.AwardXP(progression.SourceStreak, taskStreak3Bonus, "")
	}

	if priority == PriorityUrgent || priority == PriorityHigh {
		p.setMoodLocked(MoodExcited, 0.9)
	} else {
		p.setMoodLocked(MoodHappy, 0.7)
	}
	p.notifyLevelLocked(prevLevel)
	p.mu.Unlock()
	p.save()
}

// AwardChatXP routes chat-sourced XP through the anti-farming limiter and
// fires level-up listeners. Returns the awarded amount.
func (p *Personality) AwardChatXP(source progression.Source, base int, prompt string) int {
	p.mu.Lock()
	prevLevel := p.tracker.Level()
	_, amount := p.tracker.AwardXP(source, base, prompt)
	p.notifyLevelLocked(prevLevel)
	p.mu.Unlock()
	p.save()
	return amount
}

// OnBatteryStatusChange reacts to battery level and charger state and
// refreshes the battery hint used in prompt assembly.
func (p *Personality) OnBatteryStatusChange(level int, charging bool) {
	p.mu.Lock()
	switch {
	case charging:
		switch p.mood.Current {
		case MoodSleepy, MoodSad, MoodBored, MoodLonely:
			p.setMoodLocked(MoodGrateful, 0.8)
		}
		p.batteryHint = "plugged in and recharging"
	case level < 10:
		p.setMoodLocked(MoodSleepy, 0.9)
		p.batteryHint = "battery critically low, very drowsy"
	case level < 20:
		p.setMoodLocked(MoodSad, 0.7)
		p.batteryHint = "battery low, feeling drained"
	case level <= 30:
		p.setMoodLocked(MoodBored, 0.5)
		p.batteryHint = "battery getting low"
	default:
		switch p.mood.Current {
		case MoodSleepy, MoodSad:
			p.setMoodLocked(MoodHappy, 0.5)
		}
		p.batteryHint = ""
	}
	p.mu.Unlock()
	p.save()
}

// Decay applies time-based mood drift. Call periodically (heartbeat tick).
func (p *Personality) Decay() {
	p.mu.Lock()
	now := p.now()
	minutes := now.Sub(p.lastInteraction).Minutes()
	if minutes < 0 {
		minutes = 0
	}

	p.mood.Intensity = p.mood.Intensity - p.decayRate*minutes
	if p.mood.Intensity < 0.1 {
		p.mood.Intensity = 0.1
	}

	if p.mood.Intensity < 0.2 {
		p.setMoodLocked(p.traits.baseline(), 0.3)
	}

	switch {
	case minutes > 30 && p.mood.Current != MoodSleepy:
		p.setMoodLocked(MoodSleepy, 0.6)
	case minutes > 10 && minutes <= 30 && p.mood.Current != MoodBored && p.mood.Current != MoodSleepy:
		p.setMoodLocked(MoodBored, 0.4)
	}
	p.mu.Unlock()
	p.save()
}

// RecordThought stores the last autonomous thought for prompt assembly.
func (p *Personality) RecordThought(text string) {
	p.mu.Lock()
	p.lastThought = text
	p.lastThoughtAt = p.now()
	p.mu.Unlock()
	p.save()
}

// LastThought returns the most recent autonomous thought, if any.
func (p *Personality) LastThought() (string, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastThought, p.lastThoughtAt
}

// MinutesSinceInteraction reports idle time in minutes.
func (p *Personality) MinutesSinceInteraction() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now().Sub(p.lastInteraction).Minutes()
}

// setMoodLocked transitions mood and notifies listeners. Caller holds p.mu.
func (p *Personality) setMoodLocked(m Mood, intensity float64) {
	p.mood.Set(m, intensity, p.now())
	for _, fn := range p.moodListeners {
		safeNotifyMood(fn, m, p.mood.Intensity)
	}
}

func (p *Personality) notifyLevelLocked(prevLevel int) {
	if !p.tracker.LeveledUp(prevLevel) {
		return
	}
	level, prestige := p.tracker.Level(), p.tracker.Prestige()
	for _, fn := range p.levelListeners {
		safeNotifyLevel(fn, level, prestige)
	}
}

func safeNotifyMood(fn MoodListener, m Mood, intensity float64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("personality.listener_panic", "kind", "mood", "panic", r)
		}
	}()
	fn(m, intensity)
}

func safeNotifyLevel(fn LevelListener, level, prestige int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("personality.listener_panic", "kind", "level", "panic", r)
		}
	}()
	fn(level, prestige)
}

func (p *Personality) save() {
	if p.persist == nil {
		return
	}
	p.persist(p.SnapshotState())
}
