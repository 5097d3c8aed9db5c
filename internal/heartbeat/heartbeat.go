// Package heartbeat drives the companion's autonomous life: a single
// non-reentrant tick loop that updates mood, pumps the scheduler, fires
// proactive behaviors, and occasionally thinks out loud.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/nextlevelbuilder/inkling/internal/battery"
	"github.com/nextlevelbuilder/inkling/internal/display"
	"github.com/nextlevelbuilder/inkling/internal/journal"
	"github.com/nextlevelbuilder/inkling/internal/memory"
	"github.com/nextlevelbuilder/inkling/internal/personality"
	"github.com/nextlevelbuilder/inkling/internal/providers"
	"github.com/nextlevelbuilder/inkling/internal/schedule"
)

// Config holds the tunables for the tick loop. Zero values are filled in
// from DefaultConfig by New.
type Config struct {
	TickInterval time.Duration

	EnableMoodBehaviors        bool
	EnableTimeBehaviors        bool
	EnableSocialBehaviors      bool
	EnableMaintenanceBehaviors bool
	EnableBatteryBehaviors     bool

	ThoughtIntervalMin        time.Duration
	ThoughtIntervalMax        time.Duration
	ThoughtSurfaceProbability float64

	QuietHoursStart int
	QuietHoursEnd   int

	BatteryLowThreshold      int
	BatteryCriticalThreshold int
	BatteryFullThreshold     int
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		TickInterval:               60 * time.Second,
		EnableMoodBehaviors:        true,
		EnableTimeBehaviors:        true,
		EnableSocialBehaviors:      true,
		EnableMaintenanceBehaviors: true,
		EnableBatteryBehaviors:     true,
		ThoughtIntervalMin:         15 * time.Minute,
		ThoughtIntervalMax:         30 * time.Minute,
		ThoughtSurfaceProbability:  0.35,
		QuietHoursStart:            23,
		QuietHoursEnd:              7,
		BatteryLowThreshold:        20,
		BatteryCriticalThreshold:   10,
		BatteryFullThreshold:       95,
	}
}

// Thinker generates short completions without tools or history.
type Thinker interface {
	Quick(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// MemoryStore is the slice of the memory store the heartbeat writes to.
type MemoryStore interface {
	Remember(key, value string, cat memory.Category, importance float64) error
}

// MessageFunc receives a proactive message and the current face name.
type MessageFunc func(message, face string)

// Heartbeat owns the tick loop. All collaborators are optional except the
// personality; missing ones no-op.
type Heartbeat struct {
	cfg  Config
	pers *personality.Personality

	sched   *schedule.Manager
	brain   Thinker
	disp    display.Sink
	power   battery.Source
	mem     MemoryStore
	journal *journal.Writer
	onMsg   MessageFunc

	now  func() time.Time
	rand func() float64

	mu          sync.Mutex
	behaviors   []*Behavior
	tickCount   int
	lastTick    time.Time
	focusQuiet  bool
	prevBattery battery.Status
	prevSet     bool
	curBattery  battery.Status
	nextThought time.Time
}

// Option configures a Heartbeat.
type Option func(*Heartbeat)

// WithSchedule wires the scheduled-task pump.
func WithSchedule(m *schedule.Manager) Option {
	return func(h *Heartbeat) { h.sched = m }
}

// WithBrain wires autonomous thought generation.
func WithBrain(t Thinker) Option {
	return func(h *Heartbeat) { h.brain = t }
}

// WithDisplay wires the display sink.
func WithDisplay(d display.Sink) Option {
	return func(h *Heartbeat) { h.disp = d }
}

// WithBattery wires a power source.
func WithBattery(s battery.Source) Option {
	return func(h *Heartbeat) { h.power = s }
}

// WithMemory wires thought storage.
func WithMemory(m MemoryStore) Option {
	return func(h *Heartbeat) { h.mem = m }
}

// WithJournal wires the thoughts log.
func WithJournal(w *journal.Writer) Option {
	return func(h *Heartbeat) { h.journal = w }
}

// WithMessageCallback registers the proactive-message sink.
func WithMessageCallback(fn MessageFunc) Option {
	return func(h *Heartbeat) { h.onMsg = fn }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Heartbeat) { h.now = now }
}

// WithRand overrides the probability source, for tests.
func WithRand(fn func() float64) Option {
	return func(h *Heartbeat) { h.rand = fn }
}

// New builds a heartbeat around a personality.
func New(cfg Config, pers *personality.Personality, opts ...Option) *Heartbeat {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.ThoughtIntervalMin <= 0 {
		cfg.ThoughtIntervalMin = def.ThoughtIntervalMin
	}
	if cfg.ThoughtIntervalMax < cfg.ThoughtIntervalMin {
		cfg.ThoughtIntervalMax = cfg.ThoughtIntervalMin
	}
	if cfg.ThoughtSurfaceProbability <= 0 {
		cfg.ThoughtSurfaceProbability = def.ThoughtSurfaceProbability
	}
	if cfg.BatteryFullThreshold <= 0 {
		cfg.BatteryFullThreshold = def.BatteryFullThreshold
	}
	h := &Heartbeat{
		cfg:  cfg,
		pers: pers,
		now:  time.Now,
		rand: rand.Float64,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.behaviors = defaultBehaviors(h)
	h.nextThought = h.now().Add(h.thoughtInterval())
	return h
}

// SetFocusQuiet suppresses all behaviors except battery and maintenance
// while the user is in a focus session.
func (h *Heartbeat) SetFocusQuiet(on bool) {
	h.mu.Lock()
	h.focusQuiet = on
	h.mu.Unlock()
}

// AddBehavior appends a custom behavior to the table.
func (h *Heartbeat) AddBehavior(b *Behavior) {
	h.mu.Lock()
	h.behaviors = append(h.behaviors, b)
	h.mu.Unlock()
}

// TickCount reports how many ticks have run.
func (h *Heartbeat) TickCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tickCount
}

// LastTick reports when the last tick started.
func (h *Heartbeat) LastTick() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastTick
}

// Run ticks until ctx is cancelled. The tick itself is sequential; Run
// returns at the next sleep boundary after cancellation.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()
	slog.Info("heartbeat.started", "tick_interval", h.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("heartbeat.stopped", "ticks", h.TickCount())
			return
		case <-ticker.C:
			h.Tick(ctx)
		}
	}
}

// Tick runs one iteration. It is safe to call directly, which is how
// tests drive the loop.
func (h *Heartbeat) Tick(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	h.tickCount++
	h.lastTick = now

	h.curBattery = h.readBatteryLocked()

	h.updateTimeMoodLocked(now)
	if h.curBattery.Present {
		h.pers.OnBatteryStatusChange(h.curBattery.Level, h.curBattery.Charging)
	}
	h.pers.Decay()

	if h.disp != nil && !h.disp.ScreensaverActive() && h.disp.ShouldActivateScreensaver() {
		h.disp.StartScreensaver()
	}

	if h.sched != nil {
		h.sched.RunPending(ctx)
	}

	h.runBehaviorsLocked(ctx, now)
	h.maybeThinkLocked(ctx, now)

	h.prevBattery = h.curBattery
	h.prevSet = true
}

func (h *Heartbeat) readBatteryLocked() battery.Status {
	if h.power == nil {
		return battery.Status{}
	}
	st, err := h.power.Read()
	if err != nil {
		slog.Debug("heartbeat.battery.read_failed", "error", err)
		return battery.Status{}
	}
	return st
}

// inQuietHours handles the wrap across midnight, e.g. 23..7.
func (h *Heartbeat) inQuietHours(t time.Time) bool {
	start, end := h.cfg.QuietHoursStart, h.cfg.QuietHoursEnd
	if start == end {
		return false
	}
	hour := t.Hour()
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func (h *Heartbeat) updateTimeMoodLocked(now time.Time) {
	hour := now.Hour()
	mood, _ := h.pers.Mood()
	switch {
	case hour >= 7 && hour < 10:
		if mood != personality.MoodHappy && mood != personality.MoodCurious {
			next := personality.MoodHappy
			if h.rand() < 0.5 {
				next = personality.MoodCurious
			}
			h.pers.SetMood(next, 0.6)
		}
	case hour >= 21 && hour < 23:
		if mood != personality.MoodCool && mood != personality.MoodSleepy {
			next := personality.MoodCool
			if h.rand() < 0.5 {
				next = personality.MoodSleepy
			}
			h.pers.SetMood(next, 0.5)
		}
	}
}

func (h *Heartbeat) runBehaviorsLocked(ctx context.Context, now time.Time) {
	quiet := h.inQuietHours(now)
	for _, b := range h.behaviors {
		if !h.typeEnabled(b.Type) {
			continue
		}
		if quiet && b.Type != BehaviorMaintenance {
			continue
		}
		if h.focusQuiet && b.Type != BehaviorBattery && b.Type != BehaviorMaintenance {
			continue
		}
		if b.Guard != nil && !b.Guard() {
			continue
		}
		if b.Cooldown > 0 && !b.lastTriggered.IsZero() && now.Sub(b.lastTriggered) < b.Cooldown {
			continue
		}
		if h.rand() >= b.Probability {
			continue
		}
		msg, err := b.Handler(ctx)
		if err != nil {
			slog.Warn("heartbeat.behavior.failed", "behavior", b.Name, "error", err)
			continue
		}
		b.lastTriggered = now
		slog.Debug("heartbeat.behavior.fired", "behavior", b.Name)
		if msg != "" {
			h.deliverLocked(msg)
		}
	}
}

// deliverLocked hands a proactive message to the callback unless the
// screensaver owns the display.
func (h *Heartbeat) deliverLocked(msg string) {
	if h.onMsg == nil {
		return
	}
	if h.disp != nil && h.disp.ScreensaverActive() {
		return
	}
	mood, _ := h.pers.Mood()
	h.onMsg(msg, mood.Face())
}

func (h *Heartbeat) typeEnabled(t BehaviorType) bool {
	switch t {
	case BehaviorMood:
		return h.cfg.EnableMoodBehaviors
	case BehaviorTime:
		return h.cfg.EnableTimeBehaviors
	case BehaviorSocial:
		return h.cfg.EnableSocialBehaviors
	case BehaviorMaintenance:
		return h.cfg.EnableMaintenanceBehaviors
	case BehaviorBattery:
		return h.cfg.EnableBatteryBehaviors
	}
	return false
}

func (h *Heartbeat) thoughtInterval() time.Duration {
	span := h.cfg.ThoughtIntervalMax - h.cfg.ThoughtIntervalMin
	if span <= 0 {
		return h.cfg.ThoughtIntervalMin
	}
	return h.cfg.ThoughtIntervalMin + time.Duration(h.rand()*float64(span))
}

func (h *Heartbeat) maybeThinkLocked(ctx context.Context, now time.Time) {
	if h.brain == nil || now.Before(h.nextThought) || h.inQuietHours(now) {
		return
	}
	h.nextThought = now.Add(h.thoughtInterval())

	mood, _ := h.pers.Mood()
	system := fmt.Sprintf("You are %s, a small e-ink companion. Current mood: %s. Reply with one brief thought, a single sentence, no preamble.",
		h.pers.Name(), mood)
	text, err := h.brain.Quick(ctx, system, "Share one brief thought about your day.")
	if err != nil {
		slog.Warn("heartbeat.thought.failed", "error", providers.Sanitize(err.Error()))
		return
	}
	if text == "" {
		return
	}
	text = providers.Sanitize(text)
	h.pers.RecordThought(text)
	if h.journal != nil {
		if err := h.journal.Append(text); err != nil {
			slog.Warn("heartbeat.thought.journal_failed", "error", err)
		}
	}
	if h.mem != nil {
		key := fmt.Sprintf("thought_%d", now.Unix())
		if err := h.mem.Remember(key, "Thought: "+text, memory.CategoryEvent, 0.5); err != nil {
			slog.Warn("heartbeat.thought.remember_failed", "error", err)
		}
	}
	if h.rand() < h.cfg.ThoughtSurfaceProbability {
		h.deliverLocked(text)
	}
}
