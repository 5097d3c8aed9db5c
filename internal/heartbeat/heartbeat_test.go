package heartbeat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/inkling/internal/battery"
	"github.com/nextlevelbuilder/inkling/internal/memory"
	"github.com/nextlevelbuilder/inkling/internal/personality"
)

type fakeBrain struct {
	calls int
	reply string
	err   error
}

func (f *fakeBrain) Quick(ctx context.Context, system, prompt string) (string, error) {
	f.calls++
	return f.reply, f.err
}

type fakeMemory struct {
	keys   []string
	values []string
}

func (f *fakeMemory) Remember(key, value string, cat memory.Category, importance float64) error {
	f.keys = append(f.keys, key)
	f.values = append(f.values, value)
	return nil
}

// newTestHeartbeat builds a heartbeat with an adjustable clock and a fixed
// probability roll. Mutate *cur to move time, *roll to change the dice.
func newTestHeartbeat(t *testing.T, cfg Config, roll *float64, opts ...Option) (*Heartbeat, *time.Time) {
	t.Helper()
	cur := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	pers := personality.New("inkling")
	opts = append(opts,
		WithClock(func() time.Time { return cur }),
		WithRand(func() float64 { return *roll }),
	)
	return New(cfg, pers, opts...), &cur
}

func recordBehavior(name string, typ BehaviorType, fired *int) *Behavior {
	return &Behavior{
		Name:        name,
		Type:        typ,
		Probability: 1.0,
		Handler: func(context.Context) (string, error) {
			*fired++
			return "", nil
		},
	}
}

func TestInQuietHours(t *testing.T) {
	cfg := DefaultConfig()
	roll := 0.99
	h, _ := newTestHeartbeat(t, cfg, &roll)

	tests := []struct {
		hour int
		want bool
	}{
		{22, false}, {23, true}, {0, true}, {3, true}, {6, true}, {7, false}, {12, false},
	}
	for _, tt := range tests {
		at := time.Date(2026, 3, 2, tt.hour, 30, 0, 0, time.UTC)
		if got := h.inQuietHours(at); got != tt.want {
			t.Errorf("inQuietHours(%02d:30) = %v, want %v", tt.hour, got, tt.want)
		}
	}
}

func TestQuietHoursOnlyMaintenanceRuns(t *testing.T) {
	roll := 0.0
	h, cur := newTestHeartbeat(t, DefaultConfig(), &roll)
	*cur = time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)

	var moodFired, maintFired int
	h.AddBehavior(recordBehavior("probe_mood", BehaviorMood, &moodFired))
	h.AddBehavior(recordBehavior("probe_maint", BehaviorMaintenance, &maintFired))

	h.Tick(context.Background())

	if moodFired != 0 {
		t.Errorf("mood behavior fired %d times during quiet hours", moodFired)
	}
	if maintFired != 1 {
		t.Errorf("maintenance behavior fired %d times, want 1", maintFired)
	}
}

func TestFocusQuietSuppressesAllButBatteryAndMaintenance(t *testing.T) {
	roll := 0.0
	h, _ := newTestHeartbeat(t, DefaultConfig(), &roll)
	h.SetFocusQuiet(true)

	var social, batteryFired, maint int
	h.AddBehavior(recordBehavior("probe_social", BehaviorSocial, &social))
	h.AddBehavior(recordBehavior("probe_battery", BehaviorBattery, &batteryFired))
	h.AddBehavior(recordBehavior("probe_maint", BehaviorMaintenance, &maint))

	h.Tick(context.Background())

	if social != 0 {
		t.Errorf("social behavior fired under focus quiet")
	}
	if batteryFired != 1 || maint != 1 {
		t.Errorf("battery fired %d, maintenance fired %d, want 1 and 1", batteryFired, maint)
	}
}

func TestBehaviorTypeDisabledInConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableSocialBehaviors = false
	roll := 0.0
	h, _ := newTestHeartbeat(t, cfg, &roll)

	var social int
	h.AddBehavior(recordBehavior("probe_social", BehaviorSocial, &social))
	h.Tick(context.Background())

	if social != 0 {
		t.Errorf("disabled behavior type fired %d times", social)
	}
}

func TestBehaviorCooldown(t *testing.T) {
	roll := 0.0
	h, cur := newTestHeartbeat(t, DefaultConfig(), &roll)

	var fired int
	b := recordBehavior("probe", BehaviorMaintenance, &fired)
	b.Cooldown = time.Hour
	h.AddBehavior(b)

	h.Tick(context.Background())
	*cur = cur.Add(time.Minute)
	h.Tick(context.Background())
	if fired != 1 {
		t.Fatalf("fired %d times within cooldown, want 1", fired)
	}

	*cur = cur.Add(2 * time.Hour)
	h.Tick(context.Background())
	if fired != 2 {
		t.Errorf("fired %d times after cooldown elapsed, want 2", fired)
	}
}

func TestBehaviorProbabilityGate(t *testing.T) {
	roll := 0.98
	h, _ := newTestHeartbeat(t, DefaultConfig(), &roll)

	var fired int
	b := recordBehavior("probe", BehaviorMaintenance, &fired)
	b.Probability = 0.5
	h.AddBehavior(b)

	h.Tick(context.Background())
	if fired != 0 {
		t.Errorf("behavior fired on a losing roll")
	}

	roll = 0.1
	h.Tick(context.Background())
	if fired != 1 {
		t.Errorf("behavior did not fire on a winning roll")
	}
}

func TestFailingBehaviorStaysEligible(t *testing.T) {
	roll := 0.0
	h, cur := newTestHeartbeat(t, DefaultConfig(), &roll)

	var calls int
	h.AddBehavior(&Behavior{
		Name:        "probe",
		Type:        BehaviorMaintenance,
		Probability: 1.0,
		Cooldown:    time.Hour,
		Handler: func(context.Context) (string, error) {
			calls++
			return "", context.DeadlineExceeded
		},
	})

	h.Tick(context.Background())
	*cur = cur.Add(time.Minute)
	h.Tick(context.Background())

	if calls != 2 {
		t.Errorf("failing behavior called %d times, want 2 (cooldown must not latch)", calls)
	}
}

func TestBatteryEdgeBehaviors(t *testing.T) {
	roll := 0.99
	src := battery.NewStaticSource(50, false)
	var msgs []string
	h, cur := newTestHeartbeat(t, DefaultConfig(), &roll,
		WithBattery(src),
		WithMessageCallback(func(msg, face string) { msgs = append(msgs, msg) }),
	)

	tick := func() {
		*cur = cur.Add(5 * time.Minute)
		h.Tick(context.Background())
	}

	tick() // first tick only records the baseline
	if len(msgs) != 0 {
		t.Fatalf("messages before any edge: %v", msgs)
	}

	src.Set(50, true)
	tick()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "lugged in") {
		t.Fatalf("after charging start: %v", msgs)
	}

	tick() // steady state, no new edge
	if len(msgs) != 1 {
		t.Fatalf("steady state emitted a message: %v", msgs)
	}

	src.Set(96, true)
	tick()
	if len(msgs) != 2 || !strings.Contains(msgs[1], "charged") {
		t.Fatalf("after reaching full: %v", msgs)
	}

	src.Set(60, false)
	tick()
	if len(msgs) != 3 || !strings.Contains(msgs[2], "Unplugged") {
		t.Fatalf("after charging stop below full: %v", msgs)
	}
}

func TestAutonomousThought(t *testing.T) {
	roll := 0.0
	br := &fakeBrain{reply: "The afternoon light is nice. api_key=sk-abcdefgh12345678"}
	mem := &fakeMemory{}
	var msgs []string
	h, cur := newTestHeartbeat(t, DefaultConfig(), &roll,
		WithBrain(br),
		WithMemory(mem),
		WithMessageCallback(func(msg, face string) { msgs = append(msgs, msg) }),
	)

	h.Tick(context.Background())
	if br.calls != 0 {
		t.Fatal("thought generated before the cadence elapsed")
	}

	*cur = cur.Add(31 * time.Minute)
	h.Tick(context.Background())
	if br.calls != 1 {
		t.Fatalf("brain called %d times, want 1", br.calls)
	}
	if len(mem.keys) != 1 || !strings.HasPrefix(mem.keys[0], "thought_") {
		t.Errorf("memory keys = %v", mem.keys)
	}
	if !strings.HasPrefix(mem.values[0], "Thought: ") {
		t.Errorf("memory value = %q", mem.values[0])
	}
	if strings.Contains(mem.values[0], "sk-abcdefgh12345678") {
		t.Errorf("stored thought was not sanitized: %q", mem.values[0])
	}

	// roll 0.0 < surface probability, so the thought reaches the callback.
	found := false
	for _, m := range msgs {
		if strings.Contains(m, "afternoon light") {
			found = true
			if strings.Contains(m, "sk-abcdefgh12345678") {
				t.Errorf("surfaced thought was not sanitized: %q", m)
			}
		}
	}
	if !found {
		t.Errorf("thought was not surfaced: %v", msgs)
	}

	// Immediately after an emission the cadence starts over.
	h.Tick(context.Background())
	if br.calls != 1 {
		t.Errorf("brain called %d times, want still 1", br.calls)
	}
}

func TestThoughtSkippedInQuietHours(t *testing.T) {
	roll := 0.0
	br := &fakeBrain{reply: "quiet musings"}
	h, cur := newTestHeartbeat(t, DefaultConfig(), &roll, WithBrain(br))

	*cur = time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC)
	h.Tick(context.Background())
	if br.calls != 0 {
		t.Errorf("brain called during quiet hours")
	}
}

func TestMorningMoodBias(t *testing.T) {
	roll := 0.0
	h, cur := newTestHeartbeat(t, DefaultConfig(), &roll)
	*cur = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	h.Tick(context.Background())

	mood, _ := h.pers.Mood()
	if mood != personality.MoodHappy && mood != personality.MoodCurious {
		t.Errorf("morning mood = %s, want happy or curious", mood)
	}
}

func TestEveningMoodBias(t *testing.T) {
	roll := 0.99
	h, cur := newTestHeartbeat(t, DefaultConfig(), &roll)
	*cur = time.Date(2026, 3, 2, 21, 30, 0, 0, time.UTC)

	h.Tick(context.Background())

	mood, _ := h.pers.Mood()
	if mood != personality.MoodCool && mood != personality.MoodSleepy {
		t.Errorf("evening mood = %s, want cool or sleepy", mood)
	}
}

func TestTickCounter(t *testing.T) {
	roll := 0.99
	h, cur := newTestHeartbeat(t, DefaultConfig(), &roll)

	h.Tick(context.Background())
	h.Tick(context.Background())
	if h.TickCount() != 2 {
		t.Errorf("TickCount = %d, want 2", h.TickCount())
	}
	if !h.LastTick().Equal(*cur) {
		t.Errorf("LastTick = %v, want %v", h.LastTick(), *cur)
	}
}
