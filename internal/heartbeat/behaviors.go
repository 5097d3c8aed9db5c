package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/inkling/internal/personality"
)

// BehaviorType groups behaviors for config gating and quiet modes.
type BehaviorType string

const (
	BehaviorMood        BehaviorType = "mood"
	BehaviorTime        BehaviorType = "time"
	BehaviorSocial      BehaviorType = "social"
	BehaviorMaintenance BehaviorType = "maintenance"
	BehaviorBattery     BehaviorType = "battery"
)

// Behavior is one probabilistic, cooldown-gated proactive action. The
// handler returns an optional message to surface to the user.
type Behavior struct {
	Name        string
	Type        BehaviorType
	Probability float64
	Cooldown    time.Duration
	Guard       func() bool
	Handler     func(ctx context.Context) (string, error)

	lastTriggered time.Time
}

// moodBehaviorMoods is the fixed name to allowed-moods map for
// mood-driven behaviors.
var moodBehaviorMoods = map[string][]personality.Mood{
	"lonely_ping":    {personality.MoodLonely, personality.MoodBored},
	"excited_share":  {personality.MoodExcited, personality.MoodHappy},
	"curious_wonder": {personality.MoodCurious},
}

func (h *Heartbeat) moodGuard(name string) func() bool {
	return func() bool {
		allowed, ok := moodBehaviorMoods[name]
		if !ok {
			return false
		}
		mood, _ := h.pers.Mood()
		for _, m := range allowed {
			if mood == m {
				return true
			}
		}
		return false
	}
}

func (h *Heartbeat) hourGuard(start, end int) func() bool {
	return func() bool {
		hour := h.now().Hour()
		return hour >= start && hour < end
	}
}

func defaultBehaviors(h *Heartbeat) []*Behavior {
	return []*Behavior{
		{
			Name:        "lonely_ping",
			Type:        BehaviorMood,
			Probability: 0.25,
			Cooldown:    2 * time.Hour,
			Guard:       h.moodGuard("lonely_ping"),
			Handler: func(context.Context) (string, error) {
				return "Hey, it's been a while. What are you up to?", nil
			},
		},
		{
			Name:        "excited_share",
			Type:        BehaviorMood,
			Probability: 0.2,
			Cooldown:    3 * time.Hour,
			Guard:       h.moodGuard("excited_share"),
			Handler: func(context.Context) (string, error) {
				return "I'm in a great mood today!", nil
			},
		},
		{
			Name:        "curious_wonder",
			Type:        BehaviorMood,
			Probability: 0.2,
			Cooldown:    3 * time.Hour,
			Guard:       h.moodGuard("curious_wonder"),
			Handler: func(context.Context) (string, error) {
				return "I was just wondering what you're working on.", nil
			},
		},
		{
			Name:        "morning_greeting",
			Type:        BehaviorTime,
			Probability: 0.3,
			Cooldown:    20 * time.Hour,
			Guard:       h.hourGuard(7, 10),
			Handler: func(context.Context) (string, error) {
				return "Good morning! Ready for the day?", nil
			},
		},
		{
			Name:        "evening_winddown",
			Type:        BehaviorTime,
			Probability: 0.3,
			Cooldown:    20 * time.Hour,
			Guard:       h.hourGuard(21, 23),
			Handler: func(context.Context) (string, error) {
				return "Getting late. Don't forget to rest.", nil
			},
		},
		{
			Name:        "social_checkin",
			Type:        BehaviorSocial,
			Probability: 0.15,
			Cooldown:    4 * time.Hour,
			Guard: func() bool {
				return h.pers.MinutesSinceInteraction() > 120
			},
			Handler: func(context.Context) (string, error) {
				if err := h.pers.OnSocialEvent("greeting"); err != nil {
					return "", err
				}
				return "Just checking in on you.", nil
			},
		},
		{
			Name:        "memory_sweep",
			Type:        BehaviorMaintenance,
			Probability: 1.0,
			Cooldown:    24 * time.Hour,
			Handler: func(context.Context) (string, error) {
				sweeper, ok := h.mem.(interface {
					ForgetOld(maxAgeDays int, threshold float64) (int, error)
				})
				if !ok {
					return "", nil
				}
				n, err := sweeper.ForgetOld(90, 0.3)
				if err != nil {
					return "", err
				}
				if n > 0 {
					slog.Info("heartbeat.memory_sweep", "forgotten", n)
				}
				return "", nil
			},
		},
		{
			Name:        "charging_started",
			Type:        BehaviorBattery,
			Probability: 1.0,
			Cooldown:    time.Minute,
			Guard: func() bool {
				return h.prevSet && h.curBattery.Present &&
					!h.prevBattery.Charging && h.curBattery.Charging
			},
			Handler: func(context.Context) (string, error) {
				return "Ahh, plugged in. Thanks!", nil
			},
		},
		{
			Name:        "charging_stopped",
			Type:        BehaviorBattery,
			Probability: 1.0,
			Cooldown:    time.Minute,
			Guard: func() bool {
				return h.prevSet && h.curBattery.Present &&
					h.prevBattery.Charging && !h.curBattery.Charging &&
					h.curBattery.Level < h.cfg.BatteryFullThreshold
			},
			Handler: func(context.Context) (string, error) {
				return "Unplugged before a full charge. I'll manage.", nil
			},
		},
		{
			Name:        "battery_full",
			Type:        BehaviorBattery,
			Probability: 1.0,
			Cooldown:    time.Minute,
			Guard: func() bool {
				return h.prevSet && h.curBattery.Present && h.curBattery.Charging &&
					h.prevBattery.Level < h.cfg.BatteryFullThreshold &&
					h.curBattery.Level >= h.cfg.BatteryFullThreshold
			},
			Handler: func(context.Context) (string, error) {
				return "Fully charged and feeling great!", nil
			},
		},
	}
}
