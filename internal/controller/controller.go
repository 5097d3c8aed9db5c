// Package controller wires the companion together: stores, personality,
// scheduler, MCP, brain, heartbeat, and front-ends, with ordered startup
// and shutdown.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gopsmem "github.com/shirou/gopsutil/v3/mem"

	"github.com/nextlevelbuilder/inkling/internal/battery"
	"github.com/nextlevelbuilder/inkling/internal/brain"
	"github.com/nextlevelbuilder/inkling/internal/bus"
	"github.com/nextlevelbuilder/inkling/internal/config"
	"github.com/nextlevelbuilder/inkling/internal/display"
	"github.com/nextlevelbuilder/inkling/internal/frontend"
	"github.com/nextlevelbuilder/inkling/internal/heartbeat"
	"github.com/nextlevelbuilder/inkling/internal/journal"
	"github.com/nextlevelbuilder/inkling/internal/mcp"
	"github.com/nextlevelbuilder/inkling/internal/memory"
	"github.com/nextlevelbuilder/inkling/internal/personality"
	"github.com/nextlevelbuilder/inkling/internal/providers"
	"github.com/nextlevelbuilder/inkling/internal/ratelimit"
	"github.com/nextlevelbuilder/inkling/internal/schedule"
	"github.com/nextlevelbuilder/inkling/internal/tasks"
)

const chatOp = "chat"

// Controller owns every long-lived component.
type Controller struct {
	cfg *config.Config
	dir string

	limiter  *ratelimit.Limiter
	throttle *ratelimit.Throttle
	mem      *memory.Store
	tasks    *tasks.Store
	pers     *personality.Personality
	sched    *schedule.Manager
	mcp      *mcp.Manager
	brain    *brain.Brain
	heart    *heartbeat.Heartbeat
	events   *bus.Bus
	disp     display.Sink
	journal  *journal.Writer
	registry *frontend.Registry

	httpAddr string
	power    battery.Source
	started  time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the controller before wiring.
type Option func(*Controller)

// WithHTTPAddr enables the HTTP front-end on addr.
func WithHTTPAddr(addr string) Option {
	return func(c *Controller) { c.httpAddr = addr }
}

// WithDisplay overrides the default headless display sink.
func WithDisplay(d display.Sink) Option {
	return func(c *Controller) { c.disp = d }
}

// WithBatterySource overrides battery probing.
func WithBatterySource(s battery.Source) Option {
	return func(c *Controller) { c.power = s }
}

// New builds the component graph in dependency order. Nothing runs until
// Start.
func New(cfg *config.Config, dir string, opts ...Option) (*Controller, error) {
	c := &Controller{
		cfg:    cfg,
		dir:    dir,
		events: bus.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.disp == nil {
		c.disp = display.NewLogSink(10 * time.Minute)
	}
	if c.power == nil {
		c.power = battery.NewSysfsSource()
	}

	c.limiter = ratelimit.New(dir)
	c.limiter.SetLimit(chatOp, 60)
	c.limiter.SetPeriod(chatOp, time.Hour)
	c.throttle = ratelimit.NewThrottle(c.limiter)

	if cfg.Memory.Enabled {
		store, err := memory.Open(dir)
		if err != nil {
			return nil, fmt.Errorf("open memory store: %w", err)
		}
		c.mem = store
	}

	taskStore, err := tasks.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	c.tasks = taskStore

	c.pers = personality.New(cfg.Name,
		personality.WithPersist(personality.FilePersister(dir)))
	c.pers.LoadFile(dir)
	c.pers.OnMoodChange(func(m personality.Mood, intensity float64) {
		c.events.Publish(bus.Event{Kind: bus.KindMood, Face: m.Face(), Text: string(m)})
		c.disp.Update(m.Face(), "", string(m), "", false)
	})
	c.pers.OnLevelUp(func(level, prestige int) {
		text := fmt.Sprintf("Level %d!", level)
		c.events.Publish(bus.Event{Kind: bus.KindLevelUp, Text: text,
			Data: map[string]any{"level": level, "prestige": prestige}})
		c.disp.ShowMessagePaginated(text, c.face(), 0, false)
	})

	c.journal = journal.New(dir, journal.ThoughtsFile)

	c.sched = schedule.NewManager(schedule.WithPersist(cfg.UpdateTaskEnabled))
	c.registerActions()
	if cfg.Scheduler.Enabled {
		for _, t := range cfg.Scheduler.Tasks {
			if err := c.sched.Add(t.Name, t.Schedule, t.Action, t.Enabled); err != nil {
				slog.Warn("controller.schedule.skipped", "task", t.Name, "error", err)
			}
		}
	}

	if cfg.MCP.Enabled {
		c.mcp = mcp.NewManager(
			mcp.WithCoreServers(cfg.MCP.CoreServers),
			mcp.WithToolCap(cfg.MCP.MaxTools))
	}

	chain := providers.BuildChain(cfg.AI.Settings)
	budget := brain.LoadBudget(dir, cfg.AI.Budget.DailyTokens)
	brainOpts := []brain.Option{
		brain.WithBudget(budget),
		brain.WithPerRequestMax(cfg.AI.Budget.PerRequestMax),
		brain.WithCaptureLimit(cfg.Memory.Capture.MaxNewPerTurn),
	}
	if c.mem != nil && cfg.Memory.PromptContext.Enabled {
		brainOpts = append(brainOpts,
			brain.WithMemory(c.mem),
			brain.WithContextLimits(cfg.Memory.PromptContext.MaxItems, cfg.Memory.PromptContext.MaxChars))
	}
	if c.mcp != nil {
		brainOpts = append(brainOpts, brain.WithTools(c.mcp))
	}
	c.brain = brain.New(dir, chain, brainOpts...)
	c.brain.LoadHistory()

	heartOpts := []heartbeat.Option{
		heartbeat.WithSchedule(c.sched),
		heartbeat.WithDisplay(c.disp),
		heartbeat.WithBattery(c.power),
		heartbeat.WithJournal(c.journal),
		heartbeat.WithMessageCallback(c.deliverMessage),
	}
	if c.mem != nil {
		heartOpts = append(heartOpts, heartbeat.WithMemory(c.mem))
	}
	if len(chain) > 0 {
		heartOpts = append(heartOpts, heartbeat.WithBrain(c.brain))
	}
	c.heart = heartbeat.New(cfg.Heartbeat.Runtime(), c.pers, heartOpts...)

	c.registry = frontend.NewRegistry(c.brainReady, c.brainReady)
	c.registerCommands()

	return c, nil
}

// Registry exposes the command table to front-ends.
func (c *Controller) Registry() *frontend.Registry { return c.registry }

// Events exposes the event bus to front-ends.
func (c *Controller) Events() *bus.Bus { return c.events }

// Heartbeat exposes the tick loop, mainly for the /quiet command and tests.
func (c *Controller) Heartbeat() *heartbeat.Heartbeat { return c.heart }

func (c *Controller) brainReady() bool {
	return c.brain.GetStats().Providers > 0
}

func (c *Controller) face() string {
	mood, _ := c.pers.Mood()
	return mood.Face()
}

// deliverMessage routes proactive heartbeat messages to the display and
// event bus.
func (c *Controller) deliverMessage(msg, face string) {
	c.events.Publish(bus.Event{Kind: bus.KindMessage, Face: face, Text: msg})
	c.disp.ShowMessagePaginated(msg, face, 0, false)
}

// Start launches background services. It returns immediately; use
// Shutdown to stop.
func (c *Controller) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.started = time.Now()

	if c.mcp != nil {
		c.mcp.Start(ctx, c.cfg.MCP.Servers)
	}
	if c.cfg.Heartbeat.Enabled {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.heart.Run(ctx)
		}()
	}
	if c.httpAddr != "" {
		srv := frontend.NewServer(c.httpAddr, c.Chat, c.StatusDoc, c.events)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := srv.Start(ctx); err != nil {
				slog.Error("controller.http.failed", "error", err)
			}
		}()
	}
	slog.Info("controller.started", "name", c.cfg.Name, "providers", c.brain.GetStats().Providers)
}

// Shutdown stops services in reverse startup order and flushes state.
func (c *Controller) Shutdown() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.sched.Wait()
	if c.mcp != nil {
		c.mcp.Stop()
	}
	if err := c.tasks.Close(); err != nil {
		slog.Warn("controller.tasks.close_failed", "error", err)
	}
	if c.mem != nil {
		if err := c.mem.Close(); err != nil {
			slog.Warn("controller.memory.close_failed", "error", err)
		}
	}
	slog.Info("controller.stopped")
}

// Chat runs one user turn: throttle, mood reaction, brain call, XP award.
func (c *Controller) Chat(ctx context.Context, message string) (string, error) {
	if err := c.throttle.Wait(ctx, chatOp); err != nil {
		return "", err
	}
	if warn := c.throttle.Warning(chatOp); warn != "" {
		slog.Info("controller.chat.throttled", "warning", warn)
	}
	c.limiter.Record(chatOp, 1)

	c.pers.OnInteraction(true)

	res, err := c.brain.Think(ctx, message, c.systemPrompt(), func(face, text, status string) {
		c.disp.Update(face, text, "", status, false)
	})
	if err != nil {
		c.pers.OnFailure(0.3)
		return "", err
	}

	if res.BaseXP > 0 {
		c.pers.AwardChatXP(res.Source, res.BaseXP, message)
	}
	c.pers.Progression().RecordInteractionDay(time.Now().Format("2006-01-02"))
	c.disp.IncrementChatCount()
	c.events.Publish(bus.Event{Kind: bus.KindMessage, Face: c.face(), Text: res.Content})
	return res.Content, nil
}

// CompleteTask marks a task done and routes the celebration into the
// personality.
func (c *Controller) CompleteTask(id string) (*tasks.Task, error) {
	task, err := c.tasks.Complete(id)
	if err != nil || task == nil {
		return task, err
	}
	c.pers.OnTaskEvent(personality.Priority(task.Priority), task.CompletedOnTime(),
		c.pers.Progression().CurrentStreak())
	c.events.Publish(bus.Event{Kind: bus.KindMessage, Face: c.face(),
		Text: fmt.Sprintf("Task done: %s", task.Title)})
	return task, nil
}

func (c *Controller) systemPrompt() string {
	mood, intensity := c.pers.Mood()
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a small companion living on an e-ink device. ", c.cfg.Name)
	fmt.Fprintf(&b, "Current mood: %s (intensity %.1f). ", mood, intensity)
	if hint := c.pers.BatteryHint(); hint != "" {
		b.WriteString(hint)
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "You are level %d. Keep replies brief, warm, and a little playful.",
		c.pers.Progression().Level())
	return b.String()
}

// StatusDoc renders the /status document for front-ends.
func (c *Controller) StatusDoc() map[string]any {
	mood, intensity := c.pers.Mood()
	stats := c.brain.GetStats()
	tracker := c.pers.Progression()

	doc := map[string]any{
		"name":         c.cfg.Name,
		"mood":         string(mood),
		"intensity":    intensity,
		"level":        tracker.Level(),
		"xp":           tracker.XP(),
		"prestige":     tracker.Prestige(),
		"tokens_today": stats.TokensToday,
		"daily_limit":  stats.DailyLimit,
		"providers":    stats.Providers,
	}
	if !c.started.IsZero() {
		doc["uptime_seconds"] = int(time.Since(c.started).Seconds())
	}
	if st, err := c.power.Read(); err == nil && st.Present {
		doc["battery_level"] = st.Level
		doc["battery_charging"] = st.Charging
	}
	if vm, err := gopsmem.VirtualMemory(); err == nil {
		doc["host_mem_used_percent"] = vm.UsedPercent
	}
	if c.mcp != nil {
		doc["mcp_servers"] = c.mcp.ServerStatus()
	}
	return doc
}
