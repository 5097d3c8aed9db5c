package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/inkling/internal/frontend"
	"github.com/nextlevelbuilder/inkling/internal/memory"
	"github.com/nextlevelbuilder/inkling/internal/progression"
	"github.com/nextlevelbuilder/inkling/internal/tasks"
)

func (c *Controller) registerCommands() {
	reg := func(cmd frontend.Command) { _ = c.registry.Register(cmd) }

	reg(frontend.Command{
		Name: "help", Description: "list available commands", Category: "general",
		Handler: func(context.Context, string) (string, error) {
			return c.registry.Help(), nil
		},
	})
	reg(frontend.Command{
		Name: "status", Description: "show companion status", Category: "general",
		Handler: c.cmdStatus,
	})
	reg(frontend.Command{
		Name: "mood", Description: "show current mood", Category: "companion",
		Handler: c.cmdMood,
	})
	reg(frontend.Command{
		Name: "level", Description: "show level, XP, and badges", Category: "companion",
		Handler: c.cmdLevel,
	})
	reg(frontend.Command{
		Name: "prestige", Description: "reset to level 1 for a permanent XP boost", Category: "companion",
		Handler: c.cmdPrestige,
	})
	reg(frontend.Command{
		Name: "quiet", Description: "toggle focus quiet mode (on|off)", Category: "companion",
		Handler: c.cmdQuiet,
	})
	reg(frontend.Command{
		Name: "journal", Description: "show recent autonomous thoughts", Category: "companion",
		Handler: c.cmdJournal,
	})
	reg(frontend.Command{
		Name: "memory", Description: "show what I remember", Category: "memory",
		Handler: c.cmdMemory,
	})
	reg(frontend.Command{
		Name: "remember", Description: "store a fact: /remember <key> <value>", Category: "memory",
		Handler: c.cmdRemember,
	})
	reg(frontend.Command{
		Name: "forget", Description: "drop a fact: /forget <key>", Category: "memory",
		Handler: c.cmdForget,
	})
	reg(frontend.Command{
		Name: "tasks", Description: "list tasks, or: add <title> | done <id>", Category: "productivity",
		Handler: c.cmdTasks,
	})
	reg(frontend.Command{
		Name: "schedule", Description: "list jobs, or: enable <name> | disable <name>", Category: "productivity",
		Handler: c.cmdSchedule,
	})
}

func (c *Controller) cmdStatus(context.Context, string) (string, error) {
	mood, intensity := c.pers.Mood()
	stats := c.brain.GetStats()
	tracker := c.pers.Progression()

	var b strings.Builder
	fmt.Fprintf(&b, "%s is feeling %s (%.1f)\n", c.cfg.Name, mood, intensity)
	fmt.Fprintf(&b, "Level %d, %d XP, prestige %d\n", tracker.Level(), tracker.XP(), tracker.Prestige())
	fmt.Fprintf(&b, "Tokens today: %d/%d, providers: %d", stats.TokensToday, stats.DailyLimit, stats.Providers)
	if st, err := c.power.Read(); err == nil && st.Present {
		state := "discharging"
		if st.Charging {
			state = "charging"
		}
		fmt.Fprintf(&b, "\nBattery: %d%% (%s)", st.Level, state)
	}
	return b.String(), nil
}

func (c *Controller) cmdMood(context.Context, string) (string, error) {
	mood, intensity := c.pers.Mood()
	out := fmt.Sprintf("Mood: %s, intensity %.1f, energy %.1f", mood, intensity, c.pers.Energy())
	if hint := c.pers.BatteryHint(); hint != "" {
		out += "\n" + hint
	}
	return out, nil
}

func (c *Controller) cmdLevel(context.Context, string) (string, error) {
	tr := c.pers.Progression()
	var b strings.Builder
	fmt.Fprintf(&b, "Level %d, %d XP (next level at %d)\n",
		tr.Level(), tr.XP(), progression.XPForLevel(tr.Level()+1))
	fmt.Fprintf(&b, "Prestige %d, streak %d days", tr.Prestige(), tr.CurrentStreak())
	if badges := tr.Badges(); len(badges) > 0 {
		fmt.Fprintf(&b, "\nBadges: %s", strings.Join(badges, ", "))
	}
	return b.String(), nil
}

func (c *Controller) cmdPrestige(context.Context, string) (string, error) {
	tr := c.pers.Progression()
	if !tr.CanPrestige() {
		return fmt.Sprintf("Not yet: prestige unlocks at level 25 (currently %d).", tr.Level()), nil
	}
	if err := tr.DoPrestige(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Prestige %d! Back to level 1 with a %dx XP multiplier.",
		tr.Prestige(), tr.XPMultiplier()), nil
}

func (c *Controller) cmdQuiet(_ context.Context, args string) (string, error) {
	switch strings.ToLower(args) {
	case "on":
		c.heart.SetFocusQuiet(true)
		return "Focus quiet on. I'll keep to myself.", nil
	case "off":
		c.heart.SetFocusQuiet(false)
		return "Focus quiet off. Back to normal.", nil
	default:
		return "", fmt.Errorf("usage: /quiet on|off")
	}
}

func (c *Controller) cmdJournal(context.Context, string) (string, error) {
	lines, err := c.journal.Recent(10)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "No thoughts yet.", nil
	}
	return strings.Join(lines, "\n"), nil
}

func (c *Controller) cmdMemory(context.Context, string) (string, error) {
	if c.mem == nil {
		return "Memory is disabled.", nil
	}
	n, err := c.mem.Count("")
	if err != nil {
		return "", err
	}
	entries, err := c.mem.RecallRecent(5)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d facts stored.", n)
	for _, e := range entries {
		fmt.Fprintf(&b, "\n- [%s] %s: %s", e.Category, e.Key, e.Value)
	}
	return b.String(), nil
}

func (c *Controller) cmdRemember(_ context.Context, args string) (string, error) {
	if c.mem == nil {
		return "Memory is disabled.", nil
	}
	key, value, ok := strings.Cut(args, " ")
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("usage: /remember <key> <value>")
	}
	if err := c.mem.Remember(key, strings.TrimSpace(value), memory.CategoryFact, 0.8); err != nil {
		return "", err
	}
	return fmt.Sprintf("Got it. %s: %s", key, strings.TrimSpace(value)), nil
}

func (c *Controller) cmdForget(_ context.Context, args string) (string, error) {
	if c.mem == nil {
		return "Memory is disabled.", nil
	}
	key := strings.TrimSpace(args)
	if key == "" {
		return "", fmt.Errorf("usage: /forget <key>")
	}
	n, err := c.mem.Forget(key, "")
	if err != nil {
		return "", err
	}
	if n == 0 {
		return fmt.Sprintf("I don't have anything called %q.", key), nil
	}
	return fmt.Sprintf("Forgot %s.", key), nil
}

func (c *Controller) cmdTasks(_ context.Context, args string) (string, error) {
	verb, rest, _ := strings.Cut(args, " ")
	switch verb {
	case "add":
		title := strings.TrimSpace(rest)
		if title == "" {
			return "", fmt.Errorf("usage: /tasks add <title>")
		}
		task := &tasks.Task{Title: title}
		if err := c.tasks.Create(task); err != nil {
			return "", err
		}
		return fmt.Sprintf("Added %q (%s).", task.Title, task.ID), nil
	case "done":
		id := strings.TrimSpace(rest)
		task, err := c.CompleteTask(id)
		if err != nil {
			return "", err
		}
		if task == nil {
			return fmt.Sprintf("No task %q.", id), nil
		}
		return fmt.Sprintf("Done: %s", task.Title), nil
	case "":
		list, err := c.tasks.List(tasks.Filter{Status: tasks.StatusPending, Limit: 10})
		if err != nil {
			return "", err
		}
		if len(list) == 0 {
			return "No pending tasks.", nil
		}
		var b strings.Builder
		b.WriteString("Pending tasks:")
		now := time.Now()
		for _, t := range list {
			fmt.Fprintf(&b, "\n- [%s] %s (%s)", t.Priority, t.Title, t.ID)
			if t.IsOverdue(now) {
				b.WriteString(" OVERDUE")
			}
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("usage: /tasks [add <title> | done <id>]")
	}
}

func (c *Controller) cmdSchedule(_ context.Context, args string) (string, error) {
	verb, name, _ := strings.Cut(args, " ")
	name = strings.TrimSpace(name)
	switch verb {
	case "enable":
		if err := c.sched.Enable(name); err != nil {
			return "", err
		}
		return fmt.Sprintf("Enabled %s.", name), nil
	case "disable":
		if err := c.sched.Disable(name); err != nil {
			return "", err
		}
		return fmt.Sprintf("Disabled %s.", name), nil
	case "":
		jobs := c.sched.Jobs()
		if len(jobs) == 0 {
			return "No scheduled jobs.", nil
		}
		var b strings.Builder
		b.WriteString("Scheduled jobs:")
		for _, j := range jobs {
			state := "on"
			if !j.Enabled {
				state = "off"
			}
			fmt.Fprintf(&b, "\n- %s [%s] %s, next %s, runs %d",
				j.Name, state, j.Expr, j.NextRun.Format("Jan 2 15:04"), j.RunCount)
			if j.LastError != "" {
				fmt.Fprintf(&b, " (last error: %s)", j.LastError)
			}
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("usage: /schedule [enable <name> | disable <name>]")
	}
}
