package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// registerActions installs the built-in scheduler actions. Config tasks
// referencing anything else are logged and skipped at load time.
func (c *Controller) registerActions() {
	c.sched.Register("ping", func(ctx context.Context, job string) error {
		slog.Debug("action.ping", "job", job)
		return nil
	})

	c.sched.Register("memory_sweep", func(ctx context.Context, job string) error {
		if c.mem == nil {
			return nil
		}
		n, err := c.mem.ForgetOld(90, 0.3)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("action.memory_sweep", "forgotten", n)
		}
		return nil
	})

	c.sched.Register("task_reminder", func(ctx context.Context, job string) error {
		overdue, err := c.tasks.Overdue()
		if err != nil {
			return err
		}
		if len(overdue) == 0 {
			return nil
		}
		titles := make([]string, 0, len(overdue))
		for _, t := range overdue {
			titles = append(titles, t.Title)
		}
		c.deliverMessage(fmt.Sprintf("Overdue: %s", strings.Join(titles, ", ")), c.face())
		return nil
	})

	c.sched.Register("daily_summary", func(ctx context.Context, job string) error {
		stats, err := c.tasks.Stats()
		if err != nil {
			return err
		}
		prompt := fmt.Sprintf(
			"Summarize the day in one friendly sentence. Tasks: %d pending, %d in progress, %d completed, %d overdue.",
			stats.Pending, stats.InProgress, stats.Completed, stats.Overdue)

		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		text, err := c.brain.Quick(ctx, c.systemPrompt(), prompt)
		if err != nil {
			return err
		}
		if text != "" {
			c.deliverMessage(text, c.face())
		}
		return nil
	})
}
