package controller

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/inkling/internal/battery"
	"github.com/nextlevelbuilder/inkling/internal/config"
	"github.com/nextlevelbuilder/inkling/internal/tasks"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GROQ_API_KEY",
		"GOOGLE_API_KEY", "GEMINI_API_KEY", "OLLAMA_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func newTestController(t *testing.T, mutate func(*config.Config)) *Controller {
	t.Helper()
	clearProviderEnv(t)

	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	if err != nil {
		t.Fatal(err)
	}
	if mutate != nil {
		mutate(cfg)
	}
	c, err := New(cfg, dir, WithBatterySource(battery.NewStaticSource(80, false)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		c.tasks.Close()
		if c.mem != nil {
			c.mem.Close()
		}
	})
	return c
}

func dispatch(t *testing.T, c *Controller, line string) string {
	t.Helper()
	out, err := c.Registry().Dispatch(context.Background(), line)
	if err != nil {
		t.Fatalf("Dispatch(%q): %v", line, err)
	}
	return out
}

func TestHelpListsBuiltins(t *testing.T) {
	c := newTestController(t, nil)
	help := dispatch(t, c, "/help")
	for _, name := range []string{"/help", "/status", "/mood", "/level", "/memory",
		"/remember", "/forget", "/tasks", "/schedule", "/prestige", "/quiet", "/journal"} {
		if !strings.Contains(help, name) {
			t.Errorf("help missing %s:\n%s", name, help)
		}
	}
}

func TestStatusCommand(t *testing.T) {
	c := newTestController(t, nil)
	out := dispatch(t, c, "/status")
	if !strings.Contains(out, "Inkling is feeling") {
		t.Errorf("status = %q", out)
	}
	if !strings.Contains(out, "Battery: 80%") {
		t.Errorf("status missing battery: %q", out)
	}
}

func TestRememberRecallForget(t *testing.T) {
	c := newTestController(t, nil)

	dispatch(t, c, "/remember pet a gray cat named Miso")
	out := dispatch(t, c, "/memory")
	if !strings.Contains(out, "pet") || !strings.Contains(out, "Miso") {
		t.Errorf("memory = %q", out)
	}

	out = dispatch(t, c, "/forget pet")
	if !strings.Contains(out, "Forgot pet") {
		t.Errorf("forget = %q", out)
	}
	out = dispatch(t, c, "/forget pet")
	if !strings.Contains(out, "don't have") {
		t.Errorf("second forget = %q", out)
	}
}

func TestMemoryDisabled(t *testing.T) {
	c := newTestController(t, func(cfg *config.Config) {
		cfg.Memory.Enabled = false
	})
	out := dispatch(t, c, "/remember k v")
	if !strings.Contains(out, "disabled") {
		t.Errorf("remember with memory off = %q", out)
	}
}

func TestTaskLifecycleThroughCommands(t *testing.T) {
	c := newTestController(t, nil)

	out := dispatch(t, c, "/tasks add water the plants")
	if !strings.Contains(out, "water the plants") {
		t.Fatalf("add = %q", out)
	}

	out = dispatch(t, c, "/tasks")
	if !strings.Contains(out, "water the plants") {
		t.Fatalf("list = %q", out)
	}

	list, err := c.tasks.List(tasks.Filter{Status: tasks.StatusPending})
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v %v", list, err)
	}

	xpBefore := c.pers.Progression().XP()
	out = dispatch(t, c, "/tasks done "+list[0].ID)
	if !strings.Contains(out, "Done: water the plants") {
		t.Errorf("done = %q", out)
	}
	if c.pers.Progression().XP() <= xpBefore {
		t.Error("completing a task did not award XP")
	}

	out = dispatch(t, c, "/tasks")
	if !strings.Contains(out, "No pending tasks") {
		t.Errorf("list after done = %q", out)
	}
}

func TestScheduleCommandsPersist(t *testing.T) {
	c := newTestController(t, func(cfg *config.Config) {
		cfg.Scheduler.Tasks = []config.TaskConfig{
			{Name: "keepalive", Schedule: "every(5).minutes", Action: "ping", Enabled: true},
		}
	})

	out := dispatch(t, c, "/schedule")
	if !strings.Contains(out, "keepalive") || !strings.Contains(out, "[on]") {
		t.Fatalf("schedule list = %q", out)
	}

	dispatch(t, c, "/schedule disable keepalive")
	out = dispatch(t, c, "/schedule")
	if !strings.Contains(out, "[off]") {
		t.Errorf("schedule after disable = %q", out)
	}

	data, err := os.ReadFile(c.cfg.Path())
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "enabled: false") {
		t.Errorf("disable not persisted:\n%s", data)
	}
}

func TestUnknownActionSkippedAtLoad(t *testing.T) {
	c := newTestController(t, func(cfg *config.Config) {
		cfg.Scheduler.Tasks = []config.TaskConfig{
			{Name: "bad", Schedule: "every(5).minutes", Action: "no_such_action", Enabled: true},
			{Name: "good", Schedule: "every(5).minutes", Action: "ping", Enabled: true},
		}
	})
	if _, ok := c.sched.Get("bad"); ok {
		t.Error("job with unknown action was loaded")
	}
	if _, ok := c.sched.Get("good"); !ok {
		t.Error("valid job was not loaded")
	}
}

func TestChatWithoutProvidersFails(t *testing.T) {
	c := newTestController(t, nil)
	if _, err := c.Chat(context.Background(), "hello"); err == nil {
		t.Fatal("chat succeeded with no providers configured")
	}
}

func TestQuietCommand(t *testing.T) {
	c := newTestController(t, nil)
	if _, err := c.Registry().Dispatch(context.Background(), "/quiet maybe"); err == nil {
		t.Error("bad /quiet argument accepted")
	}
	out := dispatch(t, c, "/quiet on")
	if !strings.Contains(out, "quiet on") {
		t.Errorf("quiet on = %q", out)
	}
	dispatch(t, c, "/quiet off")
}

func TestPrestigeGate(t *testing.T) {
	c := newTestController(t, nil)
	out := dispatch(t, c, "/prestige")
	if !strings.Contains(out, "Not yet") {
		t.Errorf("prestige at level 1 = %q", out)
	}
}

func TestStatusDoc(t *testing.T) {
	c := newTestController(t, nil)
	doc := c.StatusDoc()
	if doc["name"] != "Inkling" {
		t.Errorf("name = %v", doc["name"])
	}
	if doc["providers"] != 0 {
		t.Errorf("providers = %v, want 0", doc["providers"])
	}
	if doc["battery_level"] != 80 {
		t.Errorf("battery_level = %v", doc["battery_level"])
	}
}
