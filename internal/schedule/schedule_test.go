package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseExpr(t *testing.T) {
	valid := []string{
		"every(5).minutes",
		"every().monday.at('09:00')",
		"every(1).seconds",
		"every(2).hours",
		"every(1).days.at('07:30')",
		"every().sunday",
		"every(3).weeks",
		"*/5 * * * *",
	}
	for _, expr := range valid {
		if _, err := ParseExpr(expr); err != nil {
			t.Errorf("ParseExpr(%q) = %v, want ok", expr, err)
		}
	}

	invalid := []string{
		"every().__import__('os')",
		"every(5).fortnights",
		"every(2).monday",
		"every().monday.at('25:00')",
		"every(1).minutes.at('09:00')",
		"__import__('os').system('rm -rf /')",
		"every(5).minutes; import os",
		"",
	}
	for _, expr := range invalid {
		if _, err := ParseExpr(expr); err == nil {
			t.Errorf("ParseExpr(%q) = ok, want error", expr)
		}
	}
}

func TestExprNext(t *testing.T) {
	// a Sunday
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"every(5).minutes", from.Add(5 * time.Minute)},
		{"every(1).seconds", from.Add(time.Second)},
		{"every(2).days", from.AddDate(0, 0, 2)},
		{"every().monday.at('09:00')", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		{"every().sunday", time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)},
		{"every(1).days.at('07:30')", time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)},
		{"every(1).days.at('18:00')", time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			e, err := ParseExpr(tt.expr)
			if err != nil {
				t.Fatalf("ParseExpr: %v", err)
			}
			got, err := e.Next(from)
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExprNext_RawCron(t *testing.T) {
	e, err := ParseExpr("0 9 * * *")
	if err != nil {
		t.Fatalf("ParseExpr: %v", err)
	}
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got, err := e.Next(from)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
}

func TestManager_RunPending(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	m := NewManager(WithClock(func() time.Time { return now }))

	var pings atomic.Int32
	m.Register("ping", func(ctx context.Context, job string) error {
		pings.Add(1)
		return nil
	})
	if err := m.Add("ping-job", "every(1).minutes", "ping", true); err != nil {
		t.Fatalf("Add: %v", err)
	}

	m.RunPending(context.Background())
	m.Wait()
	if got := pings.Load(); got != 0 {
		t.Fatalf("ran %d times before the interval elapsed", got)
	}

	now = start.Add(90 * time.Second)
	m.RunPending(context.Background())
	m.Wait()

	j, ok := m.Get("ping-job")
	if !ok {
		t.Fatal("job missing")
	}
	if j.RunCount != 1 {
		t.Errorf("RunCount = %d, want 1", j.RunCount)
	}
	if j.LastRun.Before(start.Add(60*time.Second)) || j.LastRun.After(start.Add(90*time.Second)) {
		t.Errorf("LastRun = %v, want within [t+60s, t+90s]", j.LastRun)
	}
	if got := pings.Load(); got != 1 {
		t.Errorf("handler ran %d times, want 1", got)
	}
	if want := j.LastRun.Add(time.Minute); !j.NextRun.Equal(want) {
		t.Errorf("NextRun = %v, want %v", j.NextRun, want)
	}
}

func TestManager_DisabledJobsSkipped(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	m := NewManager(WithClock(func() time.Time { return now }))

	var runs atomic.Int32
	m.Register("noop", func(ctx context.Context, job string) error {
		runs.Add(1)
		return nil
	})
	if err := m.Add("j", "every(1).minutes", "noop", true); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Disable("j"); err != nil {
		t.Fatalf("Disable: %v", err)
	}

	now = start.Add(5 * time.Minute)
	m.RunPending(context.Background())
	m.Wait()
	if runs.Load() != 0 {
		t.Error("disabled job ran")
	}

	if err := m.Enable("j"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	now = now.Add(61 * time.Second)
	m.RunPending(context.Background())
	m.Wait()
	if runs.Load() != 1 {
		t.Errorf("runs = %d, want 1 after re-enable", runs.Load())
	}
}

func TestManager_FailingActionRecordsError(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	m := NewManager(WithClock(func() time.Time { return now }))

	m.Register("boom", func(ctx context.Context, job string) error {
		return errors.New("handler broke")
	})
	var ok atomic.Int32
	m.Register("fine", func(ctx context.Context, job string) error {
		ok.Add(1)
		return nil
	})
	if err := m.Add("a-boom", "every(1).minutes", "boom", true); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Add("b-fine", "every(1).minutes", "fine", true); err != nil {
		t.Fatalf("Add: %v", err)
	}

	now = start.Add(2 * time.Minute)
	m.RunPending(context.Background())
	m.Wait()

	j, _ := m.Get("a-boom")
	if j.LastError != "handler broke" {
		t.Errorf("LastError = %q, want %q", j.LastError, "handler broke")
	}
	if ok.Load() != 1 {
		t.Error("failure in one job aborted the pump")
	}
}

func TestManager_PanickingActionRecovered(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	m := NewManager(WithClock(func() time.Time { return now }))

	m.Register("panics", func(ctx context.Context, job string) error {
		panic("unexpected")
	})
	if err := m.Add("p", "every(1).minutes", "panics", true); err != nil {
		t.Fatalf("Add: %v", err)
	}

	now = start.Add(2 * time.Minute)
	m.RunPending(context.Background())
	m.Wait()

	j, _ := m.Get("p")
	if j.LastError == "" {
		t.Error("panic did not populate LastError")
	}
	if j.RunCount != 1 {
		t.Errorf("RunCount = %d, want 1", j.RunCount)
	}
}

func TestManager_UnknownActionRejected(t *testing.T) {
	m := NewManager()
	if err := m.Add("x", "every(1).minutes", "nope", true); err == nil {
		t.Error("Add with unregistered action succeeded")
	}
}

func TestManager_PersistCalledOnToggle(t *testing.T) {
	type call struct {
		name    string
		enabled bool
	}
	var calls []call
	m := NewManager(WithPersist(func(name string, enabled bool) error {
		calls = append(calls, call{name, enabled})
		return nil
	}))
	m.Register("noop", func(ctx context.Context, job string) error { return nil })
	if err := m.Add("j", "every(1).hours", "noop", true); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := m.Disable("j"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := m.Enable("j"); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	want := []call{{"j", false}, {"j", true}}
	if len(calls) != len(want) {
		t.Fatalf("persist calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("persist call %d = %v, want %v", i, calls[i], want[i])
		}
	}
}

func TestManager_PersistFailureKeepsChange(t *testing.T) {
	m := NewManager(WithPersist(func(string, bool) error {
		return errors.New("disk full")
	}))
	m.Register("noop", func(ctx context.Context, job string) error { return nil })
	if err := m.Add("j", "every(1).hours", "noop", true); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Disable("j"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if j, _ := m.Get("j"); j.Enabled {
		t.Error("failed persist reverted the in-memory change")
	}
}
