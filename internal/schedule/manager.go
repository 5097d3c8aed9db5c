package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler runs a scheduled action. The job name is passed so shared handlers
// can tell invocations apart.
type Handler func(ctx context.Context, job string) error

// Job is a snapshot of one scheduled task.
type Job struct {
	Name      string
	Expr      string
	Action    string
	Enabled   bool
	LastRun   time.Time
	RunCount  int
	LastError string
	NextRun   time.Time
}

type job struct {
	Job
	expr *Expr
}

// Manager owns the job table and the action registry. RunPending is driven
// from the heartbeat tick; actions are dispatched on their own goroutines so
// a slow handler cannot stall the tick.
type Manager struct {
	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	actions map[string]Handler
	persist func(name string, enabled bool) error
	now     func() time.Time
	wg      sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithPersist sets the callback invoked after Enable and Disable so the
// owning config can be written back.
func WithPersist(fn func(name string, enabled bool) error) Option {
	return func(m *Manager) { m.persist = fn }
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		jobs:    make(map[string]*job),
		actions: make(map[string]Handler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register stores an action handler under name, replacing any previous one.
func (m *Manager) Register(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[name] = h
}

// Add parses expr and inserts a job. The action must already be registered;
// callers loading from config should log and skip on error.
func (m *Manager) Add(name, expr, action string, enabled bool) error {
	parsed, err := ParseExpr(expr)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[name]; ok {
		return fmt.Errorf("schedule: duplicate job %q", name)
	}
	if _, ok := m.actions[action]; !ok {
		return fmt.Errorf("schedule: unknown action %q for job %q", action, name)
	}

	j := &job{
		Job:  Job{Name: name, Expr: expr, Action: action, Enabled: enabled},
		expr: parsed,
	}
	if next, err := parsed.Next(m.now()); err == nil {
		j.NextRun = next
	}
	m.jobs[name] = j
	m.order = append(m.order, name)
	return nil
}

// Remove drops a job. Removing an unknown job is a no-op.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[name]; !ok {
		return
	}
	delete(m.jobs, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Enable turns a job on and recomputes its next run from now.
func (m *Manager) Enable(name string) error {
	return m.setEnabled(name, true)
}

// Disable turns a job off. The job stays in the table.
func (m *Manager) Disable(name string) error {
	return m.setEnabled(name, false)
}

func (m *Manager) setEnabled(name string, enabled bool) error {
	m.mu.Lock()
	j, ok := m.jobs[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("schedule: unknown job %q", name)
	}
	j.Enabled = enabled
	if enabled {
		if next, err := j.expr.Next(m.now()); err == nil {
			j.NextRun = next
		}
	}
	persist := m.persist
	m.mu.Unlock()

	if persist != nil {
		if err := persist(name, enabled); err != nil {
			slog.Warn("schedule.persist_failed", "job", name, "error", err)
		}
	}
	return nil
}

// Jobs returns a snapshot of the table, in insertion order.
func (m *Manager) Jobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.jobs[name].Job)
	}
	return out
}

// Get returns one job snapshot.
func (m *Manager) Get(name string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[name]
	if !ok {
		return Job{}, false
	}
	return j.Job, true
}

// RunPending dispatches every enabled job whose next run time has arrived.
// A failing or panicking handler records last_error on its job and never
// aborts the pump.
func (m *Manager) RunPending(ctx context.Context) {
	now := m.now()

	m.mu.Lock()
	var due []*job
	for _, name := range m.order {
		j := m.jobs[name]
		if j.Enabled && !j.NextRun.IsZero() && !j.NextRun.After(now) {
			due = append(due, j)
		}
	}
	for _, j := range due {
		j.LastRun = now
		j.RunCount++
		if next, err := j.expr.Next(now); err == nil {
			j.NextRun = next
		}
	}
	handlers := make(map[string]Handler, len(due))
	for _, j := range due {
		handlers[j.Name] = m.actions[j.Action]
	}
	m.mu.Unlock()

	for _, j := range due {
		h := handlers[j.Name]
		if h == nil {
			continue
		}
		name := j.Name
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.runOne(ctx, name, h)
		}()
	}
}

func (m *Manager) runOne(ctx context.Context, name string, h Handler) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = h(ctx, name)
	}()

	m.mu.Lock()
	if j, ok := m.jobs[name]; ok {
		if err != nil {
			j.LastError = err.Error()
		} else {
			j.LastError = ""
		}
	}
	m.mu.Unlock()
	if err != nil {
		slog.Warn("schedule.job_failed", "job", name, "error", err)
	}
}

// Wait blocks until all in-flight actions finish. Called during shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}
