package tasks

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DBFile is the task database under the state directory.
const DBFile = "tasks.db"

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Priority orders tasks and scales completion rewards.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// celebrationFor scales how enthusiastically a completion is celebrated.
// Late completions fall back to the low tier regardless of priority.
var celebrationFor = map[Priority]float64{
	PriorityLow:    0.3,
	PriorityMedium: 0.5,
	PriorityHigh:   0.7,
	PriorityUrgent: 1.0,
}

// Task is one tracked item. Subtasks and SubtasksCompleted are parallel
// sequences.
type Task struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Status            Status     `json:"status"`
	Priority          Priority   `json:"priority"`
	CreatedAt         time.Time  `json:"created_at"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	MoodOnCreation    string     `json:"mood_on_creation,omitempty"`
	CelebrationLevel  float64    `json:"celebration_level"`
	Tags              []string   `json:"tags,omitempty"`
	Project           string     `json:"project,omitempty"`
	EstimatedMinutes  int        `json:"estimated_minutes,omitempty"`
	ActualMinutes     int        `json:"actual_minutes"`
	Subtasks          []string   `json:"subtasks,omitempty"`
	SubtasksCompleted []bool     `json:"subtasks_completed,omitempty"`
	MCPTool           string     `json:"mcp_tool,omitempty"`
	MCPParams         string     `json:"mcp_params,omitempty"`
	MCPResult         string     `json:"mcp_result,omitempty"`
}

// IsOverdue reports whether the task slipped past its due date without
// being completed.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.Status != StatusCompleted && t.DueDate != nil && t.DueDate.Before(now)
}

// CompletedOnTime reports whether completion beat the due date. Tasks
// without a due date count as on time.
func (t *Task) CompletedOnTime() bool {
	if t.CompletedAt == nil {
		return false
	}
	return t.DueDate == nil || !t.CompletedAt.After(*t.DueDate)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status  Status
	Project string
	Tag     string
	Limit   int
}

// Stats is the aggregate view used by status commands and prompts.
type Stats struct {
	Total            int     `json:"total"`
	Pending          int     `json:"pending"`
	InProgress       int     `json:"in_progress"`
	Completed        int     `json:"completed"`
	Overdue          int     `json:"overdue"`
	DueSoon          int     `json:"due_soon"`
	CompletionRate30 float64 `json:"completion_rate_30d"`
}

// Store is the SQLite-backed task store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id                 TEXT PRIMARY KEY,
	title              TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	priority           TEXT NOT NULL,
	created_at         INTEGER NOT NULL,
	due_date           INTEGER,
	completed_at       INTEGER,
	mood_on_creation   TEXT NOT NULL DEFAULT '',
	celebration_level  REAL NOT NULL DEFAULT 0,
	tags               TEXT NOT NULL DEFAULT '[]',
	project            TEXT NOT NULL DEFAULT '',
	estimated_minutes  INTEGER NOT NULL DEFAULT 0,
	actual_minutes     INTEGER NOT NULL DEFAULT 0,
	subtasks           TEXT NOT NULL DEFAULT '[]',
	subtasks_completed TEXT NOT NULL DEFAULT '[]',
	mcp_tool           TEXT NOT NULL DEFAULT '',
	mcp_params         TEXT NOT NULL DEFAULT '',
	mcp_result         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date);
`

// Open creates or opens tasks.db under dir.
func Open(dir string) (*Store, error) {
	dsn := filepath.Join(dir, DBFile) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open task db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init task schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Create inserts a new task, assigning id, creation time, and defaults.
func (s *Store) Create(t *Task) error {
	if t.Title == "" {
		return fmt.Errorf("task title is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	t.CreatedAt = s.now()
	return s.write(t, true)
}

// Update rewrites an existing task.
func (s *Store) Update(t *Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	return s.write(t, false)
}

func (s *Store) write(t *Task, insert bool) error {
	tags, _ := json.Marshal(orEmpty(t.Tags))
	subtasks, _ := json.Marshal(orEmpty(t.Subtasks))
	done, _ := json.Marshal(orEmptyBool(t.SubtasksCompleted))

	var query string
	if insert {
		query = `INSERT INTO tasks (id, title, description, status, priority, created_at,
			due_date, completed_at, mood_on_creation, celebration_level, tags, project,
			estimated_minutes, actual_minutes, subtasks, subtasks_completed,
			mcp_tool, mcp_params, mcp_result)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	} else {
		query = `UPDATE tasks SET title=?2, description=?3, status=?4, priority=?5, created_at=?6,
			due_date=?7, completed_at=?8, mood_on_creation=?9, celebration_level=?10, tags=?11,
			project=?12, estimated_minutes=?13, actual_minutes=?14, subtasks=?15,
			subtasks_completed=?16, mcp_tool=?17, mcp_params=?18, mcp_result=?19
			WHERE id=?1`
	}
	res, err := s.db.Exec(query,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.CreatedAt.Unix(),
		unixOrNil(t.DueDate), unixOrNil(t.CompletedAt), t.MoodOnCreation, t.CelebrationLevel,
		string(tags), t.Project, t.EstimatedMinutes, t.ActualMinutes,
		string(subtasks), string(done), t.MCPTool, t.MCPParams, t.MCPResult)
	if err != nil {
		return fmt.Errorf("write task: %w", err)
	}
	if !insert {
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("task %s not found", t.ID)
		}
	}
	return nil
}

// Get returns a task or nil when missing.
func (s *Store) Get(id string) (*Task, error) {
	rows, err := s.query(`WHERE id = ?`, id)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// List returns tasks matching the filter, newest first.
func (s *Store) List(f Filter) ([]Task, error) {
	where := `WHERE 1=1`
	var args []any
	if f.Status != "" {
		where += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Project != "" {
		where += ` AND project = ?`
		args = append(args, f.Project)
	}
	tasks, err := s.query(where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	if f.Tag != "" {
		var kept []Task
		for _, t := range tasks {
			for _, tag := range t.Tags {
				if tag == f.Tag {
					kept = append(kept, t)
					break
				}
			}
		}
		tasks = kept
	}
	if f.Limit > 0 && len(tasks) > f.Limit {
		tasks = tasks[:f.Limit]
	}
	return tasks, nil
}

// Complete marks a task done and stamps its celebration level. Returns nil
// when the task does not exist.
func (s *Store) Complete(id string) (*Task, error) {
	t, err := s.Get(id)
	if err != nil || t == nil {
		return nil, err
	}
	now := s.now()
	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.CelebrationLevel = celebrationFor[t.Priority]
	if !t.CompletedOnTime() {
		t.CelebrationLevel = celebrationFor[PriorityLow]
	}
	if err := s.Update(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a task and reports whether it existed.
func (s *Store) Delete(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Overdue returns unfinished tasks past their due date.
func (s *Store) Overdue() ([]Task, error) {
	return s.query(`WHERE status != ? AND due_date IS NOT NULL AND due_date < ?
		ORDER BY due_date ASC`, string(StatusCompleted), s.now().Unix())
}

// DueSoon returns unfinished tasks due within the next days.
func (s *Store) DueSoon(days int) ([]Task, error) {
	now := s.now()
	return s.query(`WHERE status != ? AND due_date IS NOT NULL AND due_date >= ? AND due_date <= ?
		ORDER BY due_date ASC`,
		string(StatusCompleted), now.Unix(), now.AddDate(0, 0, days).Unix())
}

// Stats aggregates the table. The 30-day completion rate is completed over
// created within the last 30 days; no recent tasks yields 0.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	counts := map[Status]*int{
		StatusPending:    &st.Pending,
		StatusInProgress: &st.InProgress,
		StatusCompleted:  &st.Completed,
	}
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return st, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return st, err
		}
		st.Total += n
		if p, ok := counts[Status(status)]; ok {
			*p = n
		}
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	overdue, err := s.Overdue()
	if err != nil {
		return st, err
	}
	st.Overdue = len(overdue)
	soon, err := s.DueSoon(7)
	if err != nil {
		return st, err
	}
	st.DueSoon = len(soon)

	cutoff := s.now().AddDate(0, 0, -30).Unix()
	var created, completed int
	err = s.db.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM tasks WHERE created_at >= ?`, string(StatusCompleted), cutoff).
		Scan(&created, &completed)
	if err != nil {
		return st, err
	}
	// An empty window counts as a perfect rate.
	st.CompletionRate30 = 1.0
	if created > 0 {
		st.CompletionRate30 = float64(completed) / float64(created)
	}
	return st, nil
}

const columns = `id, title, description, status, priority, created_at, due_date, completed_at,
	mood_on_creation, celebration_level, tags, project, estimated_minutes, actual_minutes,
	subtasks, subtasks_completed, mcp_tool, mcp_params, mcp_result`

func (s *Store) query(clause string, args ...any) ([]Task, error) {
	rows, err := s.db.Query(`SELECT `+columns+` FROM tasks `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		var status, priority, tags, subtasks, done string
		var createdAt int64
		var dueDate, completedAt sql.NullInt64
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &createdAt,
			&dueDate, &completedAt, &t.MoodOnCreation, &t.CelebrationLevel, &tags, &t.Project,
			&t.EstimatedMinutes, &t.ActualMinutes, &subtasks, &done,
			&t.MCPTool, &t.MCPParams, &t.MCPResult); err != nil {
			return nil, err
		}
		t.Status = Status(status)
		t.Priority = Priority(priority)
		t.CreatedAt = time.Unix(createdAt, 0)
		if dueDate.Valid {
			d := time.Unix(dueDate.Int64, 0)
			t.DueDate = &d
		}
		if completedAt.Valid {
			c := time.Unix(completedAt.Int64, 0)
			t.CompletedAt = &c
		}
		_ = json.Unmarshal([]byte(tags), &t.Tags)
		_ = json.Unmarshal([]byte(subtasks), &t.Subtasks)
		_ = json.Unmarshal([]byte(done), &t.SubtasksCompleted)
		out = append(out, t)
	}
	return out, rows.Err()
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyBool(s []bool) []bool {
	if s == nil {
		return []bool{}
	}
	return s
}
