// Package memory is the keyed fact store backing prompt augmentation and the
// rule-based capture pipeline. Facts live in memory.db (SQLite) keyed by
// (category, key) with importance weighting and recency-decayed recall.
package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DBFile is the database filename under the state directory.
const DBFile = "memory.db"

// Category classifies a stored fact.
type Category string

const (
	CategoryUser       Category = "user"
	CategoryPreference Category = "preference"
	CategoryFact       Category = "fact"
	CategoryEvent      Category = "event"
)

// decayHalfScale controls recency decay in recall ranking: score is
// importance * exp(-ageDays/30), so a month-old entry scores at ~37%.
const decayHalfScale = 30.0

// Entry is one remembered fact.
type Entry struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Category    Category  `json:"category"`
	Importance  float64   `json:"importance"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	AccessCount int       `json:"access_count"`
}

// Store is the SQLite-backed fact store. Safe for concurrent use via the
// database/sql pool.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	category     TEXT NOT NULL,
	key          TEXT NOT NULL,
	value        TEXT NOT NULL,
	importance   REAL NOT NULL,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (category, key)
);
CREATE INDEX IF NOT EXISTS idx_memories_updated ON memories(updated_at);
`

// Open opens or creates memory.db inside dir.
func Open(dir string) (*Store, error) {
	path := filepath.Join(dir, DBFile)
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", DBFile, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", DBFile, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", DBFile, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Remember upserts a fact. Repeated calls with the same (category, key)
// update value, importance, and updated_at without creating duplicates.
// Importance is clamped to [0, 1].
func (s *Store) Remember(key, value string, cat Category, importance float64) error {
	importance = clamp01(importance)
	now := s.now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO memories (category, key, value, importance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(category, key) DO UPDATE SET
			value = excluded.value,
			importance = excluded.importance,
			updated_at = excluded.updated_at`,
		string(cat), key, value, importance, now, now)
	if err != nil {
		return fmt.Errorf("remember %s/%s: %w", cat, key, err)
	}
	return nil
}

// Get returns the fact identified by (category, key), bumping its access
// count, or nil when absent.
func (s *Store) Get(key string, cat Category) (*Entry, error) {
	row := s.db.QueryRow(`
		SELECT category, key, value, importance, created_at, updated_at, access_count
		FROM memories WHERE category = ? AND key = ?`, string(cat), key)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	_, _ = s.db.Exec(`UPDATE memories SET access_count = access_count + 1
		WHERE category = ? AND key = ?`, string(cat), key)
	e.AccessCount++
	return e, nil
}

// Recall finds facts whose key or value contains term (case-insensitive),
// optionally restricted to one category, ranked by importance times recency
// decay, best first.
func (s *Store) Recall(term string, cat Category, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + strings.ToLower(term) + "%"

	query := `SELECT category, key, value, importance, created_at, updated_at, access_count
		FROM memories WHERE (lower(key) LIKE ? OR lower(value) LIKE ?)`
	args := []any{pattern, pattern}
	if cat != "" {
		query += " AND category = ?"
		args = append(args, string(cat))
	}

	entries, err := s.queryEntries(query, args...)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sort.SliceStable(entries, func(i, j int) bool {
		return s.score(entries[i], now) > s.score(entries[j], now)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// RecallByCategory returns up to limit facts in one category, ranked the same
// way Recall ranks matches.
func (s *Store) RecallByCategory(cat Category, limit int) ([]Entry, error) {
	return s.Recall("", cat, limit)
}

// RecallRecent returns the most recently updated facts.
func (s *Store) RecallRecent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryEntries(`SELECT category, key, value, importance, created_at, updated_at, access_count
		FROM memories ORDER BY updated_at DESC LIMIT ?`, limit)
}

// RecallImportant returns the highest-importance facts.
func (s *Store) RecallImportant(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryEntries(`SELECT category, key, value, importance, created_at, updated_at, access_count
		FROM memories ORDER BY importance DESC, updated_at DESC LIMIT ?`, limit)
}

// Forget deletes facts whose key matches, across all categories when cat
// is empty. Returns the number removed.
func (s *Store) Forget(key string, cat Category) (int, error) {
	var res sql.Result
	var err error
	if cat == "" {
		res, err = s.db.Exec(`DELETE FROM memories WHERE key = ?`, key)
	} else {
		res, err = s.db.Exec(`DELETE FROM memories WHERE key = ? AND category = ?`, key, string(cat))
	}
	if err != nil {
		return 0, fmt.Errorf("forget %s: %w", key, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ForgetOld deletes facts older than maxAgeDays whose importance is below
// threshold, returning the number pruned.
func (s *Store) ForgetOld(maxAgeDays int, threshold float64) (int, error) {
	cutoff := s.now().AddDate(0, 0, -maxAgeDays).Unix()
	res, err := s.db.Exec(`DELETE FROM memories WHERE updated_at < ? AND importance < ?`,
		cutoff, threshold)
	if err != nil {
		return 0, fmt.Errorf("forget old: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Count returns the number of stored facts, optionally for one category.
func (s *Store) Count(cat Category) (int, error) {
	var n int
	var err error
	if cat == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&n)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE category = ?`, string(cat)).Scan(&n)
	}
	return n, err
}

func (s *Store) score(e Entry, now time.Time) float64 {
	ageDays := now.Sub(e.UpdatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return e.Importance * math.Exp(-ageDays/decayHalfScale)
}

func (s *Store) queryEntries(query string, args ...any) ([]Entry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (*Entry, error) {
	var e Entry
	var cat string
	var created, updated int64
	if err := r.Scan(&cat, &e.Key, &e.Value, &e.Importance, &created, &updated, &e.AccessCount); err != nil {
		return nil, err
	}
	e.Category = Category(cat)
	e.CreatedAt = time.Unix(created, 0)
	e.UpdatedAt = time.Unix(updated, 0)
	return &e, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
