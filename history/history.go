package history

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS cycles (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp_ns  INTEGER NOT NULL,
    root          TEXT NOT NULL,
    modified      INTEGER NOT NULL,
    created       INTEGER NOT NULL,
    deleted       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS changes (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle_id      INTEGER NOT NULL REFERENCES cycles(id),
    path          TEXT NOT NULL,
    change_type   TEXT NOT NULL,
    timestamp_ns  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cycles_timestamp ON cycles(timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_changes_path ON changes(path, timestamp_ns);
`

// Change is one path observed changing between two consecutive cycles.
type Change struct {
	Path string
	Type string
}

// Cycle summarizes one recorded monitoring cycle.
type Cycle struct {
	ID        int64
	Timestamp time.Time
	Root      string
	Modified  int
	New       int
	Deleted   int
}

// Store keeps per-cycle churn so path change frequency can be derived.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordCycle stores a cycle and the paths that changed since the previous
// one. A cycle with no changes is still recorded so frequencies stay
// relative to the number of observations.
func (s *Store) RecordCycle(at time.Time, root string, changes []Change) (int64, error) {
	var modified, created, deleted int
	for _, c := range changes {
		switch c.Type {
		case "modified":
			modified++
		case "new":
			created++
		case "deleted":
			deleted++
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := at.UnixNano()
	result, err := tx.Exec(`
		INSERT INTO cycles (timestamp_ns, root, modified, created, deleted)
		VALUES (?, ?, ?, ?, ?)`,
		ts, root, modified, created, deleted,
	)
	if err != nil {
		return 0, fmt.Errorf("insert cycle: %w", err)
	}
	cycleID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	if len(changes) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO changes (cycle_id, path, change_type, timestamp_ns)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return 0, fmt.Errorf("prepare statement: %w", err)
		}
		defer stmt.Close()
		for _, c := range changes {
			if _, err := stmt.Exec(cycleID, c.Path, c.Type, ts); err != nil {
				return 0, fmt.Errorf("insert change: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return cycleID, nil
}

// ChangeCount returns how many recorded cycles since the given time saw path
// change.
func (s *Store) ChangeCount(path string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(DISTINCT cycle_id) FROM changes
		WHERE path = ? AND timestamp_ns >= ?`,
		path, sinceNanos(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count changes: %w", err)
	}
	return n, nil
}

// CycleCount returns how many cycles were recorded since the given time.
func (s *Store) CycleCount(since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM cycles WHERE timestamp_ns >= ?`, sinceNanos(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cycles: %w", err)
	}
	return n, nil
}

// RecentCycles returns up to limit cycles, newest first.
func (s *Store) RecentCycles(limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT id, timestamp_ns, root, modified, created, deleted
		FROM cycles ORDER BY timestamp_ns DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var c Cycle
		var ts int64
		if err := rows.Scan(&c.ID, &ts, &c.Root, &c.Modified, &c.New, &c.Deleted); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		c.Timestamp = time.Unix(0, ts).UTC()
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// Prune removes cycles and changes older than the given time.
func (s *Store) Prune(before time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	ts := before.UnixNano()
	if _, err := tx.Exec(`DELETE FROM changes WHERE timestamp_ns < ?`, ts); err != nil {
		return fmt.Errorf("prune changes: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM cycles WHERE timestamp_ns < ?`, ts); err != nil {
		return fmt.Errorf("prune cycles: %w", err)
	}
	return tx.Commit()
}

// sinceNanos maps the zero time to the smallest timestamp; UnixNano is not
// defined that far back.
func sinceNanos(t time.Time) int64 {
	if t.IsZero() {
		return math.MinInt64
	}
	return t.UnixNano()
}
