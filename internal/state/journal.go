package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// JournalEntry records the outcome of one intake run.
type JournalEntry struct {
	ID          string
	Requester   string
	Description string
	Outcome     string
	Reason      string
	TaskID      string
	AssigneeID  string
	Conflicts   []string
	Duration    time.Duration
	CreatedAt   time.Time
}

// Journal is the append-only audit log of intake runs. It lives in its own
// database file so clearing the cache never erases audit history.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens the intake journal at the given path, creating the
// database and parent directories if needed.
func OpenJournal(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS intakes (
			id TEXT PRIMARY KEY,
			requester TEXT,
			description TEXT,
			outcome TEXT,
			reason TEXT,
			task_id TEXT,
			assignee_id TEXT,
			conflicts TEXT,
			duration_ms INT,
			created_at DATETIME
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create intakes table: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record appends an intake entry. A missing ID or timestamp is filled in.
func (j *Journal) Record(e *JournalEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	conflicts, err := json.Marshal(e.Conflicts)
	if err != nil {
		return fmt.Errorf("marshal conflicts: %w", err)
	}

	_, err = j.db.Exec(`
		INSERT INTO intakes (id, requester, description, outcome, reason, task_id,
			assignee_id, conflicts, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Requester, e.Description, e.Outcome, e.Reason, e.TaskID,
		e.AssigneeID, string(conflicts), e.Duration.Milliseconds(), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert intake: %w", err)
	}
	return nil
}

// Recent returns the most recent intake entries, newest first.
func (j *Journal) Recent(limit int) ([]JournalEntry, error) {
	rows, err := j.db.Query(`
		SELECT id, requester, description, outcome, reason, task_id,
			assignee_id, conflicts, duration_ms, created_at
		FROM intakes ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list intakes: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var conflicts string
		var durationMS int64
		if err := rows.Scan(&e.ID, &e.Requester, &e.Description, &e.Outcome,
			&e.Reason, &e.TaskID, &e.AssigneeID, &conflicts,
			&durationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan intake: %w", err)
		}
		if err := json.Unmarshal([]byte(conflicts), &e.Conflicts); err != nil {
			return nil, fmt.Errorf("unmarshal conflicts: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get retrieves a single intake entry by ID. Returns nil if not found.
func (j *Journal) Get(id string) (*JournalEntry, error) {
	row := j.db.QueryRow(`
		SELECT id, requester, description, outcome, reason, task_id,
			assignee_id, conflicts, duration_ms, created_at
		FROM intakes WHERE id = ?
	`, id)

	var e JournalEntry
	var conflicts string
	var durationMS int64
	err := row.Scan(&e.ID, &e.Requester, &e.Description, &e.Outcome,
		&e.Reason, &e.TaskID, &e.AssigneeID, &conflicts,
		&durationMS, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get intake: %w", err)
	}

	if err := json.Unmarshal([]byte(conflicts), &e.Conflicts); err != nil {
		return nil, fmt.Errorf("unmarshal conflicts: %w", err)
	}
	e.Duration = time.Duration(durationMS) * time.Millisecond
	return &e, nil
}

// PurgeOlderThan deletes intake entries older than the specified duration.
// Returns the number of entries deleted.
func (j *Journal) PurgeOlderThan(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	result, err := j.db.Exec(`
		DELETE FROM intakes WHERE created_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge intakes: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
