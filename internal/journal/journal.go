// Package journal records sync operations in an embedded SQLite
// database.
//
// Every push or pull attempted by a reconciliation pass gets one row:
// enqueued, then in-progress, then completed or failed. Failed rows are
// retained until the next pass re-enqueues the same document, so the
// status command can always show what went wrong last; completed rows
// are pruned by age.
//
// The database runs in embedded mode with WAL so the daemon can write
// while the status command reads.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Direction of a sync operation.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

// Status of a sync operation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Operation is one recorded sync operation.
type Operation struct {
	ID         int64
	DocID      string
	Title      string
	Direction  Direction
	Status     Status
	Error      string
	EnqueuedAt time.Time
	FinishedAt *time.Time
}

// Journal wraps the operations database.
type Journal struct {
	conn *sql.DB
	path string
}

// Open creates or opens the journal database at path.
//
// The caller MUST call Close() when done.
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	j := &Journal{conn: conn, path: path}

	if _, err := j.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := j.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return j, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	if j.conn == nil {
		return nil
	}
	if err := j.conn.Close(); err != nil {
		return fmt.Errorf("failed to close journal database: %w", err)
	}
	j.conn = nil
	return nil
}

// InitSchema creates the operations table if it doesn't exist.
// Idempotent - safe to call multiple times.
func (j *Journal) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		doc_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		direction TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT NOT NULL DEFAULT '',
		enqueued_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_operations_doc ON operations(doc_id);
	CREATE INDEX IF NOT EXISTS idx_operations_status ON operations(status);
	CREATE INDEX IF NOT EXISTS idx_operations_enqueued ON operations(enqueued_at);
	`
	if _, err := j.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return nil
}

// Record inserts a pending operation and returns its id. Any earlier
// failed rows for the same document are superseded (deleted) because
// this new attempt is the retry.
func (j *Journal) Record(ctx context.Context, docID, title string, dir Direction) (int64, error) {
	if _, err := j.conn.ExecContext(ctx,
		`DELETE FROM operations WHERE doc_id = ? AND status = 'failed'`, docID); err != nil {
		return 0, fmt.Errorf("failed to supersede failed operations: %w", err)
	}

	res, err := j.conn.ExecContext(ctx,
		`INSERT INTO operations (doc_id, title, direction, status, enqueued_at)
		 VALUES (?, ?, ?, 'pending', ?)`,
		docID, title, string(dir), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to record operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get operation id: %w", err)
	}
	return id, nil
}

// SetStatus transitions an operation. opErr may be nil; a non-nil error
// is stored alongside the failed status.
func (j *Journal) SetStatus(ctx context.Context, id int64, status Status, opErr error) error {
	msg := ""
	if opErr != nil {
		msg = opErr.Error()
	}

	var finished any
	if status == StatusCompleted || status == StatusFailed {
		finished = time.Now().UTC().Format(time.RFC3339Nano)
	}

	_, err := j.conn.ExecContext(ctx,
		`UPDATE operations SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), msg, finished, id)
	if err != nil {
		return fmt.Errorf("failed to update operation %d: %w", id, err)
	}
	return nil
}

// Recent returns the most recently enqueued operations, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Operation, error) {
	rows, err := j.conn.QueryContext(ctx,
		`SELECT id, doc_id, title, direction, status, error, enqueued_at, finished_at
		 FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()
	return scanOperations(rows)
}

// Failed returns all operations currently in the failed state.
func (j *Journal) Failed(ctx context.Context) ([]Operation, error) {
	rows, err := j.conn.QueryContext(ctx,
		`SELECT id, doc_id, title, direction, status, error, enqueued_at, finished_at
		 FROM operations WHERE status = 'failed' ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed operations: %w", err)
	}
	defer rows.Close()
	return scanOperations(rows)
}

// PruneCompleted deletes completed operations finished before the
// cutoff. Failed operations are never pruned here.
func (j *Journal) PruneCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339Nano)
	res, err := j.conn.ExecContext(ctx,
		`DELETE FROM operations WHERE status = 'completed' AND finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune operations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned operations: %w", err)
	}
	return n, nil
}

func scanOperations(rows *sql.Rows) ([]Operation, error) {
	var ops []Operation
	for rows.Next() {
		var (
			op          Operation
			direction   string
			status      string
			enqueuedAt  string
			finishedAt  sql.NullString
		)
		if err := rows.Scan(&op.ID, &op.DocID, &op.Title, &direction, &status,
			&op.Error, &enqueuedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		op.Direction = Direction(direction)
		op.Status = Status(status)

		ts, err := time.Parse(time.RFC3339Nano, enqueuedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse enqueued_at: %w", err)
		}
		op.EnqueuedAt = ts

		if finishedAt.Valid {
			fts, err := time.Parse(time.RFC3339Nano, finishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse finished_at: %w", err)
			}
			op.FinishedAt = &fts
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate operations: %w", err)
	}
	return ops, nil
}
