package deadletter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS dead_letters (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    task       TEXT NOT NULL,
    reason     TEXT NOT NULL,
    payload    BLOB,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dead_letters_created_at ON dead_letters (created_at);
`

// SQLiteSink appends entries to a local SQLite file, independent of the
// primary database whose failures it usually records.
type SQLiteSink struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the dead-letter database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteSink, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open dead-letter db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create dead-letter schema: %w", err)
	}
	return &SQLiteSink{db: db, now: time.Now}, nil
}

func (s *SQLiteSink) Record(ctx context.Context, entry Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letters (task, reason, payload, created_at) VALUES (?, ?, ?, ?)`,
		entry.Task, entry.Reason, entry.Payload, createdAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Recent returns the newest entries first.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task, reason, payload, created_at FROM dead_letters ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var entry Entry
		var createdAt string
		if err := rows.Scan(&entry.ID, &entry.Task, &entry.Reason, &entry.Payload, &createdAt); err != nil {
			return nil, err
		}
		entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at of dead letter %d: %w", entry.ID, err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// Close releases the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
