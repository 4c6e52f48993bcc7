// Package postgres implements logstore.Store on PostgreSQL. Each entry is a
// sequence of chunk rows per location; Replace swaps the whole sequence in
// one transaction so readers never observe a half-rewritten entry.
package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"taskplane/internal/logstore"
	"taskplane/internal/task"
)

// Store is a PostgreSQL-backed log store.
type Store struct {
	db *sql.DB
}

var _ logstore.Store = (*Store)(nil)

// New opens the database at connStr, verifies connectivity and applies any
// pending migrations.
func New(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Append(ctx context.Context, loc task.LogLocation, p []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO log_chunks (location, content) VALUES ($1, $2)`,
		string(loc), p)
	if err != nil {
		return fmt.Errorf("appending log chunk: %w", err)
	}
	return nil
}

func (s *Store) Replace(ctx context.Context, loc task.LogLocation, p []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning log replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM log_chunks WHERE location = $1`, string(loc)); err != nil {
		return fmt.Errorf("clearing log chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO log_chunks (location, content) VALUES ($1, $2)`,
		string(loc), p); err != nil {
		return fmt.Errorf("writing log chunk: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing log replace: %w", err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, loc task.LogLocation) ([]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM log_chunks WHERE location = $1 ORDER BY id`,
		string(loc))
	if err != nil {
		return nil, fmt.Errorf("reading log chunks: %w", err)
	}
	defer rows.Close()

	var buf bytes.Buffer
	for rows.Next() {
		var chunk []byte
		if err := rows.Scan(&chunk); err != nil {
			return nil, fmt.Errorf("scanning log chunk: %w", err)
		}
		buf.Write(chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating log chunks: %w", err)
	}
	return buf.Bytes(), nil
}
