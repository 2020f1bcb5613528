package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"wecounts/internal/model"
	"wecounts/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Backend on a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Load implements Backend.
func (s *SQLite) Load(ctx context.Context) (map[string]model.CheckedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT link, title, checked_at, skip_reason FROM checked_items`,
	)
	if err != nil {
		return nil, fmt.Errorf("query checked items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make(map[string]model.CheckedRecord)
	for rows.Next() {
		var r model.CheckedRecord
		var checked, reason string
		if err := rows.Scan(&r.Link, &r.Title, &checked, &reason); err != nil {
			return nil, fmt.Errorf("scan checked item: %w", err)
		}
		r.CheckedAt, err = time.Parse(timeLayout, checked)
		if err != nil {
			return nil, fmt.Errorf("parse checked_at of %s: %w", r.Link, err)
		}
		r.SkipReason = model.SkipReason(reason)
		records[r.Link] = r
	}
	return records, rows.Err()
}

// Persist implements Backend. The table is replaced inside one transaction.
func (s *SQLite) Persist(ctx context.Context, records map[string]model.CheckedRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM checked_items`); err != nil {
		return fmt.Errorf("clear checked items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO checked_items (link, title, checked_at, skip_reason) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for link, r := range records {
		_, err := stmt.ExecContext(ctx, link, r.Title, r.CheckedAt.UTC().Format(timeLayout), string(r.SkipReason))
		if err != nil {
			return fmt.Errorf("insert checked item %s: %w", link, err)
		}
	}
	return tx.Commit()
}
