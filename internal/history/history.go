// Package history implements C11: an append-only ledger of past scan
// sessions, never the scanned tree itself (spec.md's Non-goals exclude
// persisting the tree across runs). Grounded on the teacher's
// internal/repository: sqlx over a sqlhooks-wrapped sqlite3 driver for
// query logging, golang-migrate for embedded schema migrations, and
// Masterminds/squirrel to build the handful of queries this store
// needs.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/qustavo/sqlhooks/v2"
	sqlite3driver "github.com/mattn/go-sqlite3"

	"github.com/diskviz/treemap/pkg/log"
)

//go:embed migrations/*
var migrationFiles embed.FS

var logger = log.For("history")

var registerHooksOnce sync.Once

const driverName = "sqlite3+treemap-history-hooks"

// ScanSessionRecord is one completed (or cancelled, or failed) scan,
// recorded for the user's own history — not the tree itself.
type ScanSessionRecord struct {
	ID                 int64
	Root               string
	TotalBytes         int64
	FilesScanned       int64
	DirectoriesScanned int64
	StartedAt          time.Time
	FinishedAt         time.Time
	Outcome            string // "completed", "cancelled", or "failed"
}

// Store owns the sqlite connection backing the scan-session ledger.
type Store struct {
	db *sqlx.DB
}

// Open creates (or reuses) the sqlite database at path, migrating its
// schema to the latest version.
func Open(path string) (*Store, error) {
	registerHooksOnce.Do(func() {
		sql.Register(driverName, sqlhooks.Wrap(&sqlite3driver.SQLiteDriver{}, &queryHooks{}))
	})

	db, err := sqlx.Open(driverName, fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite does not benefit from more; avoids lock contention

	if err := migrateUp(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("history: migration driver: %w", err)
	}
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("history: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("history: migrating schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordSession appends rec to the ledger and returns its assigned ID.
func (s *Store) RecordSession(ctx context.Context, rec ScanSessionRecord) (int64, error) {
	query, args, err := sq.Insert("scan_sessions").
		Columns("root", "total_bytes", "files_scanned", "directories_scanned", "started_at", "finished_at", "outcome").
		Values(rec.Root, rec.TotalBytes, rec.FilesScanned, rec.DirectoriesScanned, rec.StartedAt.Unix(), rec.FinishedAt.Unix(), rec.Outcome).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		logger.Errorf("recording session: %s", err)
		return 0, err
	}
	return res.LastInsertId()
}

type scanSessionRow struct {
	ID                 int64  `db:"id"`
	Root               string `db:"root"`
	TotalBytes         int64  `db:"total_bytes"`
	FilesScanned       int64  `db:"files_scanned"`
	DirectoriesScanned int64  `db:"directories_scanned"`
	StartedAt          int64  `db:"started_at"`
	FinishedAt         int64  `db:"finished_at"`
	Outcome            string `db:"outcome"`
}

func (r scanSessionRow) toRecord() ScanSessionRecord {
	return ScanSessionRecord{
		ID:                 r.ID,
		Root:               r.Root,
		TotalBytes:         r.TotalBytes,
		FilesScanned:       r.FilesScanned,
		DirectoriesScanned: r.DirectoriesScanned,
		StartedAt:          time.Unix(r.StartedAt, 0).UTC(),
		FinishedAt:         time.Unix(r.FinishedAt, 0).UTC(),
		Outcome:            r.Outcome,
	}
}

// RecentSessions returns up to limit sessions, most recent first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]ScanSessionRecord, error) {
	query, args, err := sq.Select("id", "root", "total_bytes", "files_scanned", "directories_scanned", "started_at", "finished_at", "outcome").
		From("scan_sessions").
		OrderBy("id DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []scanSessionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("history: querying recent sessions: %w", err)
	}

	out := make([]ScanSessionRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toRecord()
	}
	return out, nil
}
