// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/integritylog/internal/security/audit"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    category   TEXT NOT NULL,
    timestamp  BLOB NOT NULL CHECK (length(timestamp) = 8),
    mac        BLOB NOT NULL CHECK (length(mac) = 20),
    message    BLOB NOT NULL,
    written_at TEXT NOT NULL
);
`

// =============================================================================
// SQLITE SINK
// =============================================================================

// SQLiteSink stores sealed records in a SQLite database.
type SQLiteSink struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	closed bool
}

// NewSQLiteSink opens (or creates) the database at path.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite sink: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	_ = os.Chmod(path, 0600)

	return &SQLiteSink{db: db, path: path}, nil
}

// Path returns the database path.
func (s *SQLiteSink) Path() string { return s.path }

// Write implements audit.Sink.
func (s *SQLiteSink) Write(ctx context.Context, rec audit.SealedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (id, category, timestamp, mac, message, written_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		rec.Category.String(),
		rec.Timestamp[:],
		rec.MAC[:],
		rec.Message,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// Records implements RecordReader.
func (s *SQLiteSink) Records(ctx context.Context) ([]StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	return queryRecords(ctx, s.db)
}

// ReadSQLite reads every record from an existing database. The file is
// opened read-only and no schema or pragma changes are made to it.
func ReadSQLite(ctx context.Context, path string) ([]StoredRecord, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audit database not found: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+filepath.ToSlash(path)+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	return queryRecords(ctx, db)
}

func queryRecords(ctx context.Context, db *sql.DB) ([]StoredRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT seq, id, category, timestamp, mac, message, written_at
		 FROM audit_entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []StoredRecord
	for rows.Next() {
		var (
			out       StoredRecord
			category  string
			ts, mac   []byte
			message   []byte
			writtenAt string
		)
		if err := rows.Scan(&out.Seq, &out.ID, &category, &ts, &mac, &message, &writtenAt); err != nil {
			return records, fmt.Errorf("failed to scan audit record: %w", err)
		}

		cat, err := audit.ParseCategory(category)
		if err != nil {
			return records, fmt.Errorf("row %d: %w: %v", out.Seq, audit.ErrMalformedRecord, err)
		}
		if len(ts) != 8 || len(mac) != audit.MACSize {
			return records, fmt.Errorf("row %d: %w: bad field length", out.Seq, audit.ErrMalformedRecord)
		}

		out.Record.Category = cat
		copy(out.Record.Timestamp[:], ts)
		copy(out.Record.MAC[:], mac)
		out.Record.Message = message
		out.WrittenAt, _ = time.Parse(time.RFC3339Nano, writtenAt)
		records = append(records, out)
	}
	return records, rows.Err()
}

// Close closes the database. It is safe to call more than once.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
