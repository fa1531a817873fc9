// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeranaias/integritylog/internal/security/audit"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown storage driver")

	// ErrClosed is returned when writing to a closed store.
	ErrClosed = errors.New("store is closed")
)

// =============================================================================
// TYPES
// =============================================================================

// Driver names accepted by Open.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// StoredRecord is a sealed record plus the metadata the store assigned to it.
type StoredRecord struct {
	ID        string
	Seq       int64
	WrittenAt time.Time
	Record    audit.SealedRecord

	// Line is the 1-based line of a file store record, 0 for other stores.
	Line int

	// Err is set by ScanFile when the line could not be decoded. Record is
	// then zero.
	Err error
}

// RecordReader reads back everything a store has persisted, in write order.
type RecordReader interface {
	Records(ctx context.Context) ([]StoredRecord, error)
}

// Store is a sink that can be read back and closed.
type Store interface {
	audit.Sink
	RecordReader
	io.Closer
}

// Open opens a store of the named driver at path, creating it if needed.
func Open(driver, path string) (Store, error) {
	switch normalizeDriver(driver) {
	case DriverFile:
		return NewFileSink(path)
	case DriverSQLite:
		return NewSQLiteSink(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// ReadAll reads every record from an existing store without creating or
// modifying it. Undecodable file lines come back with Err set.
func ReadAll(ctx context.Context, driver, path string) ([]StoredRecord, error) {
	switch normalizeDriver(driver) {
	case DriverFile:
		return ScanFile(path)
	case DriverSQLite:
		return ReadSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverFile, "jsonl", "":
		return DriverFile
	case DriverSQLite, "sqlite3":
		return DriverSQLite
	default:
		return driver
	}
}
