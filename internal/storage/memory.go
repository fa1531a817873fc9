// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/integritylog/internal/security/audit"
)

// MemorySink keeps records in memory. SetError makes subsequent writes fail.
type MemorySink struct {
	mu      sync.Mutex
	records []StoredRecord
	err     error
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// SetError makes every Write return err until cleared with nil.
func (m *MemorySink) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Write implements audit.Sink.
func (m *MemorySink) Write(ctx context.Context, rec audit.SealedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	rec.Message = append([]byte(nil), rec.Message...)
	m.records = append(m.records, StoredRecord{
		ID:        uuid.NewString(),
		Seq:       int64(len(m.records) + 1),
		WrittenAt: time.Now().UTC(),
		Record:    rec,
	})
	return nil
}

// Records implements RecordReader. The returned slice is a copy.
func (m *MemorySink) Records(_ context.Context) ([]StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StoredRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

// Len returns the number of stored records.
func (m *MemorySink) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Close implements io.Closer.
func (m *MemorySink) Close() error { return nil }
