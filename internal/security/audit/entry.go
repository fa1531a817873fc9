// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"fmt"
	"time"
)

// =============================================================================
// ENTRY
// =============================================================================

// Loggable is anything IntegrityLog.Record accepts.
type Loggable interface {
	LogEntry() *Entry
}

// Entry is one immutable audit event.
//
// Valid is meaningful only for entries reconstructed by Verify; it reports
// whether the stored MAC matched. Freshly created entries are always valid.
type Entry struct {
	category  Category
	timestamp time.Time
	message   string
	valid     bool
}

// NewEntry creates a valid entry. The timestamp is normalized to UTC at tick
// precision; a zero timestamp means now.
func NewEntry(category Category, timestamp time.Time, message string) (*Entry, error) {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	return NewEntryBuilder().
		Category(category).
		Timestamp(timestamp).
		Message(message).
		Build()
}

// Category returns the entry category.
func (e *Entry) Category() Category { return e.category }

// Timestamp returns the entry time in UTC.
func (e *Entry) Timestamp() time.Time { return e.timestamp }

// Message returns the entry text.
func (e *Entry) Message() string { return e.message }

// Valid reports whether the entry passed MAC verification.
func (e *Entry) Valid() bool { return e.valid }

// LogEntry implements Loggable.
func (e *Entry) LogEntry() *Entry { return e }

// String renders the entry for diagnostics.
func (e *Entry) String() string {
	status := "valid"
	if !e.valid {
		status = "INVALID"
	}
	return fmt.Sprintf("%s | %s | %s | %s",
		e.timestamp.Format(time.RFC3339Nano), e.category, status, e.message)
}

// =============================================================================
// ENTRY BUILDER
// =============================================================================

// EntryBuilder is the mutable form of an Entry. Build validates the fields and
// returns an immutable Entry; the builder may be reused afterwards without
// affecting entries it already produced.
type EntryBuilder struct {
	category  Category
	timestamp time.Time
	message   string
	valid     bool
}

// NewEntryBuilder returns a builder for a valid Info entry.
func NewEntryBuilder() *EntryBuilder {
	return &EntryBuilder{category: Info, valid: true}
}

// Category sets the entry category.
func (b *EntryBuilder) Category(c Category) *EntryBuilder {
	b.category = c
	return b
}

// Timestamp sets the entry time.
func (b *EntryBuilder) Timestamp(t time.Time) *EntryBuilder {
	b.timestamp = t
	return b
}

// Message sets the entry text.
func (b *EntryBuilder) Message(m string) *EntryBuilder {
	b.message = m
	return b
}

// Valid sets the verification outcome.
func (b *EntryBuilder) Valid(v bool) *EntryBuilder {
	b.valid = v
	return b
}

// Build freezes the builder state into an Entry.
func (b *EntryBuilder) Build() (*Entry, error) {
	if !b.category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %d", ErrInvalidArgument, uint8(b.category))
	}
	if b.message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidArgument)
	}
	return &Entry{
		category:  b.category,
		timestamp: normalizeTimestamp(b.timestamp),
		message:   b.message,
		valid:     b.valid,
	}, nil
}
