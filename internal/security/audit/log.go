// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/integritylog/internal/logging"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Sink durably persists sealed records. Implementations own any ordering or
// retry guarantees; IntegrityLog calls Write exactly once per record.
type Sink interface {
	Write(ctx context.Context, rec SealedRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec SealedRecord) error

// Write implements Sink.
func (f SinkFunc) Write(ctx context.Context, rec SealedRecord) error { return f(ctx, rec) }

// Notification is a human-readable failure report.
type Notification struct {
	Subject string
	Body    string
	From    string
	To      string
}

// Notifier delivers failure reports out of band.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// =============================================================================
// OPTIONS
// =============================================================================

// DefaultMaxEntryLength is the default message limit in characters.
const DefaultMaxEntryLength = 8192

// FailureSubject is the subject of write-failure notifications.
const FailureSubject = "Audit log write failure"

// Options is an immutable configuration snapshot. IntegrityLog reads it once
// per Record call.
type Options struct {
	// NotifyTo receives write-failure reports. Empty disables notification.
	NotifyTo string

	// NotifyFrom is the sender address. Defaults to NotifyTo.
	NotifyFrom string

	// Secret is the HMAC keying material. Nil selects the public KeyPadding key.
	Secret *Secret

	// MaxEntryLength caps messages, in characters. 0 means unbounded.
	MaxEntryLength int

	// Name prefixes notification subjects as "[Name] ".
	Name string

	// SerializeWrites holds a lock across the sink call so records reach the
	// sink in the order Record acquired it.
	SerializeWrites bool
}

// DefaultOptions returns options with the default entry length limit.
func DefaultOptions() Options {
	return Options{MaxEntryLength: DefaultMaxEntryLength}
}

// Validate checks option values.
func (o Options) Validate() error {
	if o.MaxEntryLength < 0 {
		return fmt.Errorf("%w: max entry length must be >= 0, got %d", ErrInvalidArgument, o.MaxEntryLength)
	}
	return nil
}

func (o Options) sender() string {
	if o.NotifyFrom != "" {
		return o.NotifyFrom
	}
	return o.NotifyTo
}

func (o Options) subject(s string) string {
	if o.Name == "" {
		return s
	}
	return fmt.Sprintf("[%s] %s", o.Name, s)
}

// =============================================================================
// INTEGRITY LOG
// =============================================================================

// Stats summarizes IntegrityLog activity since creation.
type Stats struct {
	Recorded       uint64
	WriteFailures  uint64
	NotifyFailures uint64
	LastFailure    error
	LastFailureAt  time.Time
}

// IntegrityLog seals entries and hands them to a Sink. It is safe for
// concurrent use; Configure may run concurrently with Record.
type IntegrityLog struct {
	sink     Sink
	notifier Notifier
	opts     atomic.Pointer[Options]

	writeMu sync.Mutex // held across Sink.Write only when SerializeWrites is set

	recorded       atomic.Uint64
	writeFailures  atomic.Uint64
	notifyFailures atomic.Uint64

	failMu        sync.Mutex
	lastFailure   error
	lastFailureAt time.Time

	weakKeyWarned atomic.Bool
}

// NewIntegrityLog creates a log writing to sink. notifier may be nil.
func NewIntegrityLog(sink Sink, notifier Notifier, opts Options) (*IntegrityLog, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: sink is required", ErrInvalidArgument)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	l := &IntegrityLog{sink: sink, notifier: notifier}
	l.opts.Store(&opts)
	return l, nil
}

// Options returns a copy of the current configuration.
func (l *IntegrityLog) Options() Options {
	return *l.opts.Load()
}

// Configure applies fn to a copy of the current options and publishes the
// result atomically. If validation fails the previous options stay in effect.
func (l *IntegrityLog) Configure(fn func(*Options)) error {
	for {
		current := l.opts.Load()
		next := *current
		fn(&next)
		if err := next.Validate(); err != nil {
			return err
		}
		if l.opts.CompareAndSwap(current, &next) {
			return nil
		}
	}
}

// Stats returns activity counters.
func (l *IntegrityLog) Stats() Stats {
	l.failMu.Lock()
	lastFailure, lastFailureAt := l.lastFailure, l.lastFailureAt
	l.failMu.Unlock()
	return Stats{
		Recorded:       l.recorded.Load(),
		WriteFailures:  l.writeFailures.Load(),
		NotifyFailures: l.notifyFailures.Load(),
		LastFailure:    lastFailure,
		LastFailureAt:  lastFailureAt,
	}
}

// Record truncates, seals and persists one entry.
//
// A sink failure is always returned, wrapping both ErrWriteFailed and the
// sink's error. Before returning it, a failure report is sent if NotifyTo is
// configured; notifier errors are logged and never replace the sink error.
// Callers must treat any error as an incomplete audit trail.
func (l *IntegrityLog) Record(ctx context.Context, item Loggable) error {
	opts := *l.opts.Load()

	if item == nil {
		return fmt.Errorf("%w: entry is required", ErrInvalidArgument)
	}
	entry := item.LogEntry()
	if entry == nil {
		return fmt.Errorf("%w: entry is required", ErrInvalidArgument)
	}
	if entry.Message() == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidArgument)
	}

	entry, err := truncateEntry(entry, opts.MaxEntryLength)
	if err != nil {
		return err
	}

	if opts.Secret == nil && l.weakKeyWarned.CompareAndSwap(false, true) {
		logging.Warn().
			Str("log", opts.Name).
			Msg("no audit secret configured; entries are sealed with the public padding key")
	}

	rec, err := Seal(opts.Secret, entry)
	if err != nil {
		return fmt.Errorf("failed to seal audit entry: %w", err)
	}

	if err := l.write(ctx, opts, rec); err != nil {
		l.noteFailure(err)
		l.escalate(ctx, opts, entry, err)
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	l.recorded.Add(1)
	return nil
}

func (l *IntegrityLog) write(ctx context.Context, opts Options, rec SealedRecord) error {
	if opts.SerializeWrites {
		l.writeMu.Lock()
		defer l.writeMu.Unlock()
	}
	return l.sink.Write(ctx, rec)
}

func (l *IntegrityLog) noteFailure(err error) {
	l.writeFailures.Add(1)
	l.failMu.Lock()
	l.lastFailure = err
	l.lastFailureAt = time.Now().UTC()
	l.failMu.Unlock()
}

// escalate sends a best-effort failure report. It never returns an error.
func (l *IntegrityLog) escalate(ctx context.Context, opts Options, entry *Entry, writeErr error) {
	if opts.NotifyTo == "" {
		return
	}
	if l.notifier == nil {
		logging.Warn().
			Str("log", opts.Name).
			Str("notify_to", opts.NotifyTo).
			Err(writeErr).
			Msg("audit write failed and no notifier is available")
		return
	}

	n := Notification{
		Subject: opts.subject(FailureSubject),
		Body:    failureBody(opts.Name, entry, writeErr),
		From:    opts.sender(),
		To:      opts.NotifyTo,
	}

	defer func() {
		if r := recover(); r != nil {
			l.notifyFailures.Add(1)
			logging.Error().
				Str("log", opts.Name).
				Interface("panic", r).
				Msg("audit failure notifier panicked")
		}
	}()

	if err := l.notifier.Notify(ctx, n); err != nil {
		l.notifyFailures.Add(1)
		logging.Error().
			Str("log", opts.Name).
			Str("notify_to", opts.NotifyTo).
			AnErr("write_error", writeErr).
			Err(err).
			Msg("failed to send audit failure notification")
	}
}

func failureBody(name string, entry *Entry, writeErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "An audit log entry could not be written.\n\n")
	if name != "" {
		fmt.Fprintf(&b, "Log:       %s\n", name)
	}
	fmt.Fprintf(&b, "Time:      %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Category:  %s\n", entry.Category())
	fmt.Fprintf(&b, "Timestamp: %s\n", entry.Timestamp().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "Message:\n%s\n\n", entry.Message())
	fmt.Fprintf(&b, "Error:\n%+v\n", writeErr)
	return b.String()
}

// truncateEntry cuts the message to max characters. The returned entry is the
// one that gets sealed and stored.
func truncateEntry(entry *Entry, max int) (*Entry, error) {
	msg, cut := truncateChars(entry.Message(), max)
	if !cut {
		return entry, nil
	}
	return NewEntryBuilder().
		Category(entry.Category()).
		Timestamp(entry.Timestamp()).
		Message(msg).
		Valid(entry.Valid()).
		Build()
}

// truncateChars keeps the first max characters (code points) of s.
// max <= 0 means unbounded.
func truncateChars(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i], true
		}
		n++
	}
	return s, false
}
