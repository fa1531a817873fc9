// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// ACTIVITY ENTRIES
// =============================================================================

// ActivityEntry records "who did what, from where". The message is derived
// once at construction as "User {who} (from {origin}) {action}".
type ActivityEntry struct {
	entry  *Entry
	who    string
	origin string
	action string
}

// NewActivityEntry creates an activity entry with an explicit category.
// who and action are required; origin may be empty.
func NewActivityEntry(category Category, timestamp time.Time, who, origin, action string) (*ActivityEntry, error) {
	if strings.TrimSpace(who) == "" {
		return nil, fmt.Errorf("%w: who is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(action) == "" {
		return nil, fmt.Errorf("%w: action is required", ErrInvalidArgument)
	}

	entry, err := NewEntry(category, timestamp, ActivityMessage(who, origin, action))
	if err != nil {
		return nil, err
	}
	return &ActivityEntry{
		entry:  entry,
		who:    who,
		origin: origin,
		action: action,
	}, nil
}

// ActivityMessage renders the canonical activity message.
func ActivityMessage(who, origin, action string) string {
	return fmt.Sprintf("User %s (from %s) %s", who, origin, action)
}

// Who returns the acting user.
func (a *ActivityEntry) Who() string { return a.who }

// Origin returns where the action came from. May be empty.
func (a *ActivityEntry) Origin() string { return a.origin }

// Action returns what the user did.
func (a *ActivityEntry) Action() string { return a.action }

// Category returns the entry category.
func (a *ActivityEntry) Category() Category { return a.entry.Category() }

// Timestamp returns the entry time in UTC.
func (a *ActivityEntry) Timestamp() time.Time { return a.entry.Timestamp() }

// Message returns the derived message.
func (a *ActivityEntry) Message() string { return a.entry.Message() }

// LogEntry implements Loggable. A nil activity has no entry.
func (a *ActivityEntry) LogEntry() *Entry {
	if a == nil {
		return nil
	}
	return a.entry
}

// AuditEntry is an activity whose category follows its outcome:
// AuditSuccess or AuditFailure.
type AuditEntry struct {
	ActivityEntry
	success bool
}

// NewAuditEntry creates a success/failure audit entry.
func NewAuditEntry(success bool, timestamp time.Time, who, origin, action string) (*AuditEntry, error) {
	category := AuditFailure
	if success {
		category = AuditSuccess
	}
	activity, err := NewActivityEntry(category, timestamp, who, origin, action)
	if err != nil {
		return nil, err
	}
	return &AuditEntry{ActivityEntry: *activity, success: success}, nil
}

// LogEntry implements Loggable.
func (a *AuditEntry) LogEntry() *Entry {
	if a == nil {
		return nil
	}
	return a.ActivityEntry.LogEntry()
}

// Success reports the audited outcome.
func (a *AuditEntry) Success() bool { return a.success }

// SuspiciousEntry is an activity flagged as SuspiciousActivity.
type SuspiciousEntry struct {
	ActivityEntry
}

// LogEntry implements Loggable.
func (s *SuspiciousEntry) LogEntry() *Entry {
	if s == nil {
		return nil
	}
	return s.ActivityEntry.LogEntry()
}

// NewSuspiciousEntry creates a suspicious-activity entry.
func NewSuspiciousEntry(timestamp time.Time, who, origin, action string) (*SuspiciousEntry, error) {
	activity, err := NewActivityEntry(SuspiciousActivity, timestamp, who, origin, action)
	if err != nil {
		return nil, err
	}
	return &SuspiciousEntry{ActivityEntry: *activity}, nil
}
