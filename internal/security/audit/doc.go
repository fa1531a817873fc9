// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package audit provides tamper-evident security audit logging.
//
// Every recorded event is bound to its timestamp with an HMAC-SHA1 tag before
// it reaches a persistence Sink, so a later reader holding the same key can
// detect modification of either field.
//
// # Components
//
// Entry - immutable event value (category, UTC timestamp, message)
//
//	entry, err := audit.NewEntry(audit.Info, time.Now(), "service started")
//
// ActivityEntry, AuditEntry, SuspiciousEntry - "who did what, from where"
//
//	login, err := audit.NewAuditEntry(true, time.Now(), "alice", "10.0.0.1", "logged in")
//	// login.Message() == "User alice (from 10.0.0.1) logged in"
//
// IntegrityLog - truncation, key resolution, MAC, persistence, escalation
//
//	log, err := audit.NewIntegrityLog(sink, notifier, audit.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	if err := log.Record(ctx, login); err != nil {
//	    // the audit trail is incomplete: treat as a hard failure
//	}
//
// Verify - recompute the tag of a stored record
//
//	entry, err := audit.Verify(secret, rec)
//	if err == nil && !entry.Valid() {
//	    // tampered
//	}
//
// # Key Material
//
// The keying secret is held sealed in memory (Secret) and is only exposed to
// a callback for the duration of one MAC computation. Secrets shorter than
// 64 bytes are extended with the public KeyPadding constant; with no secret
// configured KeyPadding itself is the key, which guards only against
// accidental corruption.
package audit
