// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable sinks for sealed audit records.
//
// Every sink implements audit.Sink for writing and RecordReader for reading
// back, so the verify command works against any backend.
//
// # Backends
//
//   - FileSink: JSON Lines, one fsynced line per record
//   - SQLiteSink: a single audit_entries table in WAL mode
//   - MemorySink: in-process, for tests and embedding
//
// # Usage
//
//	store, err := storage.Open(storage.DriverFile, "/var/log/app/audit.jsonl")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	log, err := audit.NewIntegrityLog(store, nil, audit.DefaultOptions())
//
// Stored bytes are kept exactly as sealed. Timestamps and messages are base64
// encoded in the file format so a MAC can be recomputed over the original
// bytes even if the message is not valid UTF-8.
package storage
