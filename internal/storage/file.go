// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/jeranaias/integritylog/internal/security/audit"
)

const readBufferSize = 64 * 1024

// fileLine is the on-disk shape of one record.
type fileLine struct {
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	WrittenAt time.Time      `json:"written_at"`
	Category  audit.Category `json:"category"`
	Timestamp []byte         `json:"timestamp"` // 8 bytes, base64
	MAC       string         `json:"mac"`       // hex
	Message   []byte         `json:"message"`   // base64
}

// =============================================================================
// FILE SINK
// =============================================================================

// FileSink appends sealed records to a JSON Lines file. Each Write is one
// line followed by fsync.
type FileSink struct {
	path string

	mu     sync.Mutex
	file   *os.File
	seq    int64
	closed bool
}

// NewFileSink opens path for appending, creating it (0600) and its directory
// (0700) if needed.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("file sink: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	existing, err := countLines(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}

	return &FileSink{path: path, file: f, seq: existing}, nil
}

// Path returns the file path.
func (s *FileSink) Path() string { return s.path }

// Write implements audit.Sink.
func (s *FileSink) Write(ctx context.Context, rec audit.SealedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	line := fileLine{
		ID:        uuid.NewString(),
		Seq:       s.seq + 1,
		WrittenAt: time.Now().UTC(),
		Category:  rec.Category,
		Timestamp: rec.Timestamp[:],
		MAC:       hex.EncodeToString(rec.MAC[:]),
		Message:   rec.Message,
	}
	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}
	data = append(data, '\n')

	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit file: %w", err)
	}

	s.seq++
	return nil
}

// Records implements RecordReader.
func (s *FileSink) Records(ctx context.Context) ([]StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return ReadFile(s.path)
}

// Close closes the underlying file. It is safe to call more than once.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// =============================================================================
// READING
// =============================================================================

// ReadFile parses a JSON Lines audit file. Blank lines are skipped; any other
// line that cannot be decoded fails the read with its line number.
func ReadFile(path string) ([]StoredRecord, error) {
	var records []StoredRecord
	err := eachLine(path, func(lineNo int, raw []byte) error {
		rec, err := decodeLine(raw)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		rec.Line = lineNo
		records = append(records, rec)
		return nil
	})
	return records, err
}

// ScanFile reads like ReadFile but keeps going past undecodable lines. Each
// one is returned in place as a StoredRecord with Err set.
func ScanFile(path string) ([]StoredRecord, error) {
	var records []StoredRecord
	err := eachLine(path, func(lineNo int, raw []byte) error {
		rec, err := decodeLine(raw)
		if err != nil {
			rec = StoredRecord{Err: fmt.Errorf("line %d: %w", lineNo, err)}
		}
		rec.Line = lineNo
		records = append(records, rec)
		return nil
	})
	return records, err
}

// eachLine calls fn for every non-blank line of path, numbered from 1.
// Lines are not length limited; a final line without a newline still counts.
func eachLine(path string, fn func(lineNo int, raw []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, readBufferSize)
	for lineNo := 1; ; lineNo++ {
		line, readErr := r.ReadBytes('\n')
		if raw := bytes.TrimSpace(line); len(raw) > 0 {
			if err := fn(lineNo, raw); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("failed to read audit file: %w", readErr)
		}
	}
}

func decodeLine(raw []byte) (StoredRecord, error) {
	var line fileLine
	if err := json.Unmarshal(raw, &line); err != nil {
		return StoredRecord{}, fmt.Errorf("%w: %v", audit.ErrMalformedRecord, err)
	}
	if len(line.Timestamp) != 8 {
		return StoredRecord{}, fmt.Errorf("%w: timestamp is %d bytes, want 8", audit.ErrMalformedRecord, len(line.Timestamp))
	}
	mac, err := hex.DecodeString(line.MAC)
	if err != nil || len(mac) != audit.MACSize {
		return StoredRecord{}, fmt.Errorf("%w: mac must be %d hex-encoded bytes", audit.ErrMalformedRecord, audit.MACSize)
	}

	out := StoredRecord{
		ID:        line.ID,
		Seq:       line.Seq,
		WrittenAt: line.WrittenAt,
		Record: audit.SealedRecord{
			Category: line.Category,
			Message:  line.Message,
		},
	}
	copy(out.Record.Timestamp[:], line.Timestamp)
	copy(out.Record.MAC[:], mac)
	return out, nil
}

func countLines(path string) (int64, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, nil
	}
	var n int64
	err := eachLine(path, func(int, []byte) error {
		n++
		return nil
	})
	return n, err
}
