// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output support for scripting and SIEM ingestion.

package cli

import (
	"io"
	"time"

	"github.com/goccy/go-json"
)

// JSONResponse is the standardized response format for all commands.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data any `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// Timestamp is the RFC 3339 time when the response was generated
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print writes the response as indented JSON.
func (r *JSONResponse) Print(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// =============================================================================
// RESPONSE PAYLOADS
// =============================================================================

// VersionData is the payload of "version --json".
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// RecordData is the payload of "record --json".
type RecordData struct {
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Store     string    `json:"store"`
}

// VerifyRecord is one verified record in "verify --json".
type VerifyRecord struct {
	Seq       int64     `json:"seq"`
	Line      int       `json:"line,omitempty"`
	ID        string    `json:"id,omitempty"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Valid     bool      `json:"valid"`
	Error     string    `json:"error,omitempty"`
}

// VerifyData is the payload of "verify --json".
type VerifyData struct {
	Store   string         `json:"store"`
	Driver  string         `json:"driver"`
	Total   int            `json:"total"`
	Valid   int            `json:"valid"`
	Invalid int            `json:"invalid"`
	Records []VerifyRecord `json:"records"`
}

// KeygenData is the payload of "keygen --json".
type KeygenData struct {
	Path        string `json:"path"`
	Size        int    `json:"size"`
	Fingerprint string `json:"fingerprint"`
	Salt        string `json:"salt,omitempty"`
}
