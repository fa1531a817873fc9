// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import "errors"

var (
	// ErrInvalidArgument is returned for malformed entries or missing required fields.
	ErrInvalidArgument = errors.New("audit: invalid argument")

	// ErrWriteFailed wraps every sink failure surfaced by IntegrityLog.Record.
	// The original sink error is wrapped alongside it.
	ErrWriteFailed = errors.New("audit: log write failed")

	// ErrMalformedRecord is returned by Verify when a stored record cannot be
	// turned back into an Entry at all.
	ErrMalformedRecord = errors.New("audit: malformed record")
)
