// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"context"

	"github.com/jeranaias/integritylog/internal/logging"
	"github.com/jeranaias/integritylog/internal/security/audit"
)

// LogNotifier writes failure reports to the process logger at error level.
type LogNotifier struct{}

// Notify implements audit.Notifier.
func (LogNotifier) Notify(_ context.Context, n audit.Notification) error {
	logging.Error().
		Str("subject", n.Subject).
		Str("to", n.To).
		Str("from", n.From).
		Str("body", n.Body).
		Msg("audit failure notification")
	return nil
}
