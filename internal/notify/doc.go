// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify delivers audit write-failure reports.
//
// All notifiers implement audit.Notifier:
//
//   - SMTPNotifier sends a plain-text mail
//   - LogNotifier writes the report to the structured log
//   - RateLimited wraps another notifier with a token bucket
//
// A sink that is down fails every Record call, so production setups should
// always wrap SMTPNotifier in RateLimited:
//
//	n := notify.NewRateLimited(notify.NewSMTPNotifier(cfg), rate.Every(time.Minute), 3)
package notify
