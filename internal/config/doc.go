// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads integritylog configuration.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (INTEGRITYLOG_*)
//   - ~/.integritylog/config.toml, or the path given with --config
//   - Built-in defaults
//
// The secret itself is never part of the file; [key] only names a key file,
// and INTEGRITYLOG_SECRET overrides it (see package keystore).
//
// # Example
//
//	[log]
//	name = "payments"
//	max_entry_length = 4096
//
//	[key]
//	file = "/etc/integritylog/audit.key"
//
//	[notify]
//	to = "secops@example.com"
//	smtp_host = "smtp.example.com"
//	rate_interval = "5m"
//
//	[store]
//	driver = "sqlite"
//	path = "/var/lib/integritylog/audit.db"
//
// # Usage
//
//	cfg, err := config.Load(path)
//	opts, _, err := cfg.ToOptions()
//	store, err := cfg.OpenStore()
//	log, err := audit.NewIntegrityLog(store, cfg.Notifier(), opts)
//
// Watch re-reads the file on change so a running log can be reconfigured
// with IntegrityLog.Configure.
package config
