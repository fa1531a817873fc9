// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// setup.go - Shared command setup: config, logging, key, store.

package cli

import (
	"fmt"

	"github.com/jeranaias/integritylog/internal/config"
	"github.com/jeranaias/integritylog/internal/logging"
	"github.com/jeranaias/integritylog/internal/security/audit"
	"github.com/jeranaias/integritylog/internal/security/keystore"
	"github.com/jeranaias/integritylog/internal/storage"
)

// resolveConfigPath returns --config or the default location.
func resolveConfigPath(args Args) string {
	if args.ConfigPath != "" {
		return args.ConfigPath
	}
	path, err := config.DefaultPath()
	if err != nil {
		return ""
	}
	return path
}

// loadConfig loads configuration and initializes operational logging on
// the error stream.
func loadConfig(args Args, streams IO) (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath(args))
	if err != nil {
		return nil, err
	}

	lc := cfg.LoggerConfig()
	lc.Output = streams.Err
	switch {
	case args.Verbose:
		lc.Level = "debug"
	case args.Quiet:
		lc.Level = "error"
	}
	logging.Init(lc)

	return cfg, nil
}

// openLog builds an IntegrityLog from cfg. The caller closes the store.
func openLog(cfg *config.Config) (*audit.IntegrityLog, storage.Store, error) {
	opts, source, err := cfg.ToOptions()
	if err != nil {
		return nil, nil, err
	}
	logging.Debug().Str("source", string(source)).Str("fingerprint", opts.Secret.Fingerprint()).Msg("audit secret loaded")
	if source == keystore.SourceNone {
		logging.Warn().Msgf("no audit secret configured; set %s or [key] file", keystore.SecretEnvVar)
	}

	store, err := cfg.OpenStore()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	log, err := audit.NewIntegrityLog(store, cfg.Notifier(), opts)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return log, store, nil
}
