// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// watch_cmd.go - The "watch" command: seal stdin lines as they arrive.

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeranaias/integritylog/internal/config"
	"github.com/jeranaias/integritylog/internal/logging"
	"github.com/jeranaias/integritylog/internal/security/audit"
)

// HandleWatch records each non-blank stdin line until EOF or ctx is done.
// Edits to the config file are applied between lines; store and notifier
// changes need a restart.
func HandleWatch(ctx context.Context, args Args, streams IO) error {
	p := NewArgParser(args.Raw, "no-reload")

	category := audit.Info
	if name := p.Flag("category"); name != "" {
		c, err := parseCategoryFlag(name)
		if err != nil {
			return err
		}
		category = c
	}

	cfg, err := loadConfig(args, streams)
	if err != nil {
		return err
	}
	log, store, err := openLog(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	defer func() { log.Options().Secret.Destroy() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reloads := make(chan *config.Config, 1)
	if path := resolveConfigPath(args); path != "" && !p.BoolFlag("no-reload") {
		go func() {
			err := config.Watch(ctx, path, config.DefaultWatchDebounce, func(next *config.Config) {
				select {
				case reloads <- next:
				case <-ctx.Done():
				}
			})
			if err != nil && ctx.Err() == nil {
				logging.Warn().Err(err).Msg("config hot reload disabled")
			}
		}()
	}

	lines, scanErr := scanLines(ctx, streams)

	wlog := logging.With().Str("store", cfg.Store.Path).Logger()

	var recorded, failed int
	for {
		select {
		case <-ctx.Done():
			return watchResult(recorded, failed)

		case next := <-reloads:
			applyReload(log, cfg, next)

		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				return watchResult(recorded, failed)
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			entry, err := audit.NewEntry(category, time.Now(), line)
			if err != nil {
				return err
			}
			if err := log.Record(ctx, entry); err != nil {
				failed++
				wlog.Error().Err(err).Int("failed", failed).Msg("audit entry not recorded")
				continue
			}
			recorded++
		}
	}
}

// scanLines feeds stdin lines to a channel so the caller can select on them.
// Lines have no length limit. The error channel receives exactly one value
// after lines is closed.
func scanLines(ctx context.Context, streams IO) (<-chan string, <-chan error) {
	lines := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(lines)
		r := bufio.NewReader(streams.In)
		for {
			line, err := r.ReadString('\n')
			if line = strings.TrimRight(line, "\r\n"); line != "" {
				select {
				case lines <- line:
				case <-ctx.Done():
					errs <- nil
					return
				}
			}
			if err == io.EOF {
				errs <- nil
				return
			}
			if err != nil {
				errs <- err
				return
			}
		}
	}()

	return lines, errs
}

// applyReload publishes the options from next. It runs on the recording
// goroutine, so the previous secret is no longer in use once it returns.
func applyReload(log *audit.IntegrityLog, current, next *config.Config) {
	if next.Store != current.Store {
		logging.Warn().Msg("store settings changed; restart watch to apply them")
	}
	if next.Notify != current.Notify {
		logging.Warn().Msg("notification settings changed; restart watch to apply them")
	}

	opts, _, err := next.ToOptions()
	if err != nil {
		logging.Warn().Err(err).Msg("config reload rejected, keeping previous settings")
		return
	}
	// Notifier and store stay bound to the original configuration.
	opts.NotifyTo = current.Notify.To
	opts.NotifyFrom = current.Notify.From

	previous := log.Options().Secret
	if err := log.Configure(func(o *audit.Options) { *o = opts }); err != nil {
		opts.Secret.Destroy()
		logging.Warn().Err(err).Msg("config reload rejected, keeping previous settings")
		return
	}
	if previous != opts.Secret {
		previous.Destroy()
	}
	current.Log = next.Log
	current.Key = next.Key

	logging.Info().
		Str("fingerprint", opts.Secret.Fingerprint()).
		Int("max_entry_length", opts.MaxEntryLength).
		Msg("audit options updated")
}

func watchResult(recorded, failed int) error {
	logging.Debug().Int("recorded", recorded).Int("failed", failed).Msg("watch finished")
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d entries were not recorded", audit.ErrWriteFailed, failed, recorded+failed)
	}
	return nil
}
