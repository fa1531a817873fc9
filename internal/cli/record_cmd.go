// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// record_cmd.go - The "record" command.

package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/integritylog/internal/security/audit"
)

// HandleRecord seals and stores one entry built from the flags.
func HandleRecord(ctx context.Context, args Args, streams IO) error {
	item, err := entryFromArgs(NewArgParser(args.Raw, "audit", "suspicious"), time.Now())
	if err != nil {
		return err
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

	if err := log.Record(ctx, item); err != nil {
		return err
	}

	entry := item.LogEntry()
	if args.JSON {
		return NewJSONResponse("record", RecordData{
			Category:  entry.Category().String(),
			Timestamp: entry.Timestamp(),
			Message:   entry.Message(),
			Store:     cfg.Store.Path,
		}).Print(streams.Out)
	}
	if !args.Quiet {
		fmt.Fprintf(streams.Out, "%s recorded %s entry in %s\n",
			RenderStatus(true), RenderCategory(entry.Category().String()), cfg.Store.Path)
	}
	return nil
}

// entryFromArgs builds the Loggable described by the record flags.
func entryFromArgs(p *ArgParser, now time.Time) (audit.Loggable, error) {
	ts := now
	if raw := p.Flag("time"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, NewValidationErrorWithExample("--time", raw, "must be RFC 3339", "--time 2025-01-23T10:30:00Z")
		}
		ts = parsed
	}

	isAudit := p.BoolFlag("audit")
	isSuspicious := p.BoolFlag("suspicious")

	switch {
	case isAudit && isSuspicious:
		return nil, NewValidationError("--audit", "", "cannot be combined with --suspicious")

	case isAudit:
		success, err := p.BoolFlagOr("success", true)
		if err != nil {
			return nil, err
		}
		who, origin, action, err := activityFlags(p)
		if err != nil {
			return nil, err
		}
		e, err := audit.NewAuditEntry(success, ts, who, origin, action)
		if err != nil {
			return nil, err
		}
		return e, nil

	case isSuspicious:
		who, origin, action, err := activityFlags(p)
		if err != nil {
			return nil, err
		}
		e, err := audit.NewSuspiciousEntry(ts, who, origin, action)
		if err != nil {
			return nil, err
		}
		return e, nil
	}

	category := audit.Info
	if name := p.Flag("category"); name != "" {
		c, err := parseCategoryFlag(name)
		if err != nil {
			return nil, err
		}
		category = c
	}

	message := p.Flag("message")
	if message == "" {
		message = strings.Join(p.PositionalFrom(0), " ")
	}
	if message == "" {
		return nil, NewValidationErrorWithExample("--message", "", "is required", `integritylog record --category Warning "disk 91% full"`)
	}

	e, err := audit.NewEntry(category, ts, message)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func activityFlags(p *ArgParser) (who, origin, action string, err error) {
	who, origin, action = p.Flag("who"), p.Flag("origin"), p.Flag("action")
	if strings.TrimSpace(who) == "" {
		return "", "", "", NewValidationError("--who", who, "is required")
	}
	if strings.TrimSpace(action) == "" {
		return "", "", "", NewValidationError("--action", action, "is required")
	}
	return who, origin, action, nil
}

// parseCategoryFlag accepts category names case-insensitively.
func parseCategoryFlag(name string) (audit.Category, error) {
	names := make([]string, 0, len(audit.Categories()))
	for _, c := range audit.Categories() {
		if strings.EqualFold(c.String(), name) {
			return c, nil
		}
		names = append(names, c.String())
	}
	return 0, NewValidationError("--category", name, "must be one of "+strings.Join(names, ", "))
}
