// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// verify_cmd.go - The "verify" command.

package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/integritylog/internal/security/audit"
	"github.com/jeranaias/integritylog/internal/storage"
)

// HandleVerify recomputes the MAC of every stored record. It returns
// ErrVerificationFailed if any record is tampered or malformed.
func HandleVerify(ctx context.Context, args Args, streams IO) error {
	cfg, err := loadConfig(args, streams)
	if err != nil {
		return err
	}
	opts, _, err := cfg.ToOptions()
	if err != nil {
		return err
	}
	defer opts.Secret.Destroy()

	records, err := storage.ReadAll(ctx, cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to read store: %w", err)
	}

	data := verifyRecords(opts.Secret, records)
	data.Store = cfg.Store.Path
	data.Driver = cfg.Store.Driver

	if args.JSON {
		if err := NewJSONResponse("verify", data).Print(streams.Out); err != nil {
			return err
		}
	} else {
		printVerifyReport(streams.Out, data, args.Quiet)
	}

	if data.Invalid > 0 {
		return fmt.Errorf("%w: %d of %d", ErrVerificationFailed, data.Invalid, data.Total)
	}
	return nil
}

func verifyRecords(secret *audit.Secret, records []storage.StoredRecord) VerifyData {
	data := VerifyData{
		Total:   len(records),
		Records: make([]VerifyRecord, 0, len(records)),
	}

	for _, sr := range records {
		if sr.Err != nil {
			data.Invalid++
			data.Records = append(data.Records, VerifyRecord{Line: sr.Line, Error: sr.Err.Error()})
			continue
		}

		vr := VerifyRecord{
			Seq:       sr.Seq,
			Line:      sr.Line,
			ID:        sr.ID,
			Category:  sr.Record.Category.String(),
			Timestamp: sr.Record.Time(),
			Message:   string(sr.Record.Message),
		}

		entry, err := audit.Verify(secret, sr.Record)
		switch {
		case err != nil:
			vr.Error = err.Error()
		case !entry.Valid():
			vr.Error = "MAC mismatch"
		default:
			vr.Valid = true
		}

		if vr.Valid {
			data.Valid++
		} else {
			data.Invalid++
		}
		data.Records = append(data.Records, vr)
	}
	return data
}

func printVerifyReport(w io.Writer, data VerifyData, quiet bool) {
	if !quiet {
		fmt.Fprintln(w)
		fmt.Fprintln(w, TitleStyle.Render("Audit Log Verification"))
		fmt.Fprintln(w, RenderSeparator())
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Store:"), ValueStyle.Render(data.Store))
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Driver:"), ValueStyle.Render(data.Driver))
		fmt.Fprintln(w)
	}

	for _, r := range data.Records {
		if quiet && r.Valid {
			continue
		}
		var line string
		if r.Category == "" {
			line = fmt.Sprintf("%s %6s  %s", RenderStatus(false), "-", DimStyle.Render("undecodable record"))
		} else {
			line = fmt.Sprintf("%s %6d  %s  %s  %s",
				RenderStatus(r.Valid),
				r.Seq,
				DimStyle.Render(r.Timestamp.UTC().Format(time.RFC3339)),
				RenderCategory(r.Category),
				r.Message,
			)
		}
		if r.Error != "" {
			line += "  " + ErrorStyle.Render("("+r.Error+")")
		}
		fmt.Fprintln(w, line)
	}

	if quiet {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, RenderSeparator())
	fmt.Fprintf(w, "%s%d\n", RenderLabel("Total:"), data.Total)
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Valid:"), SuccessStyle.Render(fmt.Sprint(data.Valid)))
	if data.Invalid > 0 {
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Invalid:"), ErrorStyle.Render(fmt.Sprint(data.Invalid)))
	} else {
		fmt.Fprintf(w, "%s%d\n", RenderLabel("Invalid:"), 0)
	}
}
