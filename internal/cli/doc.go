// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the integritylog command line.
//
// # Key Types
//
//   - Command: Enumeration of the available commands
//   - Args: Global flags plus the raw command arguments
//   - ArgParser: Per-command flag parsing
//   - JSONResponse: The envelope for --json output
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	switch cmd {
//	case cli.CmdRecord:
//	    err = cli.HandleRecord(ctx, args, cli.StdIO())
//	case cli.CmdVerify:
//	    err = cli.HandleVerify(ctx, args, cli.StdIO())
//	// ... other commands
//	}
//
// # Commands
//
//   - record: Seal and store one entry
//   - verify: Recompute every stored MAC and report tampered records
//   - keygen: Write a random or passphrase-derived key file
//   - watch: Seal stdin lines as they arrive, reloading config edits
//
// Handlers return errors and never exit; GetExitCode maps them to exit
// codes. All commands support --json.
package cli
