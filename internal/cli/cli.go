// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command-line parsing for integritylog.
package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdHelp Command = iota
	CmdRecord
	CmdVerify
	CmdKeygen
	CmdWatch
	CmdVersion
	CmdUnknown
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	JSON       bool
	Verbose    bool
	Quiet      bool

	// Name is the command as typed, for error messages.
	Name string

	// Raw holds the arguments after the command, global flags removed.
	Raw []string
}

// IO bundles the streams a command reads and writes.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// StdIO returns the process streams.
func StdIO() IO {
	return IO{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

const usageText = `integritylog - tamper-evident audit log

Every entry is sealed with HMAC-SHA1 over its timestamp and message before it
is stored, so later modification of a stored record is detectable.

Usage:
  integritylog record [flags] [message]   Seal and store one entry
  integritylog verify                     Verify every stored record
  integritylog keygen [flags] [path]      Create a key file
  integritylog watch                      Record stdin lines as Info entries
  integritylog version                    Show version
  integritylog help                       Show this help

Record:
  --category NAME       Error, Warning, Info, DebugInfo, AuditSuccess,
                        AuditFailure, SuspiciousActivity (default: Info)
  --message TEXT        Message (or pass it as the final argument)
  --time RFC3339        Entry time (default: now)
  --audit               Record an audit event: "User WHO (from ORIGIN) ACTION"
  --success=false       With --audit, record AuditFailure instead of AuditSuccess
  --suspicious          Record a SuspiciousActivity event
  --who / --origin / --action
                        Fields for --audit and --suspicious

Watch:
  --category NAME       Category for every line (default: Info)
  --no-reload           Ignore config file edits

Keygen:
  --out PATH            Key file, or pass it as the final argument (default: [key] file, or ~/.integritylog/audit.key)
  --size N              Random key size in bytes (default: 64)
  --passphrase          Derive the key from a passphrase (PBKDF2-SHA256)
  --salt HEX            Salt for --passphrase (default: random, printed)

Global flags:
  --config PATH         Config file (default: ~/.integritylog/config.toml)
  --json                Machine-readable output
  -v, --verbose         Debug logging
  -q, --quiet           Errors only

Environment:
  INTEGRITYLOG_SECRET   Hex-encoded key; overrides [key] file
  INTEGRITYLOG_*        Overrides config values, e.g. INTEGRITYLOG_STORE_PATH

Examples:
  integritylog record --category Warning "disk 91%% full"
  integritylog record --audit --who alice --origin 10.0.0.1 --action "logged in"
  integritylog verify --json
  tail -F app.log | integritylog watch

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "integritylog version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
}

// Parse splits argv (without the program name) into a command and its args.
func Parse(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdHelp, args
	}

	args.Name = remaining[0]
	args.Raw = remaining[1:]

	switch strings.ToLower(remaining[0]) {
	case "record", "rec", "log":
		return CmdRecord, args
	case "verify", "check":
		return CmdVerify, args
	case "keygen", "genkey":
		return CmdKeygen, args
	case "watch", "tail":
		return CmdWatch, args
	case "version", "--version":
		return CmdVersion, args
	case "help", "--help", "-h":
		return CmdHelp, args
	default:
		return CmdUnknown, args
	}
}

// parseGlobalFlags removes global flags wherever they appear.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var (
		remaining []string
		args      Args
	)

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch {
		case arg == "--json":
			args.JSON = true
		case arg == "-v" || arg == "--verbose":
			args.Verbose = true
		case arg == "-q" || arg == "--quiet":
			args.Quiet = true
		case arg == "--config" || arg == "-c":
			if i+1 < len(argv) {
				i++
				args.ConfigPath = argv[i]
			}
		case strings.HasPrefix(arg, "--config="):
			args.ConfigPath = strings.TrimPrefix(arg, "--config=")
		default:
			remaining = append(remaining, arg)
		}
	}

	return remaining, args
}

// HandleVersion handles the "version" command.
func HandleVersion(args Args, streams IO) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print(streams.Out)
	}
	PrintVersion(streams.Out)
	return nil
}

// HandleHelp handles the "help" command.
func HandleHelp(streams IO) error {
	PrintUsage(streams.Out)
	return nil
}
