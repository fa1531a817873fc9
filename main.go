// integritylog - A tamper-evident audit log.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/integritylog/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	streams := cli.StdIO()
	cmd, args := cli.Parse(argv)

	var err error
	switch cmd {
	case cli.CmdRecord:
		err = cli.HandleRecord(ctx, args, streams)
	case cli.CmdVerify:
		err = cli.HandleVerify(ctx, args, streams)
	case cli.CmdKeygen:
		err = cli.HandleKeygen(args, streams)
	case cli.CmdWatch:
		err = cli.HandleWatch(ctx, args, streams)
	case cli.CmdVersion:
		err = cli.HandleVersion(args, streams)
	case cli.CmdHelp:
		err = cli.HandleHelp(streams)
	default:
		err = cli.NewValidationErrorWithExample("command", args.Name, "unknown command", "integritylog help")
	}

	if err != nil {
		out := streams.Err
		if args.JSON {
			out = streams.Out
		}
		cli.DisplayError(out, err, args.JSON)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}
