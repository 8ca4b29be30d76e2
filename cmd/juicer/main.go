// Package main provides the juicer CLI entrypoint.
//
// Usage:
//
//	juicer <command> [subcommand] [options]
//
// Exit codes:
//   - 0: the run ended normally (stopped, canceled, renderer closed)
//   - 1: the run failed or a command errored
//   - 2: invalid flags or configuration
//   - 3: nothing stored for the requested run or training
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/juicer/cli/cmd"
	"github.com/pithecene-io/juicer/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "juicer",
		Usage:          "Game telemetry ingestion for training overlays",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.StatsCommand(),
			cmd.DebugCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler prints the error, if any, and exits with its code.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus maps an action error to a process exit code and the message to
// print. cli.Exit("", n) prints nothing.
func exitStatus(err error) (int, string) {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}
	return 1, fmt.Sprintf("Error: %v", err)
}
