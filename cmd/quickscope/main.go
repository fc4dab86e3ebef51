package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/anstrom/quickscope/cmd/cli"
)

// Build information, set via -ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version, commit, buildTime)
	return cli.Execute(ctx, args, os.Stdout, os.Stderr)
}
