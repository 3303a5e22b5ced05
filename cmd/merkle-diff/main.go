package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"merkle-diff/internal/snapshot"
)

const (
	exitOK      = 0
	exitChanges = 1
	exitFailure = 2
	exitCorrupt = 3
)

// errChangesDetected ends a run with --fail-on-change after the report has
// been printed.
var errChangesDetected = errors.New("changes detected")

func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errChangesDetected):
		return exitChanges
	case errors.Is(err, snapshot.ErrCorrupt):
		return exitCorrupt
	default:
		return exitFailure
	}
}

// execute runs the command line in args and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newCLI(stdout, stderr).register()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errChangesDetected) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCodeFor(err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
