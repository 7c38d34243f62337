package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// maxExitCode keeps failure counts clear of shell-reserved statuses.
const maxExitCode = 125

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
