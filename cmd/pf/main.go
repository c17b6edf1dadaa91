package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/phillarmonic/pf/cmd/pf/app"
	"github.com/phillarmonic/pf/internal/errors"
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.NewApp(version, commit, date).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprint(os.Stderr, errors.Format(err))
		os.Exit(errors.ExitCode(err))
	}
}
