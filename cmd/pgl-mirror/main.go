package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/paulschiretz/pgl-mirror/cmd"
	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

func main() {
	// The context is cancelled on Ctrl+C or SIGTERM; running cycles stop
	// between two entries and the schedulers return.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.NewRootCommand().ExecuteContext(ctx); err != nil {
		plog.Error(buildinfo.Name+" exited with error", "error", err)
		os.Exit(1)
	}
}
