package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pestalert/pestalert-go/cmd"
	"github.com/pestalert/pestalert-go/internal/buildinfo"
)

// Set with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cmd.RootCommand(buildinfo.NewContext(version, buildDate))
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
