package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	appcli "github.com/jinford/pdf-rag/internal/app/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := appcli.NewCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
