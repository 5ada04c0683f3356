package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/suPer8Hu/subspace-chat/internal/cli"
	"github.com/suPer8Hu/subspace-chat/internal/config"
)

func main() {
	// the terminal is for the chat; set SUBSPACE_DEBUG to see internal logs
	if os.Getenv("SUBSPACE_DEBUG") == "" {
		log.SetOutput(io.Discard)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, cfg)
	stop()
	os.Exit(code)
}
