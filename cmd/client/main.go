package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"lockstep/client/internal/app"
	"lockstep/client/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
