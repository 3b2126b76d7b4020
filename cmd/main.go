package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pgbridge/internal/app"
	"pgbridge/internal/config"
	dLog "pgbridge/internal/domain/log"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// .env is optional
	_ = godotenv.Load()

	cfg := config.MustLoad()

	a, err := app.Build(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Fatal(err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.Listener.Run(ctx); err != nil && ctx.Err() == nil {
			a.Logger.Error("listener stopped", dLog.Field{Key: "err", Value: err})
		}
		cancel()
	}()

	<-ctx.Done()
	<-done
	fmt.Println("shutting down...")
}
