package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"pgbridge/internal/adapters/pgnotify"
	"pgbridge/internal/config"
)

func main() {
	_ = godotenv.Load()

	var (
		channel    string
		payload    string
		configPath string
	)
	flag.StringVar(&channel, "channel", "test_notifications", "channel to notify")
	flag.StringVar(&payload, "payload", `{"key": "value"}`, "notification payload")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %v", err)
	}
	dsn, err := cfg.Db.DSN()
	if err != nil {
		log.Fatalf("invalid db config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pub, err := pgnotify.NewPublisher(ctx, dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer pub.Close()

	if err := pub.Publish(ctx, channel, payload); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Event sent: %s\n", channel)
}
