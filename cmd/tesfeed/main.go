package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tesfeed/internal/adapter"
	"tesfeed/internal/config"
	"tesfeed/internal/store"
	"tesfeed/internal/util"
)

func main() {
	cfg := config.Default()
	if p := os.Getenv("FEED_CONFIG"); p != "" {
		c, err := config.Load(p)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = c
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := adapter.Options{Logger: logger}
	if cfg.Storage.DataDir != "" {
		opts.Archive = store.NewParquetArchive(cfg.Storage.DataDir)
	}
	// Mirror databases may come up after the adapter in supervised deploys.
	switch cfg.Storage.Mirror {
	case "sqlite":
		var m *store.SQLiteMirror
		err := util.Retry(ctx, 3, time.Second, func() error {
			var err error
			m, err = store.NewSQLiteMirror(cfg.Storage.SQLitePath)
			return err
		})
		if err != nil {
			log.Fatalf("failed to open sqlite mirror: %v", err)
		}
		opts.Mirror = m
	case "postgres":
		var m *store.PostgresMirror
		err := util.Retry(ctx, 3, time.Second, func() error {
			var err error
			m, err = store.NewPostgresMirror(cfg.Storage.PostgresDSN)
			return err
		})
		if err != nil {
			log.Fatalf("failed to open postgres mirror: %v", err)
		}
		opts.Mirror = m
	}

	a := adapter.New(cfg, opts)

	if err := a.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("adapter error: %v", err)
	}
}
