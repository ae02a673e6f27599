package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vigil/internal/config"
	"vigil/internal/logger"
	"vigil/internal/relay"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		// Missing credential is fatal; nothing to relay without it.
		log.Fatalf("config: %v", err)
	}

	logger.Init(cfg.LogLevel, cfg.LogFile)

	r := relay.New(cfg)

	// run relay in background
	go func() {
		if err := r.Run(ctx); err != nil {
			logger.Logger.Error().Err(err).Msg("relay exited")
			cancel()
		}
	}()

	// wait for termination signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		logger.Logger.Info().Msg("shutting down")
		cancel()
	case <-ctx.Done():
	}

	// give graceful shutdown some time
	time.Sleep(500 * time.Millisecond)
	logger.Logger.Info().Msg("exited")
}
