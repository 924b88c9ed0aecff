package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"cvdcollector/config"
	"cvdcollector/internal/binance/collector"
	"cvdcollector/logger"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// zap logger
	zlog, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer zlog.Sync()

	// SIGINT/SIGTERM trigger the graceful shutdown sequence
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := collector.Run(ctx, cfg, zlog); err != nil {
		zlog.Fatal("collector failed", zap.Error(err))
	}
}
