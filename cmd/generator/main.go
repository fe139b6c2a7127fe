package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/SunYerim/StockOfGalaxy/cmd/generator/internal/generator"
	"github.com/SunYerim/StockOfGalaxy/pkg/catalog"
	"github.com/SunYerim/StockOfGalaxy/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to load catalog", zap.Error(err))
	}

	clock := generator.WallClock{}

	// Ensure the topic exists before writing
	dialer := generator.NewBrokerDialer(10 * time.Second)
	if err := generator.NewTopicCreator(logger, dialer, clock).Create(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, 4); err != nil {
		logger.Warn("Topic setup incomplete, writing anyway", zap.Error(err))
	}

	// Setup Kafka Writer (Production Tuning)
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.Hash{}, // same code, same partition
		// Optimization: Send batches to reduce network IO
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}

	walk := generator.NewRandomWalk(time.Now().UnixNano())
	gen := generator.NewStockGenerator(logger, writer, cat.Codes(), generator.KnownPrevClose(), walk, clock)

	gen.Run(ctx)
	logger.Info("Shutdown signal received")

	// Flush Kafka Buffer (CRITICAL)
	if err := writer.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	} else {
		logger.Info("Kafka writer closed cleanly")
	}
}
