package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-chart/cmd/generator/internal/generator"
	"github.com/shubham-shewale/quote-chart/pkg/config"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	// 2. Initialize Zap Logger
	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Create Topic (Ensure it exists)
	tc := generator.NewTopicCreator(logger, &generator.RealKafkaDialer{Dialer: kafka.DefaultDialer}, generator.RealClock{})
	if err := tc.Ensure(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions); err != nil {
		logger.Warn("Topic setup incomplete, producing anyway", zap.Error(err))
	}

	// 4. Setup Kafka Writer; keyed by feed so every tick of a feed lands on one partition
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	settings := generator.Settings{
		Feed:         cfg.Quotes.Feed,
		Tickers:      cfg.Quotes.TickerNames(),
		Interval:     cfg.Quotes.TickInterval(),
		InitialQuote: cfg.Quotes.InitialQuote,
		MinQuote:     cfg.Quotes.MinQuote,
		MaxQuote:     cfg.Quotes.MaxQuote,
		MaxCatchUp:   cfg.Quotes.MaxStoredTicks,
	}
	gen := generator.NewQuoteGenerator(logger, writer, settings, generator.NewRealRand(), generator.RealClock{})

	// 5. Generate until a shutdown signal arrives
	gen.Run(ctx)
	logger.Info("Shutdown signal received")

	// 6. Flush Kafka Buffer
	if err := writer.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	} else {
		logger.Info("Kafka writer closed cleanly")
	}
}
