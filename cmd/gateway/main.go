package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-chart/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/quote-chart/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/quote-chart/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/quote-chart/pkg/config"
	"github.com/shubham-shewale/quote-chart/pkg/models"
)

const shutdownTimeout = 10 * time.Second

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

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	tickers := cfg.Quotes.TickerNames()
	store := repository.NewRedisStore(rdb, cfg.Quotes.Feed, len(tickers), cfg.Quotes.TickIntervalSec)

	// Dependency Injection: Hub depends on the Repository Interface
	wsHub := hub.NewHub(cfg.Quotes.Feed, store, logger)

	mux := http.NewServeMux()
	gateway.NewAPI(store, models.ChartConfig{Tickers: tickers, TickIntervalSec: cfg.Quotes.TickIntervalSec}, logger).Routes(mux)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Warn("Upgrade failed", zap.Error(err))
			return
		}
		gateway.NewClient(conn, wsHub, logger).Start()
	})

	srv := &http.Server{Addr: cfg.App.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Server Started",
			zap.String("port", cfg.App.Port),
			zap.String("feed", cfg.Quotes.Feed),
			zap.Int("tickers", len(tickers)))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		logger.Error("Error closing Redis", zap.Error(err))
	}
	logger.Info("Shutdown Complete")
}
