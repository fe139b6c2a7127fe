package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SunYerim/StockOfGalaxy/cmd/gateway/internal/gateway"
	"github.com/SunYerim/StockOfGalaxy/cmd/gateway/internal/hub"
	"github.com/SunYerim/StockOfGalaxy/cmd/gateway/internal/repository"
	"github.com/SunYerim/StockOfGalaxy/pkg/catalog"
	"github.com/SunYerim/StockOfGalaxy/pkg/config"
	"github.com/SunYerim/StockOfGalaxy/pkg/feedsource"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Config Error: %v", err)
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Logger Error: %v", err)
	}
	defer logger.Sync()

	if cfg.App.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("Catalog Error", zap.Error(err))
	}

	rdb := feedsource.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	source, err := feedsource.New(ctx, cfg.Feed, rdb, logger)
	if err != nil {
		logger.Fatal("Feed Error", zap.Error(err))
	}

	// Dependency Injection: Hub depends on the feed.Source interface
	wsHub := hub.NewHub(ctx, cat, source, logger)
	handler := gateway.NewHandler(wsHub, cat, repository.NewRedisStore(rdb), logger)

	srv := &http.Server{
		Addr:    cfg.App.Port,
		Handler: gateway.NewRouter(handler, cfg.Gateway.AllowOrigins),
	}

	go func() {
		logger.Info("Server Started",
			zap.String("port", cfg.App.Port),
			zap.String("feed", cfg.Feed.Source),
			zap.Int("instruments", cat.Len()))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	wsHub.Shutdown()
	logger.Info("Shutdown Complete")
}
