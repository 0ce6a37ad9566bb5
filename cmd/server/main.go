package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	webAdapter "ricemill-inventory/internal/adapters/web"
	"ricemill-inventory/internal/app"
	"ricemill-inventory/internal/cache"
	"ricemill-inventory/internal/config"
	"ricemill-inventory/internal/db"
	"ricemill-inventory/internal/events"
	"ricemill-inventory/internal/logger"
	"ricemill-inventory/internal/metrics"
	"ricemill-inventory/migrations"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		zl.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, migrations.FS, zl); err != nil {
		zl.Fatal("migrate", zap.Error(err))
	}

	rdb := cache.NewClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			zl.Warn("redis unreachable, stock reads go to the database", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
	}
	publisher := events.NewPublisher(cfg.Kafka, zl)
	defer publisher.Close()
	m := metrics.New()

	svc := app.NewAppService(pool, cfg.Database.MaxTxRetries, app.Deps{
		Cache:     cache.NewStockCache(rdb, cfg.Redis.StockTTL, zl),
		Publisher: publisher,
		Metrics:   m,
		Logger:    zl,
	})

	if cfg.Auth.JWTSecret == "" {
		zl.Warn("JWT_SECRET is not set; every mutating request will be rejected")
	}
	handler := webAdapter.NewHandler(svc, cfg.Server, cfg.Auth.JWTSecret, m.Handler(), zl)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: handler,
	}

	go func() {
		zl.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown", zap.Error(err))
	}
}
