package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"ricemill-inventory/internal/adapters/cli"
	"ricemill-inventory/internal/app"
	"ricemill-inventory/internal/cache"
	"ricemill-inventory/internal/config"
	"ricemill-inventory/internal/db"
	"ricemill-inventory/internal/logger"
	"ricemill-inventory/migrations"
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

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	args := os.Args[1:]
	if len(args) > 0 && args[0] == "migrate" {
		if err := db.Migrate(ctx, pool, migrations.FS, zl); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Println("Migrations applied.")
		return
	}

	// Rebuilds must drop cached stock figures the server may still hold.
	rdb := cache.NewClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}
	svc := app.NewAppService(pool, cfg.Database.MaxTxRetries, app.Deps{
		Cache:  cache.NewStockCache(rdb, cfg.Redis.StockTTL, zl),
		Logger: zl,
	})

	if err := cli.Run(ctx, svc, args, os.Stdout); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
