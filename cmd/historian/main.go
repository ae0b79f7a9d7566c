// cmd/historian drains the Redis history queue into Postgres.
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/trivia/internal/cache"
	"github.com/jason-s-yu/trivia/internal/config"
	"github.com/jason-s-yu/trivia/internal/database"
	"github.com/jason-s-yu/trivia/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
)

const releaseVersion = "0.1.0"

func main() {
	cfg := &config.Config{}
	cmd := config.NewCommand("trivia-historian", "Persists finished matches and power-up usage from the Redis queue.", releaseVersion, cfg, run)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cobra.CheckErr(cmd.ExecuteContext(ctx))
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := cfg.Logger()
	if cfg.DatabaseURL == "" || cfg.RedisAddr == "" {
		return errors.New("historian needs both --database-url and --redis-addr")
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	queue := cache.NewQueue(rdb, cfg.QueueName)
	logger.Infof("draining %s into postgres", queue.Name())

	svc := historian.New(queue, db, logger, historian.Options{
		BatchSize:  cfg.HistorianBatch,
		FlushEvery: cfg.HistorianFlush,
	})
	return svc.Run(ctx)
}
