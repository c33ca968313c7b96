// Command indexer runs the campaign indexing service.
//
// It follows a campaign factory contract on an EVM chain, mirrors every
// campaign event into PostgreSQL, and keeps the materialized campaign
// and wallet stats in sync with on-chain state.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fundscope/indexer/internal/chain"
	"github.com/fundscope/indexer/internal/config"
	"github.com/fundscope/indexer/internal/feed"
	"github.com/fundscope/indexer/internal/indexer"
	"github.com/fundscope/indexer/internal/platform/storage"
	"github.com/fundscope/indexer/internal/statscache"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	rpcURL := flag.String("rpc-url", "", "EVM RPC endpoint (overrides config)")
	factory := flag.String("factory", "", "Campaign factory address (overrides config)")
	logLevel := flag.String("log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if *rpcURL != "" {
		os.Setenv("RPC_URL", *rpcURL)
	}
	if *factory != "" {
		os.Setenv("FACTORY_ADDRESS", *factory)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("starting indexer",
		"rpc_url", cfg.RPCURL,
		"factory", cfg.FactoryAddress,
		"poll_interval", cfg.Indexer.PollInterval,
		"batch_size", cfg.Indexer.BatchSize,
		"feed_enabled", cfg.FeedEnabled(),
		"cache_enabled", cfg.CacheEnabled(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("indexer error", "error", err)
		os.Exit(1)
	}

	logger.Info("indexer shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := storage.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	client, err := chain.Dial(ctx, cfg.RPCURL, cfg.Factory(), chain.DefaultRetryPolicy(), logger)
	if err != nil {
		return err
	}
	defer client.Close()

	events := storage.NewEventRepository(db)
	campaigns := storage.NewCampaignStatsRepository(db)
	users := storage.NewUserStatsRepository(db)
	checkpoints := storage.NewCheckpointRepository(db)

	var invalidator indexer.Invalidator
	if cfg.CacheEnabled() {
		cache, err := statscache.New(cfg.Cache, logger)
		if err != nil {
			return err
		}
		defer cache.Close()
		invalidator = cache
	}

	var publisher indexer.FeedPublisher
	if cfg.FeedEnabled() {
		client, err := feed.Connect(ctx, cfg.Feed, logger)
		if err != nil {
			return err
		}
		defer client.Close()

		pub, err := feed.NewPublisher(ctx, client, feed.DefaultStreamConfig())
		if err != nil {
			return err
		}
		publisher = pub
	}

	tokens := indexer.NewTokenCache(client)
	agg := indexer.NewAggregator(client, tokens, events, campaigns, users, invalidator, logger)
	ix := indexer.New(cfg.Indexer, client, events, checkpoints, agg, publisher, logger)

	return ix.Run(ctx)
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
