package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/heiloMeow/nudgeeq/internal/api"
	"github.com/heiloMeow/nudgeeq/internal/cache"
	"github.com/heiloMeow/nudgeeq/internal/config"
	"github.com/heiloMeow/nudgeeq/internal/db"
	"github.com/heiloMeow/nudgeeq/internal/live"
	"github.com/heiloMeow/nudgeeq/internal/observ"
	"github.com/heiloMeow/nudgeeq/internal/repository"
	"github.com/heiloMeow/nudgeeq/internal/repository/memory"
	"github.com/heiloMeow/nudgeeq/internal/repository/postgres"
	"github.com/heiloMeow/nudgeeq/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	var (
		roles    repository.RoleRepository
		tables   repository.TableRepository
		messages repository.MessageRepository
		search   repository.SignalSearchRepository
		health   func(context.Context) error
	)

	switch cfg.Store {
	case "memory":
		store := memory.NewStore(cfg.SeedTables, logger)
		roles = store.Roles()
		tables = store.Tables()
		messages = store.Messages()
		search = store.Signals()
		health = func(context.Context) error { return nil }
		logger.Info("using in-memory store", zap.Strings("tables", cfg.SeedTables))

	default:
		database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()

		pool := database.Pool()
		if err := postgres.EnsureSchema(context.Background(), pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		if err := postgres.SeedTables(context.Background(), pool, cfg.SeedTables, logger); err != nil {
			return fmt.Errorf("seed tables: %w", err)
		}

		roles = postgres.NewRoleStore(pool, logger)
		tables = postgres.NewTableStore(pool)
		messages = postgres.NewMessageStore(pool)
		search = postgres.NewSignalStore(pool)
		health = database.Health
	}

	var searchCache *cache.SearchCache
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(context.Background(), cfg.RedisURL)
		if err != nil {
			// A dead cache degrades search latency, not correctness.
			logger.Warn("redis unavailable, search cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			searchCache = cache.NewSearchCache(rdb, logger)
			logger.Info("search cache enabled")
		}
	}

	broker := live.NewBroker(logger)
	defer broker.Close()

	hub := ws.NewHub(logger)
	defer hub.Close()

	router := api.NewRouter(api.Deps{
		Roles:       roles,
		Tables:      tables,
		Messages:    messages,
		Search:      search,
		SearchCache: searchCache,
		Broker:      broker,
		Hub:         hub,
		Health:      health,
		Logger:      logger,
	})

	logger.Info("starting NudgeeQ",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("store", cfg.Store),
	)
	return router.Run(":" + cfg.Port)
}
