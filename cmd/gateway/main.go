package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/scene-gateway/internal/config"
	"github.com/tjfontaine/scene-gateway/internal/directive"
	"github.com/tjfontaine/scene-gateway/internal/domain"
	"github.com/tjfontaine/scene-gateway/internal/provider"
	"github.com/tjfontaine/scene-gateway/internal/publish"
	"github.com/tjfontaine/scene-gateway/internal/ratelimit"
	"github.com/tjfontaine/scene-gateway/internal/registration"
	"github.com/tjfontaine/scene-gateway/internal/relay"
	"github.com/tjfontaine/scene-gateway/internal/server"
	"github.com/tjfontaine/scene-gateway/internal/storage"
	"github.com/tjfontaine/scene-gateway/internal/storage/memory"
	"github.com/tjfontaine/scene-gateway/internal/storage/sqldb"
	"github.com/tjfontaine/scene-gateway/internal/telemetry"
	"github.com/tjfontaine/scene-gateway/internal/tokens"
)

const defaultSQLitePath = "scene-gateway.db"

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config.yaml")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, logger); err != nil {
		log.Fatalf("gateway: %v", err)
	}
	logger.Info("gateway shutdown complete")
}

func run(ctx context.Context, configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if _, ok := directive.LabelsFor(cfg.Directive.LabelLocale); !ok {
		return fmt.Errorf("directive.label_locale %q is not one of %v", cfg.Directive.LabelLocale, directive.LabelLocales())
	}

	shutdownTracer, err := telemetry.InitTracer(cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	registration.RegisterBuiltins()
	providers, err := provider.NewRegistry(cfg.Providers)
	if err != nil {
		return err
	}
	logger.Info("providers configured", slog.Any("providers", providers.Names()))

	store, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher, err := openPublisher(cfg.MQTT, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	var embedder domain.Provider
	if cfg.Relay.RankSuggestions {
		p, ok := providers.Get(cfg.Relay.DefaultProvider)
		if !ok {
			return fmt.Errorf("rank_suggestions: default provider %q is not configured", cfg.Relay.DefaultProvider)
		}
		embedder = p
	}
	embeddingModel := ""
	if pc, ok := cfg.Provider(cfg.Relay.DefaultProvider); ok {
		embeddingModel = pc.EmbeddingModel
	}

	counters := tokens.NewRegistry()
	counters.Register(tokens.NewTiktokenCounter())

	r := relay.New(relay.Options{
		Providers: providers,
		Relay:     cfg.Relay,
		Directive: cfg.Directive,
		Store:     store,
		Publisher: publisher,
		Advisor:   relay.NewSuggestionAdvisor(cfg.Relay.Suggestions, embedder, embeddingModel, logger),
		Tokens:    counters,
		Logger:    logger,
	})

	limiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	go limiter.Run(ctx, cfg.RateLimit.SweepInterval)

	srv := server.New(cfg.Server, r, limiter, logger)
	return srv.Start(ctx)
}

func openStore(cfg config.StorageConfig) (storage.ConversationStore, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		return sqldb.NewSQLite(dsn)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("storage: postgres requires a dsn")
		}
		return sqldb.New(sqldb.Config{Driver: "postgres", DSN: cfg.DSN})
	default:
		return nil, fmt.Errorf("storage: unsupported type %q", cfg.Type)
	}
}

func openPublisher(cfg config.MQTTConfig, logger *slog.Logger) (publish.Publisher, error) {
	if !cfg.Enabled {
		return publish.Noop{}, nil
	}
	p, err := publish.NewMQTT(publish.MQTTConfig{
		BrokerURL:   cfg.BrokerURL,
		ClientID:    cfg.ClientID,
		Username:    cfg.Username,
		Password:    cfg.Password,
		TopicPrefix: cfg.TopicPrefix,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect mqtt: %w", err)
	}
	return p, nil
}
