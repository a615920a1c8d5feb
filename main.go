package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"trading-dashboard/config"
	"trading-dashboard/internal/api"
	"trading-dashboard/internal/auth"
	"trading-dashboard/internal/cache"
	"trading-dashboard/internal/catalog"
	"trading-dashboard/internal/circuit"
	"trading-dashboard/internal/coordinator"
	"trading-dashboard/internal/dashboard"
	"trading-dashboard/internal/database"
	"trading-dashboard/internal/events"
	"trading-dashboard/internal/history"
	"trading-dashboard/internal/logging"
	"trading-dashboard/internal/market"
	"trading-dashboard/internal/stream"
	"trading-dashboard/internal/upstream"
	"trading-dashboard/internal/vault"
)

func main() {
	sampleConfig := flag.String("sample-config", "", "write a sample config to this path and exit")
	flag.Parse()

	if *sampleConfig != "" {
		if err := config.GenerateSampleConfig(*sampleConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Sample config written to %s\n", *sampleConfig)
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logging.SetDefault(logger)
	log := logger.With().Str("component", "main").Logger()
	log.Info().Msg("Structured logging initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Secrets from Vault override file and env values
	var vaultClient *vault.Client
	if cfg.VaultConfig.Enabled {
		vaultClient = loadSecrets(ctx, cfg, log)
	}

	eventBus := events.NewEventBus()
	log.Info().Msg("Event bus initialized")

	breaker := circuit.NewCircuitBreaker(&circuit.CircuitBreakerConfig{
		Enabled:          cfg.CircuitBreakerConfig.Enabled,
		FailureThreshold: cfg.CircuitBreakerConfig.FailureThreshold,
		Cooldown:         time.Duration(cfg.CircuitBreakerConfig.CooldownSeconds) * time.Second,
	}, eventBus)

	pull := upstream.NewClient(upstream.Config{
		BaseURL:      cfg.UpstreamConfig.BaseURL,
		Timeout:      cfg.UpstreamConfig.Timeout(),
		RetryMax:     cfg.UpstreamConfig.RetryMax,
		RetryWaitMin: time.Duration(cfg.UpstreamConfig.RetryWaitMinMs) * time.Millisecond,
		RetryWaitMax: time.Duration(cfg.UpstreamConfig.RetryWaitMaxMs) * time.Millisecond,
	}, breaker)

	push := stream.NewClient(stream.Config{
		URL:          cfg.StreamConfig.URL,
		ReconnectMin: time.Duration(cfg.StreamConfig.ReconnectMinMs) * time.Millisecond,
		ReconnectMax: time.Duration(cfg.StreamConfig.ReconnectMaxMs) * time.Millisecond,
		PingInterval: time.Duration(cfg.StreamConfig.PingIntervalSecs) * time.Second,
	})

	// Backtest history: PostgreSQL when configured, otherwise an in-memory ring
	store, repo, closeStore := openHistoryStore(ctx, cfg, log)
	defer closeStore()
	recorder := history.NewRecorder(store, eventBus)

	// Catalog, with Redis in front of the analysis server when enabled
	catalogTTL := cfg.RedisConfig.CatalogTTL()
	catalogService := catalog.NewService(pull, catalogTTL)
	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			log.Warn().Err(err).Msg("Redis cache unavailable, catalog stays in memory")
			cacheService = nil
		} else {
			defer cacheService.Close()
			catalogService.WithRemote(cacheService)
			log.Info().Str("address", cfg.RedisConfig.Address).Bool("healthy", cacheService.IsHealthy()).Msg("Catalog cache connected")
		}
	}

	initial, err := market.NewSelection(cfg.DashboardConfig.DefaultSymbol, cfg.DashboardConfig.DefaultTimeframe)
	if err != nil {
		log.Error().Err(err).Msg("Invalid default selection")
		os.Exit(1)
	}

	dash := dashboard.New(dashboard.Config{
		Initial:         initial,
		RefreshInterval: cfg.DashboardConfig.RefreshInterval(),
		Requests: coordinator.Config{
			BarLimit:         cfg.DashboardConfig.BarLimit,
			NarrationTimeout: cfg.DashboardConfig.NarrationTimeout(),
			DefaultStrategy:  cfg.DashboardConfig.DefaultStrategy,
			DefaultCapital:   cfg.DashboardConfig.DefaultCapital,
		},
	}, pull, push, eventBus, logger)
	dash.OnBacktestAccepted(recorder.Record)

	var jwtManager *auth.JWTManager
	if cfg.AuthConfig.Enabled {
		jwtManager = auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.Issuer, auth.DefaultTokenDuration)
		log.Info().Msg("Bearer auth enabled on dashboard actions")
	}

	server := api.NewServer(api.ServerConfig{
		Port:           cfg.ServerConfig.Port,
		Host:           cfg.ServerConfig.Host,
		AllowedOrigins: splitOrigins(cfg.ServerConfig.AllowedOrigins),
		ProductionMode: cfg.ServerConfig.ProductionMode,
	}, dash, catalogService, recorder, eventBus, jwtManager)
	server.AddHealthSource("circuit_breaker", breaker)
	server.AddHealthSource("stream", push)
	if repo != nil {
		server.AddHealthSource("database", repo)
	}
	if cacheService != nil {
		server.AddHealthSource("redis", cacheService)
	}
	if vaultClient != nil {
		server.AddHealthSource("vault", vaultClient)
	}
	server.SetRemoteHistory(pull)
	server.SetBreaker(breaker)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Web server stopped")
			stop()
		}
	}()

	log.Info().
		Str("upstream", cfg.UpstreamConfig.BaseURL).
		Str("stream", cfg.StreamConfig.URL).
		Str("selection", initial.String()).
		Int("port", cfg.ServerConfig.Port).
		Msg("Starting trading dashboard")

	// Run blocks until a signal cancels ctx
	if err := dash.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Dashboard loop exited")
	}

	log.Info().Msg("Shutting down...")

	timeout := time.Duration(cfg.ServerConfig.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Error shutting down web server")
	}
	recorder.Wait()

	log.Info().Msg("Shutdown complete")
}

// loadSecrets applies Vault secrets to cfg and returns the client, or nil
// when no client could be built.
func loadSecrets(ctx context.Context, cfg *config.Config, log zerolog.Logger) *vault.Client {
	client, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Warn().Err(err).Msg("Vault client unavailable, using configured secrets")
		return nil
	}

	readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	secrets, err := client.ReadSecrets(readCtx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read secrets from Vault")
		return client
	}
	cfg.ApplySecrets(secrets)
	log.Info().Int("keys", len(secrets)).Msg("Secrets loaded from Vault")
	return client
}

// openHistoryStore returns the backtest store. repo is nil for the in-memory store.
func openHistoryStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store history.Store, repo *database.Repository, closeFn func()) {
	memory := func() (history.Store, *database.Repository, func()) {
		return history.NewMemoryStore(0), nil, func() {}
	}
	if !cfg.DatabaseConfig.Enabled {
		return memory()
	}

	db, err := database.NewDB(ctx, cfg.DatabaseConfig)
	if err != nil {
		log.Warn().Err(err).Msg("Database unavailable, backtest history kept in memory")
		return memory()
	}
	if err := db.RunMigrations(ctx); err != nil {
		log.Warn().Err(err).Msg("Database migrations failed, backtest history kept in memory")
		db.Close()
		return memory()
	}

	log.Info().Str("host", cfg.DatabaseConfig.Host).Msg("Backtest history stored in PostgreSQL")
	repo = database.NewRepository(db)
	return history.NewPostgresStore(repo), repo, db.Close
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSpace(o)
		if o == "" || o == "*" {
			continue
		}
		origins = append(origins, o)
	}
	return origins
}
