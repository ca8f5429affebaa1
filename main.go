package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"dnse-trading-bot/config"
	"dnse-trading-bot/internal/api"
	"dnse-trading-bot/internal/cache"
	"dnse-trading-bot/internal/database"
	"dnse-trading-bot/internal/dnse"
	"dnse-trading-bot/internal/events"
	"dnse-trading-bot/internal/logging"
	"dnse-trading-bot/internal/market"
	"dnse-trading-bot/internal/notification"
	"dnse-trading-bot/internal/pipeline"
	"dnse-trading-bot/internal/vault"
)

// mockBarInterval is how often the demo feed emits a bar per symbol.
const mockBarInterval = 5 * time.Second

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)
	logger.Info("Starting DNSE signal service", "timeframe", cfg.PipelineConfig.Timeframe, "demo_mode", cfg.DemoMode)

	// zerolog side of the house: feed and cache
	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	eventBus := events.NewBus(logger)

	// Store-open failure is the one fatal startup condition.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(ctx, cfg.DatabaseConfig, logger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	repo := database.NewRepository(db)

	snapshots := cache.NewSnapshotCache(cfg.RedisConfig, zlog)

	notifier := notification.NewManager(logger)
	telegram := notification.NewTelegramNotifier(cfg.TelegramConfig)
	if telegram.IsEnabled() {
		notifier.AddNotifier(telegram)
		logger.Info("Telegram notifications enabled")
	}

	// DNSE credentials may live in Vault instead of the environment.
	if cfg.DNSEConfig.Username == "" && cfg.VaultConfig.Address != "" {
		if creds := fetchVaultCredentials(ctx, cfg.VaultConfig, logger); creds != nil {
			cfg.DNSEConfig.Username = creds.Username
			cfg.DNSEConfig.Password = creds.Password
		}
	}

	// Persisted settings override the environment watchlist and quantity.
	watchlist := cfg.Watchlist
	if persisted, err := repo.GetWatchlist(ctx); err != nil {
		logger.Warn("Cannot load persisted watchlist", "error", err.Error())
	} else if len(persisted) > 0 {
		watchlist = persisted
	}
	if qty, err := repo.GetDefaultQuantity(ctx); err != nil {
		logger.Warn("Cannot load persisted default quantity", "error", err.Error())
	} else if qty > 0 {
		cfg.SignalConfig.DefaultQuantity = qty
		cfg.PipelineConfig.Engine.DefaultQuantity = qty
	}

	// The feed callbacks close over the pipeline, which is built after the
	// feed so the mock adapter can double as the history provider.
	var pipe *pipeline.Manager
	onBar := func(bar market.Bar) {
		pipe.HandleBar(bar)
	}
	onStatus := func(connected bool) {
		status := "disconnected"
		if connected {
			status = "connected"
		}
		logger.Info("Feed status changed", "status", status)
		eventBus.PublishSystem(map[string]interface{}{
			"status":         status,
			"dnse_connected": connected,
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
		})
	}

	var feed dnse.Adapter
	var history dnse.HistoryProvider
	if cfg.DemoMode {
		mock := dnse.NewMockAdapter(mockBarInterval, onBar, onStatus, zlog)
		feed = mock
		history = mock
	} else {
		feed = dnse.NewClient(cfg.DNSEConfig, onBar, onStatus, zlog)
	}

	pipe = pipeline.NewManager(cfg.PipelineConfig, repo, eventBus, snapshots, notifier, history, logger)
	if err := pipe.Start(ctx, watchlist); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}

	// Feed trouble is non-fatal: the pipeline keeps running on whatever
	// arrives once the transport recovers.
	if err := feed.Connect(ctx, watchlist, cfg.PipelineConfig.Timeframe); err != nil {
		logger.Warn("Feed connect failed, continuing without live data", "error", err.Error())
	}

	server := api.NewServer(api.ServerConfig{
		Host:            cfg.ServerConfig.Host,
		Port:            cfg.ServerConfig.Port,
		ProductionMode:  cfg.ServerConfig.ProductionMode,
		DefaultQuantity: cfg.SignalConfig.DefaultQuantity,
	}, repo, pipe, eventBus, feed, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("API server failed", "error", err.Error())
			stop()
		}
	}()

	logger.Info("Service started", "watchlist", watchlist, "port", cfg.ServerConfig.Port)
	_ = notifier.SendInfo("Signal service started", "Watching: "+strings.Join(watchlist, ", "))

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API shutdown error", "error", err.Error())
	}
	pipe.Stop()
	feed.Close()
	snapshots.Close()
	db.Close()

	logger.Info("Shutdown complete")
}

// fetchVaultCredentials reads the DNSE login from Vault. Failures degrade
// to a warning; the service can still run in demo mode or reconnect later.
func fetchVaultCredentials(ctx context.Context, cfg vault.Config, logger *logging.Logger) *vault.Credentials {
	client, err := vault.NewClient(cfg)
	if err != nil || client == nil {
		if err != nil {
			logger.Warn("Vault client unavailable", "error", err.Error())
		}
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	creds, err := client.FetchCredentials(fetchCtx)
	if err != nil {
		logger.Warn("Cannot fetch DNSE credentials from Vault", "error", err.Error())
		return nil
	}
	logger.Info("DNSE credentials loaded from Vault")
	return creds
}
