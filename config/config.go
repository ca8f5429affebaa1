// Package config loads service configuration from an optional JSON file
// with environment-variable overrides. Environment always wins.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"dnse-trading-bot/internal/backtest"
	"dnse-trading-bot/internal/cache"
	"dnse-trading-bot/internal/database"
	"dnse-trading-bot/internal/dnse"
	"dnse-trading-bot/internal/logging"
	"dnse-trading-bot/internal/notification"
	"dnse-trading-bot/internal/pipeline"
	"dnse-trading-bot/internal/signal"
	"dnse-trading-bot/internal/vault"
)

// defaultMQTTURL is the DNSE Lightspeed KRX datafeed endpoint.
const defaultMQTTURL = "wss://datafeed-lts-krx.dnse.com.vn/wss"

type Config struct {
	ServerConfig   ServerConfig                `json:"server"`
	DatabaseConfig database.Config             `json:"database"`
	RedisConfig    cache.Config                `json:"redis"`
	DNSEConfig     dnse.Config                 `json:"dnse"`
	VaultConfig    vault.Config                `json:"vault"`
	TelegramConfig notification.TelegramConfig `json:"telegram"`
	LoggingConfig  logging.Config              `json:"logging"`
	SignalConfig   signal.Config               `json:"signal"`
	BacktestConfig backtest.Config             `json:"backtest"`
	PipelineConfig pipeline.Config             `json:"pipeline"`
	Watchlist      []string                    `json:"watchlist"`
	DemoMode       bool                        `json:"demo_mode"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ProductionMode bool   `json:"production_mode"`
}

// Load reads config.json if present, then applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	if cfg.DatabaseConfig.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Credentials (DNSE, Telegram, Vault) come from the environment or Vault
// only, never from config.json.
func applyEnvOverrides(cfg *Config) {
	// Watchlist and timeframe. Persisted settings may still override the
	// watchlist at startup; that happens in main, not here.
	if list := getEnvOrDefault("WATCHLIST", ""); list != "" {
		cfg.Watchlist = splitList(list)
	}
	if len(cfg.Watchlist) == 0 {
		cfg.Watchlist = []string{"VNM", "FPT", "VIC"}
	}
	cfg.PipelineConfig.Timeframe = getEnvOrDefault("TIMEFRAME", defaultString(cfg.PipelineConfig.Timeframe, "1H"))

	// Signal rule parameters
	base := signal.DefaultConfig()
	cfg.SignalConfig.Indicators.RSIPeriod = getEnvIntOrDefault("RSI_PERIOD", defaultInt(cfg.SignalConfig.Indicators.RSIPeriod, base.Indicators.RSIPeriod))
	cfg.SignalConfig.Indicators.MACDFast = getEnvIntOrDefault("MACD_FAST", defaultInt(cfg.SignalConfig.Indicators.MACDFast, base.Indicators.MACDFast))
	cfg.SignalConfig.Indicators.MACDSlow = getEnvIntOrDefault("MACD_SLOW", defaultInt(cfg.SignalConfig.Indicators.MACDSlow, base.Indicators.MACDSlow))
	cfg.SignalConfig.Indicators.MACDSignal = getEnvIntOrDefault("MACD_SIGNAL", defaultInt(cfg.SignalConfig.Indicators.MACDSignal, base.Indicators.MACDSignal))
	cfg.SignalConfig.Indicators.ATRPeriod = getEnvIntOrDefault("ATR_PERIOD", defaultInt(cfg.SignalConfig.Indicators.ATRPeriod, base.Indicators.ATRPeriod))
	cfg.SignalConfig.ZoneWidthATRMult = getEnvFloatOrDefault("ZONE_WIDTH_ATR_MULTIPLIER", defaultFloat(cfg.SignalConfig.ZoneWidthATRMult, base.ZoneWidthATRMult))
	cfg.SignalConfig.SLBufferATRMult = getEnvFloatOrDefault("SL_BUFFER_ATR_MULTIPLIER", defaultFloat(cfg.SignalConfig.SLBufferATRMult, base.SLBufferATRMult))
	cfg.SignalConfig.RiskRewardRatio = getEnvFloatOrDefault("RISK_REWARD_RATIO", defaultFloat(cfg.SignalConfig.RiskRewardRatio, base.RiskRewardRatio))
	cfg.SignalConfig.DefaultQuantity = getEnvIntOrDefault("DEFAULT_QUANTITY", defaultInt(cfg.SignalConfig.DefaultQuantity, base.DefaultQuantity))
	cfg.SignalConfig.MaxBars = defaultInt(cfg.SignalConfig.MaxBars, base.MaxBars)
	cfg.SignalConfig.Patterns = base.Patterns
	cfg.PipelineConfig.Engine = cfg.SignalConfig

	// Backtest config shares the signal rule parameters
	bt := backtest.DefaultConfig()
	cfg.BacktestConfig.InitialCapital = getEnvFloatOrDefault("BACKTEST_INITIAL_CAPITAL", defaultFloat(cfg.BacktestConfig.InitialCapital, bt.InitialCapital))
	cfg.BacktestConfig.PositionSizePercent = getEnvFloatOrDefault("BACKTEST_POSITION_SIZE_PERCENT", defaultFloat(cfg.BacktestConfig.PositionSizePercent, bt.PositionSizePercent))
	cfg.BacktestConfig.Engine = cfg.SignalConfig

	// Server config
	cfg.ServerConfig.Host = getEnvOrDefault("HOST", defaultString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.Port = getEnvIntOrDefault("PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("PRODUCTION_MODE", cfg.ServerConfig.ProductionMode)

	// Stores
	cfg.DatabaseConfig.URL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseConfig.URL)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Market-data feed
	cfg.DemoMode = getEnvBoolOrDefault("DEMO_MODE", cfg.DemoMode)
	cfg.DNSEConfig.Username = getEnvOrDefault("DNSE_USERNAME", "")
	cfg.DNSEConfig.Password = getEnvOrDefault("DNSE_PASSWORD", "")
	cfg.DNSEConfig.MQTTURL = getEnvOrDefault("DNSE_MQTT_URL", defaultString(cfg.DNSEConfig.MQTTURL, defaultMQTTURL))
	cfg.DNSEConfig.RescalePrices = getEnvBoolOrDefault("DNSE_RESCALE_PRICES", true)

	// Secrets
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", "")
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	// Notifications
	cfg.TelegramConfig.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", "")
	cfg.TelegramConfig.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", "")

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if sym := strings.ToUpper(strings.TrimSpace(part)); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}

func defaultString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func defaultInt(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}

func defaultFloat(value, fallback float64) float64 {
	if value != 0 {
		return value
	}
	return fallback
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
