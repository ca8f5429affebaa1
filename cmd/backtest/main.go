// Command backtest replays historical bars through the signal engine and
// prints a performance report. Bars come from a CSV file or, when no file
// is given, from the bar store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"dnse-trading-bot/config"
	"dnse-trading-bot/internal/backtest"
	"dnse-trading-bot/internal/database"
	"dnse-trading-bot/internal/logging"
	"dnse-trading-bot/internal/market"
)

func main() {
	csvPath := flag.String("csv", "", "CSV file with OHLCV rows (falls back to the bar store)")
	symbol := flag.String("symbol", "", "symbol to backtest (required)")
	timeframe := flag.String("timeframe", "1H", "bar timeframe")
	limit := flag.Int("limit", 5000, "max bars to load from the store")
	capital := flag.Float64("capital", 0, "initial capital (default from config)")
	positionSize := flag.Float64("position-size", 0, "position size percent (default from config)")
	jsonOut := flag.Bool("json", false, "print the result as JSON instead of a report")
	flag.Parse()

	if *symbol == "" {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	logger := logging.New(&logging.Config{
		Level:     getenvDefault("LOG_LEVEL", "WARN"),
		Output:    "stderr",
		Component: "backtest",
	})
	logging.SetDefault(logger)

	btCfg, bars, err := loadInputs(*csvPath, *symbol, *timeframe, *limit, logger)
	if err != nil {
		log.Fatalf("Failed to load bars: %v", err)
	}
	if len(bars) == 0 {
		log.Fatalf("No bars found for %s %s", *symbol, *timeframe)
	}
	if *capital > 0 {
		btCfg.InitialCapital = *capital
	}
	if *positionSize > 0 {
		btCfg.PositionSizePercent = *positionSize
	}

	result := backtest.New(btCfg, logger).Run(bars)

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			log.Fatalf("Cannot encode result: %v", err)
		}
		return
	}

	fmt.Println(result.Report())
	if len(result.Trades) > 0 {
		fmt.Println("Trades:")
		for _, tr := range result.Trades {
			fmt.Printf("  %s %s  entry %.0f @ %s  exit %.0f @ %s (%s)  qty %d  pnl %.0f (%.2f%%)\n",
				tr.Signal.Symbol, tr.Signal.Type,
				tr.EntryPrice, tr.EntryTime.Format("2006-01-02 15:04"),
				tr.ExitPrice, tr.ExitTime.Format("2006-01-02 15:04"),
				tr.ExitReason, tr.Quantity, tr.PnL, tr.PnLPercent)
		}
	}
}

// loadInputs resolves the backtest config and the bar vector. CSV input
// needs no database; store input reuses the service configuration.
func loadInputs(csvPath, symbol, timeframe string, limit int, logger *logging.Logger) (backtest.Config, []market.Bar, error) {
	if csvPath != "" {
		cfg := backtest.DefaultConfig()
		bars, err := backtest.LoadBarsCSV(csvPath, symbol, timeframe)
		return cfg, bars, err
	}

	cfg, err := config.Load()
	if err != nil {
		return backtest.Config{}, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewDB(ctx, cfg.DatabaseConfig, logger)
	if err != nil {
		return backtest.Config{}, nil, err
	}
	defer db.Close()

	rows, err := database.NewRepository(db).GetBars(ctx, symbol, timeframe, limit)
	if err != nil {
		return backtest.Config{}, nil, err
	}

	bars := make([]market.Bar, len(rows))
	for i, row := range rows {
		bars[i] = row.Bar()
	}
	return cfg.BacktestConfig, bars, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
