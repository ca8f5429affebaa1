//go:build integration

package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"dnse-trading-bot/internal/logging"
	"dnse-trading-bot/internal/market"
)

// Integration tests run against a throwaway Postgres:
//
//	TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/database/
//
// Each test uses a unique symbol so runs do not interfere.

func testRepo(t *testing.T) *Repository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
	db, err := NewDB(ctx, DefaultConfig(url), logger)
	if err != nil {
		t.Fatalf("Cannot open test database: %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.RunMigrations(ctx); err != nil {
		t.Fatalf("Cannot run migrations: %v", err)
	}
	return NewRepository(db)
}

func uniqueSymbol() string {
	return fmt.Sprintf("T%d", time.Now().UnixNano()%1_000_000_000)
}

// TestSaveBarIdempotent tests that re-saving the same key leaves one row
// holding the latter content
func TestSaveBarIdempotent(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	symbol := uniqueSymbol()

	bar := BarRow{
		Symbol: symbol, Timeframe: "1H",
		Timestamp: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Open:      100, High: 105, Low: 99, Close: 104, Volume: 1000,
	}
	if err := repo.SaveBar(ctx, &bar); err != nil {
		t.Fatalf("First SaveBar failed: %v", err)
	}

	replaced := bar
	replaced.Close = 103
	replaced.Volume = 2500
	if err := repo.SaveBar(ctx, &replaced); err != nil {
		t.Fatalf("Second SaveBar failed: %v", err)
	}

	rows, err := repo.GetBars(ctx, symbol, "1H", 10)
	if err != nil {
		t.Fatalf("GetBars failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected exactly 1 row after re-save, got %d", len(rows))
	}
	if rows[0].Close != 103 || rows[0].Volume != 2500 {
		t.Errorf("Row should hold the latter content, got close=%v volume=%v", rows[0].Close, rows[0].Volume)
	}
}

// TestGetBarsChronological tests the last-N-in-order contract
func TestGetBarsChronological(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	symbol := uniqueSymbol()

	var batch []BarRow
	for i := 0; i < 5; i++ {
		batch = append(batch, BarRow{
			Symbol: symbol, Timeframe: "1H",
			Timestamp: time.Date(2024, 3, 1, 9+i, 0, 0, 0, time.UTC),
			Open:      100, High: 105, Low: 99, Close: 100 + float64(i),
		})
	}
	if err := repo.SaveBars(ctx, batch); err != nil {
		t.Fatalf("SaveBars failed: %v", err)
	}

	rows, err := repo.GetBars(ctx, symbol, "1H", 3)
	if err != nil {
		t.Fatalf("GetBars failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected the last 3 bars, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if !rows[i].Timestamp.After(rows[i-1].Timestamp) {
			t.Fatalf("Bars must come back chronological, got %v then %v", rows[i-1].Timestamp, rows[i].Timestamp)
		}
	}
	if rows[2].Close != 104 {
		t.Errorf("Expected newest bar last (close 104), got %v", rows[2].Close)
	}
}

// TestSignalRoundTrip tests insert, id assignment, update and lookup
func TestSignalRoundTrip(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	symbol := uniqueSymbol()

	row := SignalRow{
		Symbol: symbol, Type: string(market.SignalBuy),
		Timestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Entry:     100, StopLoss: 95, TakeProfit: 110, Quantity: 100,
		Status: string(market.StatusActive), Reason: "test setup", OriginalSL: 95,
	}
	if err := repo.SaveSignal(ctx, &row); err != nil {
		t.Fatalf("SaveSignal failed: %v", err)
	}
	if row.ID == 0 {
		t.Fatal("SaveSignal must assign a monotonic id")
	}

	if err := repo.UpdateSignal(ctx, row.ID, string(market.StatusBreakeven), 100); err != nil {
		t.Fatalf("UpdateSignal failed: %v", err)
	}

	got, err := repo.GetSignalByID(ctx, row.ID)
	if err != nil {
		t.Fatalf("GetSignalByID failed: %v", err)
	}
	if got.Status != string(market.StatusBreakeven) || got.StopLoss != 100 {
		t.Errorf("Update should change status and stop only, got %+v", got)
	}
	if got.OriginalSL != 95 || got.Entry != 100 {
		t.Errorf("Other fields must be untouched, got %+v", got)
	}

	if err := repo.UpdateSignal(ctx, row.ID+999_999, "ACTIVE", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Updating a missing signal should return ErrNotFound, got %v", err)
	}
}

// TestSettingsLastWriterWins tests key-value overwrite semantics
func TestSettingsLastWriterWins(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	key := "test_setting_" + uniqueSymbol()

	if err := repo.SaveSetting(ctx, key, "first"); err != nil {
		t.Fatalf("SaveSetting failed: %v", err)
	}
	if err := repo.SaveSetting(ctx, key, "second"); err != nil {
		t.Fatalf("Second SaveSetting failed: %v", err)
	}

	value, found, err := repo.GetSetting(ctx, key)
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if !found || value != "second" {
		t.Errorf("Expected latest value, got %q (found=%v)", value, found)
	}
}
