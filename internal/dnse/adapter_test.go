package dnse

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"dnse-trading-bot/internal/market"
)

// TestParseTopic tests OHLC topic decomposition
func TestParseTopic(t *testing.T) {
	tf, sym, ok := parseTopic("plaintext/quotes/krx/mdds/v2/ohlc/stock/1H/VNM")
	if !ok {
		t.Fatal("Valid topic should parse")
	}
	if tf != "1H" || sym != "VNM" {
		t.Errorf("Expected 1H/VNM, got %s/%s", tf, sym)
	}

	if _, _, ok := parseTopic("plaintext/quotes/short"); ok {
		t.Error("Short topic should not parse")
	}
}

// TestParseBarISO tests ISO-8601 timestamps and long field names
func TestParseBarISO(t *testing.T) {
	payload := []byte(`{
		"time": "2024-03-01T09:00:00Z",
		"open": 65000, "high": 65500, "low": 64800, "close": 65200, "volume": 120000
	}`)
	bar, err := ParseBar("VNM", "1H", payload, false)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if bar.Symbol != "VNM" || bar.Timeframe != "1H" {
		t.Errorf("Tagging wrong: %s/%s", bar.Symbol, bar.Timeframe)
	}
	want := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	if !bar.Timestamp.Equal(want) {
		t.Errorf("Expected %v, got %v", want, bar.Timestamp)
	}
	if bar.Open != 65000 || bar.Close != 65200 {
		t.Errorf("Prices wrong: %+v", bar)
	}
	if err := bar.Validate(); err != nil {
		t.Errorf("Parsed bar should be valid: %v", err)
	}
}

// TestParseBarEpochShortNames tests epoch timestamps and short field names
func TestParseBarEpochShortNames(t *testing.T) {
	payload := []byte(`{"t": 1709283600, "o": 65000, "h": 65500, "l": 64800, "c": 65200, "v": 120000}`)
	bar, err := ParseBar("FPT", "1H", payload, false)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if bar.Timestamp.Unix() != 1709283600 {
		t.Errorf("Expected epoch 1709283600, got %d", bar.Timestamp.Unix())
	}

	// Epoch as decimal string is also accepted.
	payload = []byte(`{"t": "1709283600", "o": 1, "h": 2, "l": 1, "c": 2, "v": 3}`)
	bar, err = ParseBar("FPT", "1H", payload, false)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if bar.Timestamp.Unix() != 1709283600 {
		t.Errorf("Expected epoch from string, got %d", bar.Timestamp.Unix())
	}
}

// TestParseBarRescale tests the opt-in divided-by-1000 heuristic
func TestParseBarRescale(t *testing.T) {
	payload := []byte(`{"t": 1709283600, "o": 65.0, "h": 65.5, "l": 64.8, "c": 65.2, "v": 120000}`)

	bar, err := ParseBar("VNM", "1H", payload, true)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if bar.Close != 65200 {
		t.Errorf("Rescaled close should be 65200, got %.2f", bar.Close)
	}
	if bar.Volume != 120000 {
		t.Errorf("Volume must not be rescaled, got %.2f", bar.Volume)
	}

	// Heuristic off: prices pass through untouched.
	bar, err = ParseBar("VNM", "1H", payload, false)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if bar.Close != 65.2 {
		t.Errorf("Close should pass through as 65.2, got %.2f", bar.Close)
	}

	// Prices already above 1000 are never touched.
	payload = []byte(`{"t": 1709283600, "o": 65000, "h": 65500, "l": 64800, "c": 65200, "v": 1}`)
	bar, err = ParseBar("VNM", "1H", payload, true)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if bar.Close != 65200 {
		t.Errorf("Full-scale close should stay 65200, got %.2f", bar.Close)
	}
}

// TestParseBarMalformed tests rejection of garbage payloads
func TestParseBarMalformed(t *testing.T) {
	if _, err := ParseBar("VNM", "1H", []byte(`not json`), false); err == nil {
		t.Error("Garbage payload should fail")
	}
	if _, err := ParseBar("VNM", "1H", []byte(`{"t": 1, "o": "abc"}`), false); err == nil {
		t.Error("Non-numeric price should fail")
	}
	if _, err := ParseBar("VNM", "1H", []byte(`{"time": {"bad": true}}`), false); err == nil {
		t.Error("Structured timestamp should fail")
	}
}

// TestMockAdapterEmitsValidBars tests the random-walk generator
func TestMockAdapterEmitsValidBars(t *testing.T) {
	bars := make(chan market.Bar, 100)
	statuses := make(chan bool, 2)

	mock := NewMockAdapter(10*time.Millisecond,
		func(bar market.Bar) { bars <- bar },
		func(connected bool) { statuses <- connected },
		zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mock.Connect(ctx, []string{"VNM", "FPT"}, "1H"); err != nil {
		t.Fatalf("Mock connect failed: %v", err)
	}
	defer mock.Close()

	if !<-statuses {
		t.Fatal("Connect should report connected")
	}
	if !mock.IsConnected() {
		t.Fatal("IsConnected should be true after connect")
	}

	for i := 0; i < 4; i++ {
		select {
		case bar := <-bars:
			if err := bar.Validate(); err != nil {
				t.Fatalf("Generated bar violates OHLC invariant: %v", err)
			}
			if bar.Timeframe != "1H" {
				t.Errorf("Expected timeframe 1H, got %q", bar.Timeframe)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for generated bars")
		}
	}
}

// TestMockAdapterHistory tests synthetic history for seeding
func TestMockAdapterHistory(t *testing.T) {
	mock := NewMockAdapter(time.Second, nil, nil, zerolog.Nop())

	bars, err := mock.FetchHistory(context.Background(), "VNM", "1H", 50)
	if err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}
	if len(bars) != 50 {
		t.Fatalf("Expected 50 bars, got %d", len(bars))
	}
	for i, bar := range bars {
		if err := bar.Validate(); err != nil {
			t.Fatalf("History bar %d invalid: %v", i, err)
		}
		if i > 0 && !bars[i-1].Timestamp.Before(bar.Timestamp) {
			t.Fatal("History must be chronological")
		}
	}
}
