package dnse

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dnse-trading-bot/internal/market"
)

// ohlcTopicPrefix is the DNSE Lightspeed OHLC topic family. The full topic
// is <prefix>/<timeframe>/<symbol>.
const ohlcTopicPrefix = "plaintext/quotes/krx/mdds/v2/ohlc/stock"

// BarHandler receives each closed bar delivered by the transport.
type BarHandler func(bar market.Bar)

// StatusHandler receives connectivity transitions.
type StatusHandler func(connected bool)

// Adapter is the thin interface the pipeline sees of the market-data
// transport.
type Adapter interface {
	// Connect establishes the transport and subscribes to OHLC data for
	// the given symbols.
	Connect(ctx context.Context, symbols []string, timeframe string) error
	// Subscribe adds a symbol to the live subscription set.
	Subscribe(symbol string) error
	// Unsubscribe removes a symbol from the live subscription set.
	Unsubscribe(symbol string) error
	// IsConnected reports current transport state.
	IsConnected() bool
	// Close tears down the transport.
	Close()
}

// HistoryProvider is optionally implemented by adapters that can fetch
// historical bars for pipeline seeding.
type HistoryProvider interface {
	FetchHistory(ctx context.Context, symbol, timeframe string, limit int) ([]market.Bar, error)
}

// ohlcTopic builds the subscription topic for one symbol.
func ohlcTopic(timeframe, symbol string) string {
	return fmt.Sprintf("%s/%s/%s", ohlcTopicPrefix, timeframe, symbol)
}

// parseTopic extracts timeframe and symbol from an OHLC topic.
func parseTopic(topic string) (timeframe, symbol string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 8 {
		return "", "", false
	}
	return parts[len(parts)-2], parts[len(parts)-1], true
}

// rawBar matches the DNSE OHLC message. Fields arrive under either long or
// short names; timestamps as ISO-8601 or seconds since epoch.
type rawBar struct {
	Time   json.RawMessage `json:"time"`
	T      json.RawMessage `json:"t"`
	Open   json.RawMessage `json:"open"`
	O      json.RawMessage `json:"o"`
	High   json.RawMessage `json:"high"`
	H      json.RawMessage `json:"h"`
	Low    json.RawMessage `json:"low"`
	L      json.RawMessage `json:"l"`
	Close  json.RawMessage `json:"close"`
	C      json.RawMessage `json:"c"`
	Volume json.RawMessage `json:"volume"`
	V      json.RawMessage `json:"v"`
}

// ParseBar decodes one OHLC payload into a Bar. When rescale is set,
// prices arriving divided by 1000 (close below 1000 in a market trading in
// the tens of thousands) are multiplied back; the heuristic is opt-in per
// transport and never applied elsewhere.
func ParseBar(symbol, timeframe string, payload []byte, rescale bool) (market.Bar, error) {
	var raw rawBar
	if err := json.Unmarshal(payload, &raw); err != nil {
		return market.Bar{}, fmt.Errorf("decoding OHLC payload: %w", err)
	}

	ts, err := parseTimestamp(firstRaw(raw.Time, raw.T))
	if err != nil {
		return market.Bar{}, err
	}

	bar := market.Bar{
		Symbol:    symbol,
		Timeframe: timeframe,
		Timestamp: ts,
	}
	if bar.Open, err = parsePrice(firstRaw(raw.Open, raw.O)); err != nil {
		return market.Bar{}, fmt.Errorf("open: %w", err)
	}
	if bar.High, err = parsePrice(firstRaw(raw.High, raw.H)); err != nil {
		return market.Bar{}, fmt.Errorf("high: %w", err)
	}
	if bar.Low, err = parsePrice(firstRaw(raw.Low, raw.L)); err != nil {
		return market.Bar{}, fmt.Errorf("low: %w", err)
	}
	if bar.Close, err = parsePrice(firstRaw(raw.Close, raw.C)); err != nil {
		return market.Bar{}, fmt.Errorf("close: %w", err)
	}
	if bar.Volume, err = parsePrice(firstRaw(raw.Volume, raw.V)); err != nil {
		return market.Bar{}, fmt.Errorf("volume: %w", err)
	}

	if rescale && bar.Close < 1000 {
		bar.Open *= 1000
		bar.High *= 1000
		bar.Low *= 1000
		bar.Close *= 1000
	}
	return bar, nil
}

func firstRaw(candidates ...json.RawMessage) json.RawMessage {
	for _, c := range candidates {
		if len(c) > 0 && string(c) != "null" {
			return c
		}
	}
	return nil
}

func parsePrice(raw json.RawMessage) (float64, error) {
	if raw == nil {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.Float64()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	return 0, fmt.Errorf("unparseable numeric %q", string(raw))
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if raw == nil {
		return time.Now().UTC(), nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		sec, err := n.Float64()
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(int64(sec), 0).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", string(raw))
	}
	// Epoch seconds may also arrive as a decimal string.
	if sec, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(int64(sec), 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q: %w", s, err)
	}
	return ts.UTC(), nil
}
