package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dnse-trading-bot/internal/market"
)

// timeLayouts are the accepted timestamp formats in CSV exports.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
	time.RFC3339,
}

// LoadBarsCSV reads historical bars from a CSV export. The header must
// name a time column (time, date or datetime) and open/high/low/close
// columns; volume is optional. Rows that fail to parse or violate the
// OHLC invariant are skipped.
func LoadBarsCSV(path, symbol, timeframe string) ([]market.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	timeCol, ok := firstColumn(cols, "time", "date", "datetime")
	if !ok {
		return nil, fmt.Errorf("no time column in %s", path)
	}

	var bars []market.Bar
	for {
		record, err := r.Read()
		if err != nil {
			break
		}

		ts, ok := parseCSVTime(record[timeCol])
		if !ok {
			continue
		}

		bar := market.Bar{Symbol: symbol, Timeframe: timeframe, Timestamp: ts}
		if bar.Open, ok = columnFloat(record, cols, "open"); !ok {
			continue
		}
		if bar.High, ok = columnFloat(record, cols, "high"); !ok {
			continue
		}
		if bar.Low, ok = columnFloat(record, cols, "low"); !ok {
			continue
		}
		if bar.Close, ok = columnFloat(record, cols, "close"); !ok {
			continue
		}
		bar.Volume, _ = columnFloat(record, cols, "volume")

		if err := bar.Validate(); err != nil {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func firstColumn(cols map[string]int, names ...string) (int, bool) {
	for _, name := range names {
		if i, ok := cols[name]; ok {
			return i, true
		}
	}
	return 0, false
}

func parseCSVTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func columnFloat(record []string, cols map[string]int, name string) (float64, bool) {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
