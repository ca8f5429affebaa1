package database

import (
	"time"

	"dnse-trading-bot/internal/market"
)

// BarRow mirrors one row of the bars table.
type BarRow struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// BarRowFrom converts a domain bar to its row form.
func BarRowFrom(bar market.Bar) BarRow {
	return BarRow(bar)
}

// Bar converts the row back to the domain type.
func (b BarRow) Bar() market.Bar {
	return market.Bar(b)
}

// SignalRow mirrors one row of the signals table.
type SignalRow struct {
	ID         int64     `json:"id"`
	Symbol     string    `json:"symbol"`
	Type       string    `json:"signal_type"`
	Timestamp  time.Time `json:"timestamp"`
	Entry      float64   `json:"entry"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Quantity   int       `json:"quantity"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason"`
	OriginalSL float64   `json:"original_sl"`
}

// SignalRowFrom converts a domain signal to its row form.
func SignalRowFrom(sig market.Signal) SignalRow {
	return SignalRow{
		ID:         sig.ID,
		Symbol:     sig.Symbol,
		Type:       string(sig.Type),
		Timestamp:  sig.Timestamp,
		Entry:      sig.Entry,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Quantity:   sig.Quantity,
		Status:     string(sig.Status),
		Reason:     sig.Reason,
		OriginalSL: sig.OriginalSL,
	}
}

// Signal converts the row back to the domain type.
func (s SignalRow) Signal() market.Signal {
	return market.Signal{
		ID:         s.ID,
		Symbol:     s.Symbol,
		Type:       market.SignalType(s.Type),
		Timestamp:  s.Timestamp,
		Entry:      s.Entry,
		StopLoss:   s.StopLoss,
		TakeProfit: s.TakeProfit,
		Quantity:   s.Quantity,
		Status:     market.SignalStatus(s.Status),
		Reason:     s.Reason,
		OriginalSL: s.OriginalSL,
	}
}
