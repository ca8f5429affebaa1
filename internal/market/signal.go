package market

import (
	"math"
	"time"
)

// SignalType represents the direction of a trading signal
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
)

// SignalStatus represents the lifecycle state of a signal
type SignalStatus string

const (
	StatusActive    SignalStatus = "ACTIVE"
	StatusTPHit     SignalStatus = "TP_HIT"
	StatusSLHit     SignalStatus = "SL_HIT"
	StatusBreakeven SignalStatus = "BREAKEVEN"
	StatusCancelled SignalStatus = "CANCELLED"
)

// Signal is a discrete trading recommendation with entry, stop and target.
// Created once by the signal engine and persisted with a store-assigned id;
// afterwards only exit logic may mutate it, and only status and stop-loss.
type Signal struct {
	ID         int64        `json:"id"`
	Symbol     string       `json:"symbol"`
	Type       SignalType   `json:"signal_type"`
	Timestamp  time.Time    `json:"timestamp"`
	Entry      float64      `json:"entry"`
	StopLoss   float64      `json:"stop_loss"`
	TakeProfit float64      `json:"take_profit"`
	Quantity   int          `json:"quantity"`
	Status     SignalStatus `json:"status"`
	Reason     string       `json:"reason"`
	OriginalSL float64      `json:"original_sl"`
}

// Risk returns the per-unit distance from entry to stop.
func (s Signal) Risk() float64 {
	return math.Abs(s.Entry - s.StopLoss)
}

// Reward returns the per-unit distance from entry to target.
func (s Signal) Reward() float64 {
	return math.Abs(s.TakeProfit - s.Entry)
}

// RiskReward returns reward divided by risk.
func (s Signal) RiskReward() float64 {
	risk := s.Risk()
	if risk == 0 {
		return 0
	}
	return s.Reward() / risk
}

// BreakevenPrice is the level at which the stop moves to entry: one full
// risk unit above entry for a BUY.
func (s Signal) BreakevenPrice() float64 {
	return s.Entry + s.Risk()
}

// IsOpen reports whether the signal still tracks a live position.
// BREAKEVEN means the stop has been moved, not that the position closed.
func (s Signal) IsOpen() bool {
	return s.Status == StatusActive || s.Status == StatusBreakeven
}
