package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Setting keys used by the service.
const (
	SettingWatchlist       = "watchlist"
	SettingDefaultQuantity = "default_quantity"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// BARS
// ============================================================================

// SaveBar upserts a bar keyed by (symbol, timeframe, timestamp). Re-arrival
// of the same key replaces the row.
func (r *Repository) SaveBar(ctx context.Context, bar *BarRow) error {
	query := `
		INSERT INTO bars (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, timeframe, timestamp)
		DO UPDATE SET open = $4, high = $5, low = $6, close = $7, volume = $8
	`
	_, err := r.db.Pool.Exec(ctx, query,
		bar.Symbol, bar.Timeframe, bar.Timestamp,
		bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
	)
	return err
}

// SaveBars upserts a batch of bars in one round trip.
func (r *Repository) SaveBars(ctx context.Context, bars []BarRow) error {
	if len(bars) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	query := `
		INSERT INTO bars (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, timeframe, timestamp)
		DO UPDATE SET open = $4, high = $5, low = $6, close = $7, volume = $8
	`
	for _, bar := range bars {
		batch.Queue(query,
			bar.Symbol, bar.Timeframe, bar.Timestamp,
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
		)
	}
	results := r.db.Pool.SendBatch(ctx, batch)
	defer results.Close()
	for range bars {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch bar upsert: %w", err)
		}
	}
	return nil
}

// GetBars returns the last limit bars for the symbol/timeframe in
// chronological order.
func (r *Repository) GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]BarRow, error) {
	query := `
		SELECT symbol, timeframe, timestamp, open, high, low, close, volume
		FROM bars
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY timestamp DESC
		LIMIT $3
	`
	rows, err := r.db.Pool.Query(ctx, query, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []BarRow
	for rows.Next() {
		var b BarRow
		if err := rows.Scan(&b.Symbol, &b.Timeframe, &b.Timestamp,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the index scan, flip to chronological.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// ============================================================================
// SIGNALS
// ============================================================================

// SaveSignal appends a signal and fills in its store-assigned id.
func (r *Repository) SaveSignal(ctx context.Context, sig *SignalRow) error {
	query := `
		INSERT INTO signals (symbol, signal_type, timestamp, entry, stop_loss,
		                     take_profit, quantity, status, reason, original_sl)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	return r.db.Pool.QueryRow(ctx, query,
		sig.Symbol, sig.Type, sig.Timestamp, sig.Entry, sig.StopLoss,
		sig.TakeProfit, sig.Quantity, sig.Status, sig.Reason, sig.OriginalSL,
	).Scan(&sig.ID)
}

// UpdateSignal mutates status and stop-loss only; everything else on a
// stored signal is immutable.
func (r *Repository) UpdateSignal(ctx context.Context, id int64, status string, stopLoss float64) error {
	query := `UPDATE signals SET status = $2, stop_loss = $3 WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, status, stopLoss)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("signal %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetSignalByID retrieves one signal.
func (r *Repository) GetSignalByID(ctx context.Context, id int64) (*SignalRow, error) {
	query := signalSelect + ` WHERE id = $1`
	sig, err := scanSignal(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("signal %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return sig, nil
}

// GetSignals returns the most recent signals, optionally filtered by
// symbol, newest first.
func (r *Repository) GetSignals(ctx context.Context, symbol string, limit int) ([]SignalRow, error) {
	var (
		query string
		args  []interface{}
	)
	if symbol != "" {
		query = signalSelect + ` WHERE symbol = $1 ORDER BY timestamp DESC, id DESC LIMIT $2`
		args = []interface{}{symbol, limit}
	} else {
		query = signalSelect + ` ORDER BY timestamp DESC, id DESC LIMIT $1`
		args = []interface{}{limit}
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSignals(rows)
}

// GetOpenSignals returns ACTIVE and BREAKEVEN signals for the symbol in
// insertion order.
func (r *Repository) GetOpenSignals(ctx context.Context, symbol string) ([]SignalRow, error) {
	query := signalSelect + ` WHERE symbol = $1 AND status IN ('ACTIVE', 'BREAKEVEN') ORDER BY id`
	rows, err := r.db.Pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSignals(rows)
}

const signalSelect = `
	SELECT id, symbol, signal_type, timestamp, entry, stop_loss,
	       take_profit, quantity, status, reason, original_sl
	FROM signals`

func scanSignal(row pgx.Row) (*SignalRow, error) {
	var s SignalRow
	err := row.Scan(&s.ID, &s.Symbol, &s.Type, &s.Timestamp, &s.Entry, &s.StopLoss,
		&s.TakeProfit, &s.Quantity, &s.Status, &s.Reason, &s.OriginalSL)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSignals(rows pgx.Rows) ([]SignalRow, error) {
	var out []SignalRow
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sig)
	}
	return out, rows.Err()
}

// ============================================================================
// SETTINGS
// ============================================================================

// SaveSetting upserts a settings key, last writer wins.
func (r *Repository) SaveSetting(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = now()
	`
	_, err := r.db.Pool.Exec(ctx, query, key, value)
	return err
}

// GetSetting returns a settings value. The boolean reports presence.
func (r *Repository) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.Pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// GetWatchlist reads the persisted watchlist, nil if never saved.
func (r *Repository) GetWatchlist(ctx context.Context) ([]string, error) {
	raw, ok, err := r.GetSetting(ctx, SettingWatchlist)
	if err != nil || !ok {
		return nil, err
	}
	var symbols []string
	if err := json.Unmarshal([]byte(raw), &symbols); err != nil {
		return nil, fmt.Errorf("decoding watchlist setting: %w", err)
	}
	return symbols, nil
}

// SaveWatchlist persists the watchlist as a JSON list.
func (r *Repository) SaveWatchlist(ctx context.Context, symbols []string) error {
	raw, err := json.Marshal(symbols)
	if err != nil {
		return err
	}
	return r.SaveSetting(ctx, SettingWatchlist, string(raw))
}

// GetDefaultQuantity reads the persisted default quantity, 0 if unset.
func (r *Repository) GetDefaultQuantity(ctx context.Context) (int, error) {
	raw, ok, err := r.GetSetting(ctx, SettingDefaultQuantity)
	if err != nil || !ok {
		return 0, err
	}
	qty, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("decoding default_quantity setting: %w", err)
	}
	return qty, nil
}

// SaveDefaultQuantity persists the default quantity.
func (r *Repository) SaveDefaultQuantity(ctx context.Context, qty int) error {
	return r.SaveSetting(ctx, SettingDefaultQuantity, strconv.Itoa(qty))
}
