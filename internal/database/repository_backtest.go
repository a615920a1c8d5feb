package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trading-dashboard/internal/market"
)

// BacktestRecord is one row of backtest_history. The full upstream result is
// kept in the result_data column; the summary columns exist for querying.
type BacktestRecord struct {
	ID        int64                 `json:"id"`
	Symbol    string                `json:"symbol"`
	Timeframe string                `json:"timeframe"`
	Result    market.BacktestResult `json:"result"`
	CreatedAt time.Time             `json:"created_at"`
}

// nullable maps an invalid Number to SQL NULL
func nullable(n market.Number) interface{} {
	if !n.Valid {
		return nil
	}
	return n.Value
}

// SaveBacktestResult inserts a record and returns its id
func (r *Repository) SaveBacktestResult(ctx context.Context, rec *BacktestRecord) (int64, error) {
	res := rec.Result

	resultData, err := json.Marshal(res)
	if err != nil {
		return 0, fmt.Errorf("failed to encode result data: %w", err)
	}

	var grades []byte
	if len(res.GradeDistribution) > 0 {
		grades, err = json.Marshal(res.GradeDistribution)
		if err != nil {
			return 0, fmt.Errorf("failed to encode grade distribution: %w", err)
		}
	}

	query := `
		INSERT INTO backtest_history (
			symbol, timeframe, strategy,
			initial_capital, final_capital, total_return, total_trades,
			win_rate, sharpe_ratio, max_drawdown, total_pips,
			grade_distribution, result_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		rec.Symbol, rec.Timeframe, res.Strategy,
		nullable(res.InitialCapital), nullable(res.FinalCapital), nullable(res.TotalReturn), res.TotalTrades,
		nullable(res.WinRate), nullable(res.SharpeRatio), nullable(res.MaxDrawdown), nullable(res.TotalPips),
		grades, resultData,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert backtest result: %w", err)
	}

	return rec.ID, nil
}

// GetRecentBacktestResults returns up to limit records, newest first
func (r *Repository) GetRecentBacktestResults(ctx context.Context, limit int) ([]BacktestRecord, error) {
	query := `
		SELECT id, symbol, timeframe, result_data, created_at
		FROM backtest_history
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest history: %w", err)
	}
	defer rows.Close()

	var records []BacktestRecord
	for rows.Next() {
		var rec BacktestRecord
		var data []byte
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.Timeframe, &data, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backtest history: %w", err)
		}
		if err := json.Unmarshal(data, &rec.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result data for id %d: %w", rec.ID, err)
		}
		rec.Result.ID = rec.ID
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate backtest history: %w", err)
	}
	return records, nil
}
