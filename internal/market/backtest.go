package market

// BacktestParams are the user inputs of a backtest run.
type BacktestParams struct {
	Strategy       string  `json:"strategy"`
	InitialCapital float64 `json:"initial_capital"`
}

// BacktestRequest is the POST /api/backtest body sent upstream.
type BacktestRequest struct {
	Symbol         string  `json:"symbol"`
	Strategy       string  `json:"strategy"`
	InitialCapital float64 `json:"initial_capital"`
}

type GradeStats struct {
	Count    int    `json:"count"`
	Wins     int    `json:"wins"`
	TotalPnL Number `json:"total_pnl"`
	WinRate  Number `json:"win_rate"`
}

// BacktestResult is the outcome of a strategy replay on the analysis server.
type BacktestResult struct {
	ID                int64                 `json:"id,omitempty"`
	Symbol            string                `json:"symbol"`
	Strategy          string                `json:"strategy"`
	InitialCapital    Number                `json:"initial_capital"`
	FinalCapital      Number                `json:"final_capital"`
	TotalReturn       Number                `json:"total_return"`
	TotalTrades       int                   `json:"total_trades"`
	WinningTrades     int                   `json:"winning_trades"`
	LosingTrades      int                   `json:"losing_trades"`
	WinRate           Number                `json:"win_rate"`
	TotalPips         Number                `json:"total_pips"`
	TotalPnL          Number                `json:"total_pnl"`
	AvgWin            Number                `json:"avg_win"`
	AvgLoss           Number                `json:"avg_loss"`
	ProfitFactor      Number                `json:"profit_factor"`
	SharpeRatio       Number                `json:"sharpe_ratio"`
	MaxDrawdown       Number                `json:"max_drawdown"`
	GradeDistribution map[string]GradeStats `json:"grade_distribution,omitempty"`
	Timestamp         Timestamp             `json:"timestamp"`
}
