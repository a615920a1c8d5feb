package market

// Pair is one instrument offered by the analysis server.
type Pair struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Strategy is one backtest strategy offered by the analysis server.
type Strategy struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
