package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"trading-dashboard/internal/circuit"
	"trading-dashboard/internal/logging"
	"trading-dashboard/internal/market"
	"trading-dashboard/internal/metrics"
)

var (
	ErrStatus      = errors.New("unexpected upstream status")
	ErrCircuitOpen = circuit.ErrOpen
)

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Config holds the analysis server connection settings
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Client talks to the analysis server REST API
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *retryablehttp.Client
	breaker    *circuit.CircuitBreaker
	log        zerolog.Logger
}

// NewClient builds a client. breaker may be nil.
func NewClient(cfg Config, breaker *circuit.CircuitBreaker) *Client {
	log := logging.WithComponent("upstream")

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	rc.Logger = leveledLogger{log: log}
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		httpClient: rc,
		breaker:    breaker,
		log:        log,
	}
}

type noRetryKey struct{}

// checkRetry applies the default policy except to requests marked by do as
// not idempotent, which are sent once. A backtest POST creates a run on the
// server every time it is received.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if once, _ := ctx.Value(noRetryKey{}).(bool); once {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, err
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// EncodeSymbol turns EUR/USD into EUR-USD for use in a path segment
func EncodeSymbol(symbol string) string {
	return url.PathEscape(strings.ReplaceAll(symbol, "/", "-"))
}

// MarketData fetches the most recent bars for sel, oldest first
func (c *Client) MarketData(ctx context.Context, sel market.Selection, limit int) ([]market.Bar, error) {
	params := url.Values{}
	params.Set("timeframe", string(sel.Timeframe))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	endpoint := fmt.Sprintf("/api/market-data/%s?%s", EncodeSymbol(sel.Symbol), params.Encode())

	var bars []market.Bar
	if err := c.do(ctx, "market_data", http.MethodGet, endpoint, nil, &bars); err != nil {
		return nil, fmt.Errorf("error fetching market data: %w", err)
	}
	return bars, nil
}

// Analysis fetches the full analysis snapshot for sel
func (c *Client) Analysis(ctx context.Context, sel market.Selection) (*market.AnalysisSnapshot, error) {
	params := url.Values{}
	params.Set("timeframe", string(sel.Timeframe))
	endpoint := fmt.Sprintf("/api/analysis/%s?%s", EncodeSymbol(sel.Symbol), params.Encode())

	var snap market.AnalysisSnapshot
	if err := c.do(ctx, "analysis", http.MethodGet, endpoint, nil, &snap); err != nil {
		return nil, fmt.Errorf("error fetching analysis: %w", err)
	}
	if snap.Symbol == "" {
		snap.Symbol = sel.Symbol
	}
	if snap.Timeframe == "" {
		snap.Timeframe = sel.Timeframe
	}
	return &snap, nil
}

// Backtest runs a strategy replay for symbol
func (c *Client) Backtest(ctx context.Context, symbol string, params market.BacktestParams) (*market.BacktestResult, error) {
	body := market.BacktestRequest{
		Symbol:         symbol,
		Strategy:       params.Strategy,
		InitialCapital: params.InitialCapital,
	}

	var result market.BacktestResult
	if err := c.do(ctx, "backtest", http.MethodPost, "/api/backtest", body, &result); err != nil {
		return nil, fmt.Errorf("error running backtest: %w", err)
	}
	if result.Symbol == "" {
		result.Symbol = symbol
	}
	if result.Strategy == "" {
		result.Strategy = params.Strategy
	}
	return &result, nil
}

// SupportedPairs lists the instruments the server can analyze
func (c *Client) SupportedPairs(ctx context.Context) ([]market.Pair, error) {
	var pairs []market.Pair
	if err := c.do(ctx, "supported_pairs", http.MethodGet, "/api/supported-pairs", nil, &pairs); err != nil {
		return nil, fmt.Errorf("error fetching supported pairs: %w", err)
	}
	return pairs, nil
}

// Strategies lists the backtest strategies
func (c *Client) Strategies(ctx context.Context) ([]market.Strategy, error) {
	var strategies []market.Strategy
	if err := c.do(ctx, "strategies", http.MethodGet, "/api/strategies", nil, &strategies); err != nil {
		return nil, fmt.Errorf("error fetching strategies: %w", err)
	}
	return strategies, nil
}

// BacktestHistory returns the results the server itself has stored, newest first
func (c *Client) BacktestHistory(ctx context.Context) ([]market.BacktestResult, error) {
	var results []market.BacktestResult
	if err := c.do(ctx, "backtest_results", http.MethodGet, "/api/backtest-results", nil, &results); err != nil {
		return nil, fmt.Errorf("error fetching backtest results: %w", err)
	}
	return results, nil
}

// do sends one request through the breaker and decodes a JSON response into out
func (c *Client) do(ctx context.Context, name, method, path string, body, out interface{}) (err error) {
	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			metrics.UpstreamLatency.WithLabelValues(name, "rejected").Observe(0)
			return err
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	transportOK := false
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.UpstreamLatency.WithLabelValues(name, result).Observe(time.Since(start).Seconds())
		if c.breaker == nil {
			return
		}
		if transportOK {
			c.breaker.RecordSuccess()
		} else {
			c.breaker.RecordFailure(err)
		}
	}()

	var raw interface{}
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			transportOK = true
			return fmt.Errorf("error encoding request: %w", err)
		}
		raw = buf
	}

	if method != http.MethodGet {
		ctx = context.WithValue(ctx, noRetryKey{}, true)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, raw)
	if err != nil {
		transportOK = true
		return fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := logging.TraceID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	// A 4xx means the server is up, so it does not count against the breaker.
	transportOK = resp.StatusCode < http.StatusInternalServerError

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(data)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return &StatusError{Endpoint: name, StatusCode: resp.StatusCode, Body: text}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error parsing %s: %w", name, err)
	}
	return nil
}

// leveledLogger routes retryablehttp logs through zerolog
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.emit(l.log.Error(), msg, kv) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.emit(l.log.Debug(), msg, kv) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.emit(l.log.Debug(), msg, kv) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.emit(l.log.Warn(), msg, kv) }

func (l leveledLogger) emit(e *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}
