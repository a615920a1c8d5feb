package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trading-dashboard/internal/logging"
	"trading-dashboard/internal/market"
	"trading-dashboard/internal/metrics"
)

// Event names of the push channel.
const (
	EventSubscribe            = "subscribe"
	EventUnsubscribe          = "unsubscribe"
	EventRequestLiveNarration = "request_live_narration"
	EventAnalysisUpdate       = "analysis_update"
	EventLiveNarration        = "live_narration"
	EventConnected            = "connected"
	EventSubscribed           = "subscribed"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4 << 20
)

var ErrNotConnected = errors.New("push channel not connected")

// Envelope is the frame format in both directions, one per text message.
// It is plain JSON, not Socket.IO framing.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type subscribePayload struct {
	Symbol string `json:"symbol"`
}

type narrationRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

// Config holds the push channel connection settings.
type Config struct {
	URL              string
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = 500 * time.Millisecond
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 30 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
}

// Client keeps one websocket to the analysis server open, reconnecting with
// exponential backoff, and dispatches incoming events to the handlers.
// Handlers run on the read goroutine.
type Client struct {
	mu      sync.RWMutex
	writeMu sync.Mutex

	cfg       Config
	dialer    *websocket.Dialer
	conn      *websocket.Conn
	isRunning bool
	stopChan  chan struct{}
	done      chan struct{}

	onAnalysis  func(market.AnalysisUpdate)
	onNarration func(market.Narration)
	onStatus    func(connected bool)

	reconnects     int
	eventsReceived int64
	lastEventTime  time.Time

	log zerolog.Logger
}

func NewClient(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		log: logging.StreamContext(cfg.URL),
	}
}

func (c *Client) SetAnalysisHandler(fn func(market.AnalysisUpdate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAnalysis = fn
}

func (c *Client) SetNarrationHandler(fn func(market.Narration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNarration = fn
}

// SetStatusHandler registers the connect/disconnect callback
func (c *Client) SetStatusHandler(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// Start begins connecting in the background. It returns immediately.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.stopChan = make(chan struct{})
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.connect(ctx)

	c.log.Info().Msg("Push channel started")
	return nil
}

// Stop closes the connection and waits for the connect loop to exit
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return
	}
	c.isRunning = false
	close(c.stopChan)
	if c.conn != nil {
		c.conn.Close()
	}
	done := c.done
	c.mu.Unlock()

	<-done
	c.log.Info().Msg("Push channel stopped")
}

// IsRunning returns true if the client is running
func (c *Client) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isRunning
}

// IsConnected returns true while a websocket is open
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Emit sends one event. It fails fast with ErrNotConnected while the channel
// is down.
func (c *Client) Emit(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Subscribe asks for updates on topic
func (c *Client) Subscribe(topic string) error {
	return c.Emit(EventSubscribe, subscribePayload{Symbol: topic})
}

// Unsubscribe releases topic
func (c *Client) Unsubscribe(topic string) error {
	return c.Emit(EventUnsubscribe, subscribePayload{Symbol: topic})
}

// RequestLiveNarration asks the server to push a narration for sel
func (c *Client) RequestLiveNarration(sel market.Selection) error {
	return c.Emit(EventRequestLiveNarration, narrationRequest{Symbol: sel.Symbol, Timeframe: string(sel.Timeframe)})
}

// connect establishes the websocket, reconnecting until stopped
func (c *Client) connect(ctx context.Context) {
	defer close(c.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.ReconnectMin
	b.MaxInterval = c.cfg.ReconnectMax
	b.MaxElapsedTime = 0
	b.Reset()

	for c.IsRunning() {
		c.log.Debug().Msg("Connecting")

		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			wait := b.NextBackOff()
			c.log.Warn().Err(err).Dur("retry_in", wait).Msg("Connection failed")
			c.countReconnect()
			if !c.sleep(ctx, wait) {
				return
			}
			continue
		}
		conn.SetReadLimit(maxMessageSize)

		c.mu.Lock()
		if !c.isRunning {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()
		b.Reset()

		c.log.Info().Msg("Connected")
		c.notifyStatus(true)

		pingStop := make(chan struct{})
		go c.pingLoop(conn, pingStop)
		c.readLoop(conn)
		close(pingStop)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		c.notifyStatus(false)

		if !c.IsRunning() {
			return
		}

		wait := b.NextBackOff()
		c.log.Warn().Dur("retry_in", wait).Msg("Connection lost, reconnecting")
		c.countReconnect()
		if !c.sleep(ctx, wait) {
			return
		}
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-c.stopChan:
		return false
	}
}

func (c *Client) countReconnect() {
	c.mu.Lock()
	c.reconnects++
	c.mu.Unlock()
	metrics.StreamReconnects.Inc()
}

func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Debug().Err(err).Msg("Ping failed")
				return
			}
		case <-stop:
			return
		}
	}
}

// readLoop reads messages from the websocket
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info().Msg("Connection closed normally")
			} else if c.IsRunning() {
				c.log.Warn().Err(err).Msg("Read error")
			}
			return
		}

		c.handleMessage(message)
	}
}

// handleMessage decodes one frame and dispatches it. Undecodable frames are
// logged and dropped.
func (c *Client) handleMessage(message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.log.Warn().Err(err).Msg("Failed to parse envelope")
		return
	}

	c.mu.Lock()
	c.eventsReceived++
	c.lastEventTime = time.Now()
	onAnalysis, onNarration := c.onAnalysis, c.onNarration
	c.mu.Unlock()
	metrics.PushEvents.WithLabelValues(env.Event).Inc()

	switch env.Event {
	case EventAnalysisUpdate:
		var u market.AnalysisUpdate
		if err := json.Unmarshal(env.Data, &u); err != nil {
			c.log.Warn().Err(err).Msg("Failed to parse analysis_update")
			return
		}
		if onAnalysis != nil {
			onAnalysis(u)
		}

	case EventLiveNarration:
		var n market.Narration
		if err := json.Unmarshal(env.Data, &n); err != nil {
			c.log.Warn().Err(err).Msg("Failed to parse live_narration")
			return
		}
		if onNarration != nil {
			onNarration(n)
		}

	case EventConnected, EventSubscribed:
		c.log.Debug().Str("event", env.Event).RawJSON("data", nonEmpty(env.Data)).Msg("Server acknowledged")

	default:
		c.log.Debug().Str("event", env.Event).Msg("Unknown event type")
	}
}

func (c *Client) notifyStatus(connected bool) {
	c.mu.RLock()
	fn := c.onStatus
	c.mu.RUnlock()
	if fn != nil {
		fn(connected)
	}
}

func nonEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}

// GetStats returns stream statistics
func (c *Client) GetStats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	last := ""
	if !c.lastEventTime.IsZero() {
		last = c.lastEventTime.Format(time.RFC3339)
	}
	return map[string]interface{}{
		"running":         c.isRunning,
		"connected":       c.conn != nil,
		"reconnects":      c.reconnects,
		"events_received": c.eventsReceived,
		"last_event":      last,
	}
}
