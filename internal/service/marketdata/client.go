package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"BarPilot/internal/domain/models"
	drepo "BarPilot/internal/domain/repository"
	xlogger "BarPilot/pkg/logger"
)

// Client is a market-quality stream over WebSocket. The venue-side feed
// publishes per-symbol quote/liquidity updates; the client keeps only the
// latest state per symbol and stamps its age at read time, which is what
// the staleness guard keys off.
type Client struct {
	url            string
	apiKey         string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *xlogger.Logger

	conn      *websocket.Conn
	connected bool

	mu     sync.RWMutex
	latest map[string]stamped
}

type stamped struct {
	state     models.MarketState
	updatedAt time.Time
	fundingAt time.Time
}

// update is the wire shape of one feed message.
type update struct {
	Type           string  `json:"type"` // "quote" | "funding"
	Symbol         string  `json:"symbol"`
	Mid            float64 `json:"mid"`
	SpreadBps      float64 `json:"spread_bps"`
	RealizedVol    float64 `json:"realized_vol"`
	LiquidityScore float64 `json:"liquidity_score"`
	ADVUSD         float64 `json:"adv_usd"`
}

func New(url, apiKey string, symbols []string, reconnectDelay, pingInterval time.Duration, log *xlogger.Logger) *Client {
	return &Client{
		url: url, apiKey: apiKey, symbols: symbols,
		reconnectDelay: reconnectDelay, pingInterval: pingInterval,
		log:    log,
		latest: make(map[string]stamped),
	}
}

// Connect dials the feed, subscribes the configured symbols, and starts
// the read loop. The loop reconnects on its own after read failures.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	go c.readLoop(ctx)
	go c.pingLoop(ctx)
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	u := c.url
	if c.apiKey != "" {
		u = fmt.Sprintf("%s?token=%s", c.url, c.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("market data connect: %w", err)
	}
	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("market data connected", xlogger.Int("symbols", len(c.symbols)))
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			c.log.Warn("market data read failed, reconnecting", xlogger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.reconnectDelay):
			}
			if derr := c.dial(ctx); derr != nil {
				c.log.Error("market data reconnect failed", xlogger.Error(derr))
			}
			continue
		}

		var u update
		if err := json.Unmarshal(raw, &u); err != nil || u.Symbol == "" {
			continue
		}
		c.apply(u)
	}
}

func (c *Client) apply(u update) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.latest[u.Symbol]
	switch u.Type {
	case "funding":
		cur.fundingAt = now
	default:
		cur.state = models.MarketState{
			Symbol:         u.Symbol,
			MidPrice:       u.Mid,
			SpreadBps:      u.SpreadBps,
			RealizedVol:    u.RealizedVol,
			LiquidityScore: u.LiquidityScore,
			ADVUSD:         u.ADVUSD,
		}
		cur.updatedAt = now
		if cur.fundingAt.IsZero() {
			cur.fundingAt = now
		}
	}
	c.latest[u.Symbol] = cur
}

func (c *Client) pingLoop(ctx context.Context) {
	if c.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			conn, ok := c.conn, c.connected
			c.mu.RUnlock()
			if ok && conn != nil {
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

// State returns the latest market state for symbol with ages stamped at
// call time. A symbol that has never ticked reports an error, not a
// zero-aged empty state.
func (c *Client) State(_ context.Context, symbol string) (*models.MarketState, error) {
	c.mu.RLock()
	cur, ok := c.latest[symbol]
	c.mu.RUnlock()
	if !ok || cur.updatedAt.IsZero() {
		return nil, fmt.Errorf("no market data for %s", symbol)
	}
	ms := cur.state
	ms.DataAge = time.Since(cur.updatedAt)
	ms.FundingAge = time.Since(cur.fundingAt)
	return &ms, nil
}

// Health reports an error when the stream is down.
func (c *Client) Health(_ context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("market data stream disconnected")
	}
	return nil
}

// IsConnected reports the connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

var _ drepo.MarketData = (*Client)(nil)
