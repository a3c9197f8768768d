// Package deriv implements the market data vendor boundary: a WebSocket
// JSON client delivering live tick subscriptions and windowed tick
// history.
package deriv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/agentictrader/marketdata/internal/models"
)

const (
	// DefaultEndpoint is the vendor's public WebSocket endpoint.
	DefaultEndpoint = "wss://ws.binaryws.com/websockets/v3"

	handshakeTimeout      = 5 * time.Second
	readTimeout           = 60 * time.Second
	writeTimeout          = 10 * time.Second
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Config holds vendor connection settings.
type Config struct {
	// AppID identifies the application to the vendor.
	AppID string

	// Endpoint is the WebSocket URL; empty means DefaultEndpoint.
	Endpoint string

	// RateLimitPerSecond caps outgoing requests (history fetches and
	// subscriptions). Zero disables the limit.
	RateLimitPerSecond float64
}

// Client talks the vendor's WebSocket JSON protocol. Each live
// subscription runs on its own connection with automatic reconnect, so a
// dropped symbol stream never stalls another.
type Client struct {
	cfg     Config
	logger  *logrus.Logger
	limiter *rate.Limiter
}

// NewClient creates a vendor client.
func NewClient(cfg Config, logger *logrus.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	var limiter *rate.Limiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), 1)
	}
	return &Client{cfg: cfg, logger: logger, limiter: limiter}
}

// SubscribeTicks starts a live tick stream for the symbol. Ticks are
// delivered on the returned channel until ctx is cancelled, at which point
// the channel is closed. Connection drops are retried with exponential
// backoff and the subscription is re-established.
func (c *Client) SubscribeTicks(ctx context.Context, symbol string) <-chan models.Tick {
	ticks := make(chan models.Tick, 64)

	go func() {
		defer close(ticks)

		reconnectDelay := initialReconnectDelay
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			err := c.streamTicks(ctx, symbol, ticks)
			if err == nil || ctx.Err() != nil {
				return
			}

			c.logger.WithFields(logrus.Fields{
				"symbol": symbol,
				"error":  err,
				"delay":  reconnectDelay,
			}).Error("Tick stream lost, reconnecting")

			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			if reconnectDelay < maxReconnectDelay {
				reconnectDelay *= 2
				if reconnectDelay > maxReconnectDelay {
					reconnectDelay = maxReconnectDelay
				}
			}
		}
	}()

	return ticks
}

// streamTicks runs one connection lifecycle: dial, subscribe, read until
// the connection fails or ctx is cancelled.
func (c *Client) streamTicks(ctx context.Context, symbol string, ticks chan<- models.Tick) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// The watcher lives only as long as this connection; done stops it
	// from outliving a failed connection across reconnects.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := c.send(ctx, conn, map[string]interface{}{"ticks": symbol, "subscribe": 1}); err != nil {
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		tick, err := parseTickFrame(raw)
		if err != nil {
			c.logger.WithFields(logrus.Fields{"symbol": symbol, "error": err}).Debug("Skipping frame")
			continue
		}
		if tick == nil {
			continue
		}

		select {
		case ticks <- *tick:
		case <-ctx.Done():
			return nil
		}
	}
}

// GetTickHistory fetches a window of historical ticks. The request runs on
// a dedicated short-lived connection.
func (c *Client) GetTickHistory(ctx context.Context, req models.TickHistoryRequest) (*models.TickHistoryResponse, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	payload := map[string]interface{}{
		"ticks_history": req.Symbol,
		"start":         req.Start.Unix(),
		"end":           req.End.Unix(),
		"style":         styleOrDefault(req.Style),
	}
	if req.Count > 0 {
		payload["count"] = req.Count
	}
	if req.AdjustStartTime {
		payload["adjust_start_time"] = 1
	}

	if err := c.send(ctx, conn, payload); err != nil {
		return nil, fmt.Errorf("ticks_history %s: %w", req.Symbol, err)
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("ticks_history %s: %w", req.Symbol, err)
	}

	return parseHistoryFrame(req.Symbol, raw)
}

// dial opens a connection to the vendor with the app id attached.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", c.cfg.Endpoint, err)
	}
	q := u.Query()
	q.Set("app_id", c.cfg.AppID)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}
	return conn, nil
}

// send rate-limits and writes one JSON request.
func (c *Client) send(ctx context.Context, conn *websocket.Conn, payload interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(payload)
}

func styleOrDefault(style string) string {
	if style == "" {
		return "ticks"
	}
	return style
}

// APIError is a vendor error frame.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type tickFrame struct {
	Error *APIError    `json:"error"`
	Tick  *tickPayload `json:"tick"`
}

type tickPayload struct {
	Symbol  string      `json:"symbol"`
	Epoch   int64       `json:"epoch"`
	Quote   json.Number `json:"quote"`
	PipSize int         `json:"pip_size"`
}

type historyFrame struct {
	Error   *APIError       `json:"error"`
	History *historyPayload `json:"history"`
	PipSize int             `json:"pip_size"`
}

type historyPayload struct {
	Times  []int64       `json:"times"`
	Prices []json.Number `json:"prices"`
}
