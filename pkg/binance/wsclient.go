package binance

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// WSClient maintains one long-lived aggTrade stream session. On session
// loss it reconnects with bounded exponential backoff (1s doubling to a 30s
// cap) indefinitely, until the context is cancelled.
type WSClient struct {
	url         string
	key         string // symbol key used in logs, e.g. "BTCUSDT_spot"
	dialer      *websocket.Dialer
	handler     func([]byte)
	onReconnect func()
	logger      *zap.Logger
}

// NewWSClient creates a WebSocket client for one stream URL. proxyURL may be
// empty; when set, all dials go through it.
func NewWSClient(streamURL, key, proxyURL string, handshakeTimeout time.Duration, logger *zap.Logger) (*WSClient, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		dialer.Proxy = http.ProxyURL(u)
	}

	return &WSClient{
		url:    streamURL,
		key:    key,
		dialer: dialer,
		logger: logger,
	}, nil
}

// SetMessageHandler sets the function to handle incoming messages.
func (c *WSClient) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// SetReconnectHook sets a function invoked once per reconnect attempt.
func (c *WSClient) SetReconnectHook(h func()) {
	c.onReconnect = h
}

// Run connects and reads until ctx is cancelled. Session drops are never
// fatal; the loop backs off and redials. Run returns only on cancellation.
func (c *WSClient) Run(ctx context.Context) {
	delay := initialReconnectDelay
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		if attempt > 0 {
			if c.onReconnect != nil {
				c.onReconnect()
			}
			c.logger.Info("reconnecting",
				zap.String("symbol", c.key),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
		}
		attempt++

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.logger.Warn("WebSocket dial failed",
				zap.String("symbol", c.key),
				zap.String("url", c.url),
				zap.Error(err))
			continue
		}
		c.logger.Info("WebSocket connected",
			zap.String("symbol", c.key),
			zap.String("url", c.url))

		// Connection established; backoff restarts from scratch on the
		// next drop.
		delay = initialReconnectDelay

		c.readLoop(ctx, conn)
		_ = conn.Close()
	}
}

// readLoop reads messages until the connection errors or ctx is cancelled.
// A goroutine watches ctx and closes the connection to unblock ReadMessage.
func (c *WSClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-closed:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("WebSocket read error",
					zap.String("symbol", c.key),
					zap.Error(err))
			}
			return
		}
		if c.handler != nil {
			c.handler(msg)
		}
	}
}
