package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/animalia/internal/httpkit"
)

// Reconnect backoff bounds.
const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = time.Minute
)

// errDisconnect means Slack asked us to reconnect.
var errDisconnect = errors.New("slack requested disconnect")

// SocketConfig configures a SocketClient.
type SocketConfig struct {
	// AppToken is the app-level token (xapp-...) with connections:write.
	AppToken string

	// APIURL overrides DefaultAPIURL.
	APIURL string

	Logger     *slog.Logger
	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// SocketClient receives Events API payloads over a Socket Mode
// websocket, acknowledging each envelope as it arrives.
type SocketClient struct {
	appToken   string
	apiURL     string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	events chan Event
}

// NewSocketClient creates a Socket Mode client. Call Run to connect.
func NewSocketClient(cfg SocketConfig) *SocketClient {
	c := &SocketClient{
		appToken:   cfg.AppToken,
		apiURL:     cfg.APIURL,
		dialer:     cfg.Dialer,
		logger:     cfg.Logger,
		minBackoff: cfg.MinBackoff,
		maxBackoff: cfg.MaxBackoff,
		events:     make(chan Event, 64),
	}
	if c.apiURL == "" {
		c.apiURL = DefaultAPIURL
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	}
	if c.minBackoff <= 0 {
		c.minBackoff = defaultMinBackoff
	}
	if c.maxBackoff < c.minBackoff {
		c.maxBackoff = max(defaultMaxBackoff, c.minBackoff)
	}
	c.httpClient = httpkit.NewClient(httpkit.WithLogger(c.logger), httpkit.WithRetry(2, time.Second))
	return c
}

// Events returns the channel of received events. It is closed when Run
// returns.
func (c *SocketClient) Events() <-chan Event {
	return c.events
}

// Run connects and keeps the connection alive until ctx is cancelled,
// reconnecting with exponential backoff after errors and immediately
// after a disconnect on a connection that had said hello.
func (c *SocketClient) Run(ctx context.Context) error {
	defer close(c.events)

	backoff := c.minBackoff
	for {
		connected, err := c.connectAndServe(ctx)
		if ctx.Err() != nil {
			c.logger.Info("slack socket mode stopped")
			return nil
		}
		if connected {
			backoff = c.minBackoff
		}
		if connected && errors.Is(err, errDisconnect) {
			continue
		}

		c.logger.Warn("slack socket connection lost", "error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

// openConnection asks the Web API for a fresh websocket URL.
func (c *SocketClient) openConnection(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := call(ctx, c.httpClient, c.apiURL, c.appToken, "apps.connections.open", struct{}{}, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("apps.connections.open returned no url")
	}
	return out.URL, nil
}

// connectAndServe runs one connection. connected reports whether the
// hello frame arrived, which resets the backoff.
func (c *SocketClient) connectAndServe(ctx context.Context) (connected bool, err error) {
	wsURL, err := c.openConnection(ctx)
	if err != nil {
		return false, fmt.Errorf("open connection: %w", err)
	}

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial websocket: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return connected, errDisconnect
			}
			return connected, fmt.Errorf("read: %w", err)
		}

		if env.EnvelopeID != "" {
			if err := conn.WriteJSON(map[string]string{"envelope_id": env.EnvelopeID}); err != nil {
				return connected, fmt.Errorf("ack %s: %w", env.EnvelopeID, err)
			}
		}

		switch env.Type {
		case envelopeHello:
			connected = true
			c.logger.Info("slack socket mode connected")

		case envelopeDisconnect:
			c.logger.Info("slack requested reconnect", "reason", env.Reason)
			return connected, errDisconnect

		case envelopeEventsAPI:
			var payload eventsAPIPayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				c.logger.Warn("slack events payload undecodable", "envelope_id", env.EnvelopeID, "error", err)
				continue
			}
			ev := payload.Event
			ev.EventID = payload.EventID
			c.logger.Debug("slack event received",
				"type", ev.Type,
				"event_id", ev.EventID,
				"retry_attempt", env.RetryAttempt,
			)
			select {
			case c.events <- ev:
			case <-ctx.Done():
				return connected, ctx.Err()
			}

		default:
			c.logger.Debug("unhandled socket mode envelope", "type", env.Type)
		}
	}
}
