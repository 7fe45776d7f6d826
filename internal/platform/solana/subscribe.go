package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Reconnect backoff bounds for the subscription loop.
const (
	subscribeBackoffMin = time.Second
	subscribeBackoffMax = 30 * time.Second
)

// wsNotification is the envelope of a subscription push message. Subscription
// confirmations carry a numeric result instead of a method and are ignored.
type wsNotification struct {
	Method string `json:"method"`
}

// SubscribeAccount opens an accountSubscribe websocket subscription on the
// given address and returns a channel that receives a signal whenever the
// account changes on chain. The signal carries no payload; callers react by
// running their own read of the chain. Dropped connections are redialed with
// exponential backoff, and changes missed while reconnecting are the caller's
// periodic poll to pick up. The channel is closed when ctx ends.
func (c *Client) SubscribeAccount(ctx context.Context, address string) (<-chan struct{}, error) {
	wsURL, err := wsEndpoint(c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("solana: subscribe %s: %w", address, err)
	}

	signals := make(chan struct{}, 1)
	go c.subscribeLoop(ctx, wsURL, address, signals)
	return signals, nil
}

// subscribeLoop keeps one subscription connection alive until ctx ends.
func (c *Client) subscribeLoop(ctx context.Context, wsURL, address string, signals chan<- struct{}) {
	defer close(signals)

	backoff := subscribeBackoffMin
	for {
		if ctx.Err() != nil {
			return
		}

		err := c.runSubscription(ctx, wsURL, address, signals)
		if ctx.Err() != nil {
			return
		}

		slog.Warn("account subscription dropped, reconnecting",
			slog.String("address", address),
			slog.Duration("retry_in", backoff),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, subscribeBackoffMax)
	}
}

// runSubscription dials the websocket endpoint, issues the accountSubscribe
// request, and forwards every accountNotification as a signal until the
// connection breaks or ctx ends.
func (c *Client) runSubscription(ctx context.Context, wsURL, address string, signals chan<- struct{}) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	// Unblock ReadMessage when ctx ends mid-read.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	sub := rpcRequest{
		Jsonrpc: "2.0",
		ID:      c.reqID.Add(1),
		Method:  "accountSubscribe",
		Params: []any{
			address,
			map[string]any{
				"encoding":   "base64",
				"commitment": c.commitment,
			},
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe request: %w", err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read notification: %w", err)
		}

		var note wsNotification
		if err := json.Unmarshal(msg, &note); err != nil {
			continue
		}
		if note.Method != "accountNotification" {
			continue
		}

		// Signals coalesce: one pending signal is enough to trigger a pass.
		select {
		case signals <- struct{}{}:
		default:
		}
	}
}

// wsEndpoint derives the websocket URL from the HTTP RPC endpoint. Solana
// nodes serve the pub/sub API on the same host with the ws scheme.
func wsEndpoint(rpcURL string) (string, error) {
	u, err := url.Parse(rpcURL)
	if err != nil {
		return "", fmt.Errorf("parse rpc url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported rpc url scheme %q", u.Scheme)
	}
	return u.String(), nil
}
