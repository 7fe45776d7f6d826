package solana

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWsEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://localhost:8899", want: "ws://localhost:8899"},
		{in: "https://api.mainnet-beta.solana.com", want: "wss://api.mainnet-beta.solana.com"},
		{in: "wss://node.example.com/rpc", want: "wss://node.example.com/rpc"},
		{in: "ftp://node.example.com", wantErr: true},
	}

	for _, tc := range tests {
		got, err := wsEndpoint(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestSubscribeAccountSignalsOnNotification(t *testing.T) {
	const address = "Wallet1111111111111111111111111"

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		assert.Equal(t, "accountSubscribe", req.Method)
		if assert.NotEmpty(t, req.Params) {
			assert.Equal(t, address, req.Params[0])
		}

		_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": 42})
		_ = conn.WriteJSON(map[string]any{
			"jsonrpc": "2.0",
			"method":  "accountNotification",
			"params":  map[string]any{"subscription": 42},
		})

		// Hold the connection open until the client drops it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewClient(srv.URL, "confirmed")
	signals, err := c.SubscribeAccount(ctx, address)
	require.NoError(t, err)

	select {
	case <-signals:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an account change signal")
	}

	cancel()
	select {
	case _, ok := <-signals:
		assert.False(t, ok, "signal channel closes when the context ends")
	case <-time.After(2 * time.Second):
		t.Fatal("signal channel still open after cancel")
	}
}

func TestSubscribeAccountRejectsBadEndpoint(t *testing.T) {
	c := NewClient("ftp://node.example.com", "confirmed")
	_, err := c.SubscribeAccount(context.Background(), "Wallet1111111111111111111111111")
	require.Error(t, err)
}
