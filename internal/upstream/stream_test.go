package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestStream_SubscribeAndNotify(t *testing.T) {
	subscribed := make(chan []string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "secret" {
			t.Errorf("token not forwarded: %s", r.URL.RawQuery)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Method != "subscribe_account" {
			t.Errorf("expected subscribe_account, got %s", req.Method)
		}
		subscribed <- req.Params

		conn.WriteJSON(map[string]any{"id": req.ID, "jsonrpc": "2.0", "result": "success! 2 new subscriptions created"})
		conn.WriteJSON(map[string]any{
			"jsonrpc": "2.0",
			"method":  "account_transaction",
			"params":  map[string]any{"account_id": "0:abc", "lt": 48000000000001, "tx_hash": "ff00"},
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	stream, err := NewStream(wsURL, "secret", nil, nil)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan TxNotification, 1)
	done := make(chan error, 1)
	go func() {
		done <- stream.Run(ctx, func() []string { return []string{"EQa", "EQb"} }, func(n TxNotification) {
			select {
			case got <- n:
			default:
			}
		})
	}()

	select {
	case accts := <-subscribed:
		if len(accts) != 2 {
			t.Errorf("expected 2 accounts, got %v", accts)
		}
	case <-ctx.Done():
		t.Fatal("no subscription received")
	}

	select {
	case n := <-got:
		if n.Account != "0:abc" || n.Lt != 48000000000001 || n.TxHash != "ff00" {
			t.Errorf("unexpected notification: %+v", n)
		}
	case <-ctx.Done():
		t.Fatal("no notification received")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStream_ReconnectsAfterDrop(t *testing.T) {
	connections := make(chan struct{}, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connections <- struct{}{}
		// Drop immediately after the subscribe request
		conn.ReadMessage()
		conn.Close()
	}))
	defer server.Close()

	cfg := DefaultStreamConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 20 * time.Millisecond

	stream, err := NewStream("ws"+strings.TrimPrefix(server.URL, "http"), "", &cfg, nil)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go stream.Run(ctx, func() []string { return []string{"EQa"} }, func(TxNotification) {})

	for i := 0; i < 2; i++ {
		select {
		case <-connections:
		case <-ctx.Done():
			t.Fatalf("expected reconnect %d", i)
		}
	}
}
