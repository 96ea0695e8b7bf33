package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StreamConfig configures the TonAPI streaming client.
type StreamConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// ResubscribeInterval is how often newly tracked accounts are subscribed.
	ResubscribeInterval time.Duration
}

// DefaultStreamConfig returns default streaming configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:      1 * time.Second,
		MaxReconnectDelay:   30 * time.Second,
		PingInterval:        20 * time.Second,
		ReadTimeout:         60 * time.Second,
		WriteTimeout:        10 * time.Second,
		ResubscribeInterval: 30 * time.Second,
	}
}

// TxNotification announces a new transaction on a subscribed account.
type TxNotification struct {
	Account string
	Lt      uint64
	TxHash  string
}

// Stream subscribes to account transactions over the TonAPI websocket.
type Stream struct {
	endpoint  string
	config    StreamConfig
	logger    *zap.Logger
	requestID atomic.Uint64
}

// NewStream creates a streaming client. A non-empty token is sent as the
// token query parameter.
func NewStream(endpoint, token string, config *StreamConfig, logger *zap.Logger) (*Stream, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse stream endpoint: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	return &Stream{endpoint: u.String(), config: cfg, logger: logger.Named("stream")}, nil
}

// Run keeps a subscription to accounts() open and calls onTx for every
// transaction notification until ctx is done. Dropped connections are
// re-established with exponential backoff.
func (s *Stream) Run(ctx context.Context, accounts func() []string, onTx func(TxNotification)) error {
	delay := s.config.ReconnectDelay

	for {
		healthy, err := s.session(ctx, accounts, onTx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if healthy {
			// Reset delay after a session that received data
			delay = s.config.ReconnectDelay
		}
		s.logger.Warn("stream disconnected", zap.Error(err), zap.Duration("retry_in", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.config.MaxReconnectDelay {
			delay = s.config.MaxReconnectDelay
		}
	}
}

// session runs one connection. healthy reports whether any message arrived.
func (s *Stream) session(ctx context.Context, accounts func() []string, onTx func(TxNotification)) (healthy bool, err error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("websocket dial: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		conn.Close()
		wg.Wait()
	}()

	var writeMu sync.Mutex
	write := func(fn func() error) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		return fn()
	}

	subscribed := make(map[string]bool)
	subscribeNew := func() error {
		var fresh []string
		for _, a := range accounts() {
			if a != "" && !subscribed[a] {
				fresh = append(fresh, a)
			}
		}
		if len(fresh) == 0 {
			return nil
		}
		req := wsRequest{
			JSONRPC: "2.0",
			ID:      s.requestID.Add(1),
			Method:  "subscribe_account",
			Params:  fresh,
		}
		if err := write(func() error { return conn.WriteJSON(req) }); err != nil {
			return fmt.Errorf("write subscribe: %w", err)
		}
		for _, a := range fresh {
			subscribed[a] = true
		}
		s.logger.Debug("subscribed accounts", zap.Int("count", len(fresh)))
		return nil
	}

	if err := subscribeNew(); err != nil {
		return false, err
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		ping := time.NewTicker(s.config.PingInterval)
		defer ping.Stop()
		resub := time.NewTicker(s.config.ResubscribeInterval)
		defer resub.Stop()

		for {
			var err error
			select {
			case <-sctx.Done():
				write(func() error {
					return conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				})
				conn.Close()
				return
			case <-ping.C:
				err = write(func() error { return conn.WriteMessage(websocket.PingMessage, nil) })
			case <-resub.C:
				err = subscribeNew()
			}
			if err != nil {
				// Reader sees the closed connection and ends the session
				conn.Close()
				return
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return healthy, fmt.Errorf("websocket read: %w", err)
		}
		healthy = true
		s.handleMessage(message, onTx)
	}
}

// handleMessage dispatches notifications and logs error responses.
func (s *Stream) handleMessage(message []byte, onTx func(TxNotification)) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.logger.Debug("undecodable stream message", zap.Error(err))
		return
	}

	if msg.Error != nil {
		s.logger.Warn("stream error response",
			zap.Int("code", msg.Error.Code), zap.String("message", msg.Error.Message))
		return
	}

	if msg.Method != "account_transaction" || msg.Params == nil {
		return
	}

	var p wsTxParams
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		return
	}
	n := TxNotification{Account: p.AccountID, TxHash: p.TxHash}
	if lt, ok := uintOf(p.Lt); ok {
		n.Lt = lt
	}
	onTx(n)
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string   `json:"jsonrpc"`
	ID      uint64   `json:"id"`
	Method  string   `json:"method"`
	Params  []string `json:"params"`
}

type wsMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wsTxParams struct {
	AccountID string      `json:"account_id"`
	Lt        json.Number `json:"lt"`
	TxHash    string      `json:"tx_hash"`
}
