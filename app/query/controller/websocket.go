package controller

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: In production, restrict to specific origins
		return true
	},
}

// balanceChannelPattern matches every account's balance-change channel, as
// published by the indexer (see redis.BalanceChannel).
const balanceChannelPattern = "balancex:balance.changed:*"

// ClientMessage represents messages sent by WebSocket clients.
type ClientMessage struct {
	Action  string `json:"action"`  // "subscribe" or "unsubscribe"
	Account string `json:"account"` // Account to watch, or "*" for all accounts
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string      `json:"type"`    // "balance.changed", "subscribed", "unsubscribed", "error", "info"
	Payload interface{} `json:"payload"` // Event-specific data
}

// accountSubscriptions tracks which accounts a client is watching.
type accountSubscriptions struct {
	mu       sync.RWMutex
	accounts map[string]bool
}

// NewAccountSubscriptions creates a new accountSubscriptions tracker.
// Exported for testing.
func NewAccountSubscriptions() *accountSubscriptions {
	return &accountSubscriptions{accounts: make(map[string]bool)}
}

// Subscribe adds an account to the watch list. Exported for testing.
func (as *accountSubscriptions) Subscribe(account string) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.accounts[account] = true
}

// Unsubscribe removes an account from the watch list. Exported for testing.
func (as *accountSubscriptions) Unsubscribe(account string) {
	as.mu.Lock()
	defer as.mu.Unlock()
	delete(as.accounts, account)
}

// IsSubscribed checks whether an account is watched. Wildcard (*) matches
// every account. Exported for testing.
func (as *accountSubscriptions) IsSubscribed(account string) bool {
	as.mu.RLock()
	defer as.mu.RUnlock()
	if as.accounts["*"] {
		return true
	}
	return as.accounts[account]
}

// HandleWebSocket upgrades the connection and streams live balance changes.
//
// Protocol:
// Client sends: {"action": "subscribe", "account": "lumen1abc..."}
// Client sends: {"action": "subscribe", "account": "*"}
// Client sends: {"action": "unsubscribe", "account": "lumen1abc..."}
//
// Server sends:
// - {"type": "balance.changed", "payload": {...}}
// - {"type": "subscribed"/"unsubscribed", "payload": {"account": "..."}}
// - {"type": "error"/"info", "payload": {"message": "..."}}
//
// The stream is a notification, not a reconciled page: clients re-query the
// history endpoint to get validated balances.
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.App.Logger.Error("Failed to close WebSocket connection", zap.Error(err))
		}
	}()

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := NewAccountSubscriptions()
	send := make(chan ServerMessage, 256)

	var wg sync.WaitGroup
	// Each goroutine recovers its own panics so one bad message cannot take
	// the process down with it.
	spawn := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					c.App.Logger.Error("Panic in WebSocket goroutine",
						zap.String("goroutine", name),
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())),
						zap.String("remote_addr", r.RemoteAddr))
					cancel()
				}
			}()
			fn()
		}()
	}

	spawn("redis-subscriber", func() { c.streamBalanceChanges(ctx, send, subs) })
	spawn("ping-ticker", func() { c.sendPings(ctx, conn) })
	spawn("writer", func() { c.writeMessages(conn, send) })

	// Blocks until the client disconnects.
	c.readClientMessages(ctx, conn, cancel, subs, send)

	close(send)
	wg.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// streamBalanceChanges keeps a Redis pattern subscription alive for the
// lifetime of the connection, reconnecting with exponential backoff when the
// subscription drops. Clients are told about outages so they can decide to
// re-query instead of waiting.
func (c *Controller) streamBalanceChanges(ctx context.Context, send chan<- ServerMessage, subs *accountSubscriptions) {
	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 30 * time.Second
		backoffFactor  = 2.0
		jitterFactor   = 0.1
	)

	backoff := initialBackoff
	attempt := 0

	for {
		if ctx.Err() != nil {
			c.App.Logger.Info("Redis subscription cancelled")
			return
		}

		attempt++
		err := c.followPattern(ctx, send, subs, attempt)
		if ctx.Err() != nil {
			c.App.Logger.Info("Redis subscription cancelled")
			return
		}

		c.App.Logger.Warn("Redis subscription ended, will retry",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))

		select {
		case send <- ServerMessage{
			Type: "error",
			Payload: map[string]interface{}{
				"message":     "Redis connection lost, attempting to reconnect...",
				"retryIn":     backoff.Seconds(),
				"attempt":     attempt,
				"recoverable": true,
			},
		}:
		case <-ctx.Done():
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}

		backoff = CalculateNextBackoff(backoff, maxBackoff, backoffFactor, jitterFactor)
	}
}

// followPattern runs a single subscription until it fails or the context is
// cancelled. A nil error means the Redis channel closed under us.
func (c *Controller) followPattern(ctx context.Context, send chan<- ServerMessage, subs *accountSubscriptions, attempt int) error {
	pubsub := c.App.RedisClient.PSubscribe(ctx, balanceChannelPattern)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Error("Error closing Redis subscription", zap.Error(err))
		}
	}()

	// Confirm the subscription before telling the client anything.
	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()
	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return err
	}

	c.App.Logger.Info("Subscribed to balance-change channel",
		zap.String("pattern", balanceChannelPattern),
		zap.Int("attempt", attempt))

	if attempt > 1 {
		select {
		case send <- ServerMessage{
			Type:    "info",
			Payload: map[string]interface{}{"message": "Redis connection restored", "attempt": attempt},
		}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return c.forwardBalanceChanges(ctx, pubsub, send, subs)
}

// forwardBalanceChanges filters the firehose down to the accounts this client
// watches and forwards matching payloads.
func (c *Controller) forwardBalanceChanges(ctx context.Context, pubsub *redis.PubSub, send chan<- ServerMessage, subs *accountSubscriptions) error {
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			account := ExtractAccountFromChannel(msg.Channel)
			if account == "" {
				c.App.Logger.Warn("Failed to extract account from channel",
					zap.String("channel", msg.Channel))
				continue
			}

			if !subs.IsSubscribed(account) {
				continue
			}

			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				c.App.Logger.Error("Failed to parse Redis message",
					zap.Error(err),
					zap.String("channel", msg.Channel))
				continue
			}

			select {
			case send <- ServerMessage{Type: "balance.changed", Payload: payload}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// CalculateNextBackoff calculates the next backoff duration with exponential growth and jitter.
// Exported for testing.
func CalculateNextBackoff(current, max time.Duration, factor, jitterFactor float64) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		next = max
	}

	// Jitter spreads reconnect storms after a shared Redis outage.
	jitter := float64(next) * jitterFactor * (2*rand.Float64() - 1)
	nextWithJitter := time.Duration(float64(next) + jitter)

	if nextWithJitter < current {
		nextWithJitter = current
	}
	if nextWithJitter > max {
		nextWithJitter = max
	}

	return nextWithJitter
}

// ExtractAccountFromChannel extracts the account from a balance-change
// channel name. Exported for testing.
func ExtractAccountFromChannel(channel string) string {
	parts := strings.SplitN(channel, ":", 3)
	if len(parts) != 3 || parts[0] != "balancex" || parts[1] != "balance.changed" {
		return ""
	}
	return parts[2]
}

// sendPings keeps the connection alive; the client's automatic pong resets
// the read deadline.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Error("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages writes messages from the send channel to the WebSocket connection.
func (c *Controller) writeMessages(conn *websocket.Conn, send <-chan ServerMessage) {
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			c.App.Logger.Error("Failed to write WebSocket message", zap.Error(err))
			return
		}
	}
}

// readClientMessages handles subscribe/unsubscribe requests and detects
// connection closure.
func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *accountSubscriptions, send chan<- ServerMessage) {
	resetDeadline := func() error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	}
	if err := resetDeadline(); err != nil {
		c.App.Logger.Error("Failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error { return resetDeadline() })

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.App.Logger.Error("WebSocket read error", zap.Error(err))
				}
				cancel()
				return
			}
			if err := resetDeadline(); err != nil {
				c.App.Logger.Error("Failed to reset read deadline", zap.Error(err))
				return
			}

			if msg.Account == "" {
				send <- ServerMessage{Type: "error", Payload: map[string]string{"message": "account is required"}}
				continue
			}

			switch msg.Action {
			case "subscribe":
				subs.Subscribe(msg.Account)
				c.App.Logger.Debug("Client subscribed", zap.String("account", msg.Account))
				send <- ServerMessage{Type: "subscribed", Payload: map[string]string{"account": msg.Account}}

			case "unsubscribe":
				subs.Unsubscribe(msg.Account)
				c.App.Logger.Debug("Client unsubscribed", zap.String("account", msg.Account))
				send <- ServerMessage{Type: "unsubscribed", Payload: map[string]string{"account": msg.Account}}

			default:
				send <- ServerMessage{Type: "error", Payload: map[string]string{"message": "unknown action: " + msg.Action}}
			}
		}
	}
}
