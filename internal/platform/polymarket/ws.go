package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	// dialTimeout bounds a single connection attempt.
	dialTimeout = 15 * time.Second
)

// BookHandler is called for every full orderbook frame.
type BookHandler func(BookEvent)

// PriceChangeHandler is called for every incremental level update.
type PriceChangeHandler func(domain.PriceChange)

// WSClient is a WebSocket client for the Polymarket CLOB market channel.
// It manages the connection lifecycle and the subscribed token set, and
// dispatches decoded frames to registered handlers.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn
	now   func() time.Time

	mu     sync.RWMutex
	closed bool

	// Tokens to restore on reconnect.
	assets map[string]struct{}

	bookHandlers  []BookHandler
	priceHandlers []PriceChangeHandler
	handlerMu     sync.RWMutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewWSClient creates a new WebSocket client for the given WebSocket URL.
//
// wsURL is the CLOB market endpoint, e.g. "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL:  wsURL,
		now:    time.Now,
		assets: make(map[string]struct{}),
		done:   make(chan struct{}),
	}
}

// Connect establishes the connection and re-sends the tracked subscription.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: dialTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}

	w.conn = conn

	_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go w.readLoop(conn)
	go w.pingLoop(conn)

	if len(w.assets) > 0 {
		if err := w.sendCommand(WSCommand{Type: "market", Assets: w.assetListLocked()}); err != nil {
			return fmt.Errorf("polymarket/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe adds token IDs to the market channel subscription.
func (w *WSClient) Subscribe(ctx context.Context, assetIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}
	if len(assetIDs) == 0 {
		return nil
	}

	first := len(w.assets) == 0
	for _, a := range assetIDs {
		w.assets[a] = struct{}{}
	}

	cmd := WSCommand{Operation: "subscribe", Assets: assetIDs}
	if first {
		cmd = WSCommand{Type: "market", Assets: assetIDs}
	}
	if err := w.sendCommand(cmd); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	return nil
}

// Unsubscribe removes token IDs from the subscription.
func (w *WSClient) Unsubscribe(ctx context.Context, assetIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}
	if len(assetIDs) == 0 {
		return nil
	}

	for _, a := range assetIDs {
		delete(w.assets, a)
	}
	if err := w.sendCommand(WSCommand{Operation: "unsubscribe", Assets: assetIDs}); err != nil {
		return fmt.Errorf("polymarket/ws: unsubscribe: %w", err)
	}
	return nil
}

// Assets returns the currently subscribed token IDs.
func (w *WSClient) Assets() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.assetListLocked()
}

// Close shuts down the WebSocket connection and stops the read loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// OnBook registers a handler for full orderbook frames.
func (w *WSClient) OnBook(handler BookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.bookHandlers = append(w.bookHandlers, handler)
}

// OnPriceChange registers a handler for incremental level updates.
func (w *WSClient) OnPriceChange(handler PriceChangeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.priceHandlers = append(w.priceHandlers, handler)
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendCommand sends a JSON command to the WebSocket. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd WSCommand) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WSClient) assetListLocked() []string {
	out := make([]string, 0, len(w.assets))
	for a := range w.assets {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// readLoop reads frames from conn until it fails, then reconnects.
func (w *WSClient) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			w.reconnect()
			return
		}
		w.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			current := w.conn == conn
			var err error
			if current {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				err = conn.WriteMessage(websocket.PingMessage, nil)
			}
			w.mu.Unlock()
			if !current || err != nil {
				return
			}
		}
	}
}

// handleMessage decodes a raw frame, which may be a single event or a JSON
// array of events, and routes each event by its type.
func (w *WSClient) handleMessage(raw []byte) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return
	}
	if raw[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(raw, &batch); err != nil {
			return
		}
		for _, item := range batch {
			w.handleEvent(item)
		}
		return
	}
	w.handleEvent(raw)
}

func (w *WSClient) handleEvent(raw []byte) {
	var envelope struct {
		MsgType string `json:"msg_type"`
		Event   string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return // Silently drop unparseable messages.
	}

	msgType := envelope.Event
	if msgType == "" {
		msgType = envelope.MsgType
	}

	switch msgType {
	case "book":
		var book BookMessage
		if err := json.Unmarshal(raw, &book); err != nil {
			return
		}
		ev := BookToEvent(&book, w.now())

		w.handlerMu.RLock()
		handlers := w.bookHandlers
		w.handlerMu.RUnlock()

		for _, h := range handlers {
			h(ev)
		}

	case "price_change":
		var pc PriceChangeMessage
		if err := json.Unmarshal(raw, &pc); err != nil {
			return
		}
		changes := PriceChangesToDomain(&pc, w.now())

		w.handlerMu.RLock()
		handlers := w.priceHandlers
		w.handlerMu.RUnlock()

		for _, c := range changes {
			for _, h := range handlers {
				h(c)
			}
		}
	}
}

// reconnect attempts to re-establish the WebSocket connection with
// exponential backoff. It blocks until successful or the client is closed.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
