// Package feed is a WebSocket client for the exchange's market data stream:
// order book depth, mark prices, and funding rate updates for perp markets.
// It manages the connection lifecycle, resubscribes after reconnects, and
// dispatches updates to registered handlers.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/perplexfi/perplex-go/internal/domain"
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
)

// DepthHandler is called when a full order book snapshot is received.
type DepthHandler func(marketID string, book domain.OrderBook)

// PriceHandler is called when a mark price update is received.
type PriceHandler func(marketID string, price *big.Int)

// FundingHandler is called when a funding rate update is received.
type FundingHandler func(marketID string, rate string)

// subscribeCommand is the wire form of a subscribe/unsubscribe request.
type subscribeCommand struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel"`
	Markets []string `json:"markets"`
}

// Client is the market data stream client.
type Client struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Subscriptions to restore on reconnect.
	subscriptions []subscribeCommand

	depthHandlers   []DepthHandler
	priceHandlers   []PriceHandler
	fundingHandlers []FundingHandler
	handlerMu       sync.RWMutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewClient creates a feed client for the given WebSocket endpoint.
func NewClient(wsURL string) *Client {
	return &Client{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops. Previously registered subscriptions are restored.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("feed: client closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}

	c.conn = conn

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop()
	go c.pingLoop()

	for _, cmd := range c.subscriptions {
		if err := c.sendCommand(cmd); err != nil {
			return fmt.Errorf("feed: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe subscribes to the given channels for the specified market ids.
// Valid channels are "depth", "price", and "funding".
func (c *Client) Subscribe(channels []string, marketIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("feed: not connected")
	}

	for _, ch := range channels {
		cmd := subscribeCommand{
			Type:    "subscribe",
			Channel: ch,
			Markets: marketIDs,
		}
		if err := c.sendCommand(cmd); err != nil {
			return fmt.Errorf("feed: subscribe to %s: %w", ch, err)
		}
		c.subscriptions = append(c.subscriptions, cmd)
	}

	return nil
}

// Close shuts down the connection and stops the read loop.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.done)

	if c.conn != nil {
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return c.conn.Close()
	}

	return nil
}

// OnDepth registers a handler called for every depth snapshot.
func (c *Client) OnDepth(handler DepthHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.depthHandlers = append(c.depthHandlers, handler)
}

// OnPrice registers a handler called for every mark price update.
func (c *Client) OnPrice(handler PriceHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.priceHandlers = append(c.priceHandlers, handler)
}

// OnFunding registers a handler called for every funding rate update.
func (c *Client) OnFunding(handler FundingHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.fundingHandlers = append(c.fundingHandlers, handler)
}

// sendCommand sends a JSON command to the WebSocket. Caller must hold c.mu.
func (c *Client) sendCommand(cmd subscribeCommand) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages and dispatches them to handlers. On
// disconnect it attempts to reconnect with exponential backoff.
func (c *Client) readLoop() {
	defer func() {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}

			c.reconnect()
			return // readLoop is restarted by reconnect -> Connect
		}

		c.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the connection alive.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// depthMessage is the wire form of a depth snapshot. Prices and sizes are
// base-unit integers encoded as strings.
type depthMessage struct {
	MarketID string      `json:"marketId"`
	Asks     [][2]string `json:"asks"`
	Bids     [][2]string `json:"bids"`
}

type priceMessage struct {
	MarketID string `json:"marketId"`
	Price    string `json:"price"`
}

type fundingMessage struct {
	MarketID string `json:"marketId"`
	Rate     string `json:"rate"`
}

// handleMessage parses a raw message and routes it by channel. Unparseable
// messages are silently dropped.
func (c *Client) handleMessage(raw []byte) {
	var envelope struct {
		Channel string          `json:"channel"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}

	switch envelope.Channel {
	case "depth":
		var msg depthMessage
		if err := json.Unmarshal(envelope.Payload, &msg); err != nil {
			return
		}
		asks, ok := parseLevels(msg.Asks)
		if !ok {
			return
		}
		bids, ok := parseLevels(msg.Bids)
		if !ok {
			return
		}
		book := domain.OrderBook{Asks: asks, Bids: bids}

		c.handlerMu.RLock()
		handlers := c.depthHandlers
		c.handlerMu.RUnlock()

		for _, h := range handlers {
			h(msg.MarketID, book)
		}

	case "price":
		var msg priceMessage
		if err := json.Unmarshal(envelope.Payload, &msg); err != nil {
			return
		}
		price, ok := new(big.Int).SetString(msg.Price, 10)
		if !ok {
			return
		}

		c.handlerMu.RLock()
		handlers := c.priceHandlers
		c.handlerMu.RUnlock()

		for _, h := range handlers {
			h(msg.MarketID, price)
		}

	case "funding":
		var msg fundingMessage
		if err := json.Unmarshal(envelope.Payload, &msg); err != nil {
			return
		}

		c.handlerMu.RLock()
		handlers := c.fundingHandlers
		c.handlerMu.RUnlock()

		for _, h := range handlers {
			h(msg.MarketID, msg.Rate)
		}
	}
}

func parseLevels(raw [][2]string) ([]domain.PriceLevel, bool) {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, ok := new(big.Int).SetString(pair[0], 10)
		if !ok {
			return nil, false
		}
		size, ok := new(big.Int).SetString(pair[1], 10)
		if !ok {
			return nil, false
		}
		levels = append(levels, domain.PriceLevel{Price: price, Size: size})
	}
	return levels, true
}

// reconnect re-establishes the connection with exponential backoff. It
// blocks until successful or the client is closed.
func (c *Client) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-c.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := c.Connect(ctx)
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
