package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/companion/utils/log"
)

// InboundHandler receives a user message typed on a connected display.
type InboundHandler func(ctx context.Context, identity, text string) error

type Client struct {
	conn         *websocket.Conn
	identity     string
	send         chan []byte
	incomingPing chan string
	onMessage    InboundHandler
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex
	closed       bool
}

// InboundMessage is what a display sends over the socket.
type InboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// OutboundMessage is what the server pushes to a display.
type OutboundMessage struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Event     json.RawMessage `json:"event,omitempty"`
	Error     *ErrorResponse  `json:"error,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

const (
	TypeMessage = "message"
	TypeTurn    = "turn"
	TypeError   = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
)

var errSendBufferFull = errors.New("send buffer full")

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, identity string, onMessage InboundHandler) *Client {
	ctx, cancel := context.WithCancel(log.WithContext(context.Background(), identity, ""))
	return &Client{
		conn:         conn,
		identity:     identity,
		send:         make(chan []byte, 256),
		incomingPing: make(chan string, 1),
		onMessage:    onMessage,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (c *Client) Run() {
	// Set up WebSocket handlers
	c.setupHandlers()

	// Start the goroutines
	go c.Ping()
	go c.readPump()
	go c.writePump()
}

// setupHandlers configures all WebSocket control handlers
func (c *Client) setupHandlers() {
	c.conn.SetCloseHandler(func(code int, text string) error {
		log.WithCtx(c.ctx).Debug("WebSocket connection closed", zap.Int("code", code), zap.String("text", text))
		c.Close()
		return nil
	})

	// Handle incoming ping messages - respond with pong
	c.conn.SetPingHandler(func(appData string) error {
		log.WithCtx(c.ctx).Debug("Received ping from client", zap.String("appData", appData))
		select {
		case c.incomingPing <- appData:
		default:
		}
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	// Handle incoming pong messages - update read deadline
	c.conn.SetPongHandler(func(appData string) error {
		log.WithCtx(c.ctx).Debug("Received pong from client", zap.String("appData", appData))
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// Close gracefully closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.cancel()
	c.conn.Close()
	close(c.send)
}

// IsClosed returns true if the client connection is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Context returns the client's context
func (c *Client) Context() context.Context {
	return c.ctx
}

func (c *Client) Identity() string {
	return c.identity
}

func (c *Client) Ping() {
	for {
		select {
		case <-c.incomingPing:
		case <-time.After(pingPeriod):
			if c.IsClosed() {
				return
			}
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				log.WithCtx(c.ctx).Error("Failed to send ping", zap.Error(err))
				c.Close()
				return
			}
			log.WithCtx(c.ctx).Debug("Ping sent")
		case <-c.ctx.Done():
			log.WithCtx(c.ctx).Debug("Context cancelled, stopping ping routine")
			return
		}
	}
}

// readPump handles incoming WebSocket messages
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithCtx(c.ctx).Error("WebSocket error", zap.Error(err))
			}
			return
		}

		var msg InboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.SendError("bad_request", "Message is not valid JSON", err.Error())
			continue
		}
		if msg.Type != TypeMessage {
			c.SendError("bad_request", "Unsupported message type", msg.Type)
			continue
		}

		log.WithCtx(c.ctx).Debug("Received message", zap.Int("length", len(msg.Text)))
		// The reply comes back through the broker, so the pump keeps reading meanwhile.
		go func(text string) {
			if err := c.onMessage(c.ctx, c.identity, text); err != nil {
				c.SendError(errorCode(err), "Message was not sent", err.Error())
			}
		}(msg.Text)
	}
}

// writePump handles outgoing WebSocket messages
func (c *Client) writePump() {
	defer c.Close()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.WithCtx(c.ctx).Error("Failed to write message", zap.Error(err))
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// SendMessage queues a frame for the client. A client that cannot keep up is dropped.
func (c *Client) SendMessage(message []byte) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return websocket.ErrCloseSent
	}
	select {
	case c.send <- message:
		c.mu.RUnlock()
		return nil
	default:
		c.mu.RUnlock()
		c.Close()
		return errSendBufferFull
	}
}

// SendEvent pushes a turn event that is already JSON encoded.
func (c *Client) SendEvent(event []byte) error {
	return c.sendFrame(OutboundMessage{Type: TypeTurn, Timestamp: time.Now().UTC(), Event: event})
}

func (c *Client) SendError(code, message, details string) {
	err := c.sendFrame(OutboundMessage{
		Type:      TypeError,
		Timestamp: time.Now().UTC(),
		Error:     &ErrorResponse{Code: code, Message: message, Details: details},
	})
	if err != nil {
		log.WithCtx(c.ctx).Debug("Error frame dropped", zap.Error(err))
	}
}

func (c *Client) sendFrame(frame OutboundMessage) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.SendMessage(payload)
}
