package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// pingPeriod must stay below pongWait
	pingPeriod = pongWait * 9 / 10

	// Devices never send payloads, only control frames
	maxInboundSize = 512
	outboxSize     = 256
)

// Client is one device connection subscribed to change events
type Client struct {
	id       string
	deviceID string
	conn     *websocket.Conn
	hub      *Hub
	logger   zerolog.Logger

	mu     sync.RWMutex
	outbox chan []byte
	done   bool
	once   sync.Once
}

// NewClient wraps conn for deviceID
func NewClient(conn *websocket.Conn, deviceID string, hub *Hub) *Client {
	id := uuid.New().String()
	return &Client{
		id:       id,
		deviceID: deviceID,
		conn:     conn,
		hub:      hub,
		logger:   log.With().Str("client_id", id).Str("device_id", deviceID).Logger(),
		outbox:   make(chan []byte, outboxSize),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) DeviceID() string {
	return c.deviceID
}

// Send queues data without blocking. A full outbox means the device is not
// keeping up and is treated like a closed connection.
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.done {
		return ErrClientClosed
	}

	select {
	case c.outbox <- data:
		return nil
	default:
		return ErrClientClosed
	}
}

// Close is idempotent
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		c.done = true
		close(c.outbox)
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// Serve registers the client with its hub and runs the connection until
// either side goes away. It blocks.
func (c *Client) Serve() {
	c.hub.Register(c)
	go c.writeLoop()
	c.readLoop()
}

// readLoop only keeps the read deadline alive through pongs and notices
// the peer closing
func (c *Client) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket closed unexpectedly")
			}
			return
		}
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.Close()
	}()

	for {
		var (
			kind    = websocket.PingMessage
			payload []byte
		)
		select {
		case data, ok := <-c.outbox:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			kind, payload = websocket.TextMessage, data
		case <-ping.C:
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(kind, payload); err != nil {
			if kind == websocket.TextMessage {
				c.logger.Warn().Err(err).Msg("WebSocket write failed")
			}
			return
		}
	}
}
