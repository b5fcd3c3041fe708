package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-hire/backend/internal/models"
)

const (
	// MaxMessageBytes fits a base64 media chunk plus envelope.
	MaxMessageBytes = 2 << 20
	sendQueueSize   = 256
	writeWait       = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // connections are authenticated by token before upgrade
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Identity is who a connection belongs to, resolved before upgrade.
type Identity struct {
	RoomID uuid.UUID
	UserID uuid.UUID
	Role   models.Role
}

// MessageHandler receives a connection's lifecycle and messages. Calls for
// one client are sequential.
type MessageHandler interface {
	Connected(c *Client)
	HandleMessage(c *Client, msg WSMessage)
	Disconnected(c *Client)
}

// Client represents a single WebSocket connection in an interview room.
type Client struct {
	ID       string
	RoomID   uuid.UUID
	UserID   uuid.UUID
	Role     models.Role
	JoinedAt time.Time

	hub    *Hub
	conn   *websocket.Conn
	send   chan WSMessage
	once   sync.Once
	mu     sync.RWMutex
	closed bool
	logger *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, id Identity, logger *zap.Logger) *Client {
	return &Client{
		ID:       uuid.NewString(),
		RoomID:   id.RoomID,
		UserID:   id.UserID,
		Role:     id.Role,
		JoinedAt: time.Now(),
		hub:      hub,
		conn:     conn,
		send:     make(chan WSMessage, sendQueueSize),
		logger:   logger,
	}
}

// Serve upgrades the request and runs the client until it disconnects.
func Serve(c *gin.Context, hub *Hub, id Identity, handler MessageHandler, logger *zap.Logger) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := newClient(hub, conn, id, logger)
	hub.Register(client)
	go client.writePump()
	handler.Connected(client)
	client.readPump(handler)
}

// Send queues an event for this client. It reports false when the client
// is closed or too slow.
func (c *Client) Send(event string, payload any) bool {
	msg, err := newMessage(event, payload)
	if err != nil {
		c.logger.Warn("encode client event", zap.String("event", event), zap.Error(err))
		return false
	}
	return c.enqueue(msg)
}

func (c *Client) enqueue(msg WSMessage) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("client send queue full, dropping", zap.String("client_id", c.ID), zap.String("event", msg.Event))
		return false
	}
}

func (c *Client) closeSend() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
}

func (c *Client) readPump(handler MessageHandler) {
	defer func() {
		c.hub.Unregister(c)
		handler.Disconnected(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		handler.HandleMessage(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
