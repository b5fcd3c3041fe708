// Package realtime carries live interview traffic: a WebSocket hub with one
// room per interview, Redis fan-out across instances and a WebRTC SFU that
// relays the candidate's camera to reviewers.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// RoomPublisher publishes room events to other instances.
type RoomPublisher interface {
	PublishRoomEvent(roomID uuid.UUID, event string, payload []byte) error
}

// RoomSubscriber delivers other instances' room events.
type RoomSubscriber interface {
	SubscribeRoom(roomID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains interview_id -> set of connections.
type Hub struct {
	rooms    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func()
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RoomPublisher
	redisSub RoomSubscriber
}

// NewHub creates a hub. Both Redis sides may be nil for a single instance.
func NewHub(logger *zap.Logger, pub RoomPublisher, sub RoomSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    pub,
		redisSub: sub,
	}
}

// Register adds a client to its room, subscribing to the room's Redis
// channel when it is the first local member.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.RoomID] == nil {
		h.rooms[c.RoomID] = make(map[string]*Client)
		if h.redisSub != nil {
			roomID := c.RoomID
			cancel, err := h.redisSub.SubscribeRoom(roomID, func(event string, payload []byte) {
				h.Broadcast(roomID, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("room subscribe failed", zap.String("interview_id", roomID.String()), zap.Error(err))
			} else {
				h.subs[roomID] = cancel
			}
		}
	}
	h.rooms[c.RoomID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("interview_id", c.RoomID.String()), zap.String("role", string(c.Role)))
}

// Unregister removes a client and closes its send queue. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.RoomID]; ok {
		if _, member := m[c.ID]; member {
			delete(m, c.ID)
			c.closeSend()
		}
		if len(m) == 0 {
			delete(h.rooms, c.RoomID)
			if cancel, ok := h.subs[c.RoomID]; ok {
				cancel()
				delete(h.subs, c.RoomID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left room", zap.String("client_id", c.ID), zap.String("interview_id", c.RoomID.String()))
}

// Broadcast sends to every local client in the room.
func (h *Hub) Broadcast(roomID uuid.UUID, event string, payload any) {
	msg, err := newMessage(event, payload)
	if err != nil {
		h.logger.Warn("encode room event", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[roomID] {
		c.enqueue(msg)
	}
}

// Publish delivers an event to the room on every instance exactly once:
// through Redis when configured (this instance hears its own publish),
// locally otherwise.
func (h *Hub) Publish(roomID uuid.UUID, event string, payload any) {
	if h.redis == nil {
		h.Broadcast(roomID, event, payload)
		return
	}
	data, err := marshalPayload(payload)
	if err != nil {
		h.logger.Warn("encode room event", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.redis.PublishRoomEvent(roomID, event, data); err != nil {
		h.logger.Warn("publish room event failed, delivering locally", zap.String("event", event), zap.Error(err))
		h.Broadcast(roomID, event, json.RawMessage(data))
	}
}

// SendToClient sends to one local client. It reports false when the client
// is gone or its queue is full.
func (h *Hub) SendToClient(roomID uuid.UUID, clientID string, event string, payload any) bool {
	msg, err := newMessage(event, payload)
	if err != nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.rooms[roomID][clientID]
	if !ok {
		return false
	}
	return c.enqueue(msg)
}

// RoomSize returns the number of local clients in a room.
func (h *Hub) RoomSize(roomID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func marshalPayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(payload)
	}
}

func newMessage(event string, payload any) (WSMessage, error) {
	data, err := marshalPayload(payload)
	if err != nil {
		return WSMessage{}, err
	}
	return WSMessage{Event: event, Data: data}, nil
}
