package conduct

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-hire/backend/internal/session"
)

// Device round-trip events.
const (
	EventMediaEnumerate = "media_enumerate"
	EventMediaDevices   = "media_devices"
	EventMediaRequest   = "media_request"
	EventMediaResult    = "media_result"
	EventMediaRelease   = "media_release"
)

// DefaultDeviceTimeout bounds one browser round-trip.
const DefaultDeviceTimeout = 10 * time.Second

var (
	ErrDeviceTimeout  = errors.New("device request timed out")
	ErrDeviceGone     = errors.New("device connection closed")
	ErrDeviceNotSent  = errors.New("device request could not be sent")
	errUnknownRequest = errors.New("unknown device request")
)

// Sender delivers one event to the browser.
type Sender interface {
	Send(event string, payload any) bool
}

// mediaFailure is the browser's DOMException, name and message only.
type mediaFailure struct {
	Name    string `json:"name"`
	Message string `json:"message,omitempty"`
}

type deviceRequest struct {
	RequestID   string               `json:"request_id"`
	Constraints *session.Constraints `json:"constraints,omitempty"`
}

// deviceReply answers media_enumerate (Devices) or media_request (Tracks).
type deviceReply struct {
	RequestID string           `json:"request_id"`
	Devices   []session.Device `json:"devices,omitempty"`
	Tracks    session.Tracks   `json:"tracks"`
	Error     *mediaFailure    `json:"error,omitempty"`
}

func (r deviceReply) err() error {
	if r.Error == nil || r.Error.Name == "" {
		return nil
	}
	return &session.MediaError{Name: r.Error.Name, Message: r.Error.Message}
}

// RemoteDevices is a session.DeviceProvider whose camera and microphone live
// in the candidate's browser. Each call is a request/reply over the socket.
type RemoteDevices struct {
	sender  Sender
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan deviceReply
	closed  bool
}

func NewRemoteDevices(sender Sender, timeout time.Duration) *RemoteDevices {
	if timeout <= 0 {
		timeout = DefaultDeviceTimeout
	}
	return &RemoteDevices{
		sender:  sender,
		timeout: timeout,
		pending: make(map[string]chan deviceReply),
	}
}

func (d *RemoteDevices) Enumerate(ctx context.Context) ([]session.Device, error) {
	reply, err := d.roundTrip(ctx, EventMediaEnumerate, nil)
	if err != nil {
		return nil, err
	}
	if err := reply.err(); err != nil {
		return nil, err
	}
	return reply.Devices, nil
}

func (d *RemoteDevices) Request(ctx context.Context, c session.Constraints) (session.Stream, error) {
	reply, err := d.roundTrip(ctx, EventMediaRequest, &c)
	if err != nil {
		return nil, err
	}
	if err := reply.err(); err != nil {
		return nil, err
	}
	return &remoteStream{sender: d.sender, id: reply.RequestID, tracks: reply.Tracks}, nil
}

// Resolve routes a media_devices or media_result message to its waiting call.
func (d *RemoteDevices) Resolve(data json.RawMessage) error {
	var reply deviceReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return err
	}
	d.mu.Lock()
	ch, ok := d.pending[reply.RequestID]
	delete(d.pending, reply.RequestID)
	d.mu.Unlock()
	if !ok {
		return errUnknownRequest
	}
	ch <- reply
	return nil
}

// Close fails every waiting call and any later one.
func (d *RemoteDevices) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for id, ch := range d.pending {
		close(ch)
		delete(d.pending, id)
	}
}

func (d *RemoteDevices) roundTrip(ctx context.Context, event string, c *session.Constraints) (deviceReply, error) {
	id := uuid.NewString()
	ch := make(chan deviceReply, 1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return deviceReply{}, ErrDeviceGone
	}
	d.pending[id] = ch
	d.mu.Unlock()

	if !d.sender.Send(event, deviceRequest{RequestID: id, Constraints: c}) {
		d.forget(id)
		return deviceReply{}, ErrDeviceNotSent
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()
	select {
	case reply, ok := <-ch:
		if !ok {
			return deviceReply{}, ErrDeviceGone
		}
		return reply, nil
	case <-timer.C:
		d.forget(id)
		return deviceReply{}, ErrDeviceTimeout
	case <-ctx.Done():
		d.forget(id)
		return deviceReply{}, ctx.Err()
	}
}

func (d *RemoteDevices) forget(id string) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

// remoteStream tells the browser to stop its tracks on Stop.
type remoteStream struct {
	sender Sender
	id     string
	tracks session.Tracks
	once   sync.Once
}

func (s *remoteStream) Tracks() session.Tracks { return s.tracks }

func (s *remoteStream) Stop() {
	s.once.Do(func() {
		s.sender.Send(EventMediaRelease, deviceRequest{RequestID: s.id})
	})
}
