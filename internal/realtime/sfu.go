package realtime

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/aura-hire/backend/internal/models"
)

// Signaling events.
const (
	EventPublisherOffer   = "webrtc_publisher_offer"
	EventPublisherAnswer  = "webrtc_publisher_answer"
	EventSubscribe        = "webrtc_subscribe"
	EventSubscriberOffer  = "webrtc_subscriber_offer"
	EventSubscriberAnswer = "webrtc_subscriber_answer"
	EventICE              = "webrtc_ice"
	EventWebRTCError      = "webrtc_error"
)

// RTP buffer size (MTU-friendly). Used with sync.Pool to avoid per-packet allocs.
const rtpBufferSize = 1500

var rtpBufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, rtpBufferSize)
		return &b
	},
}

var errNotPublisher = errors.New("only the candidate may publish")

// SFU relays the candidate's camera and microphone to reviewers watching the
// interview live. One room per interview.
type SFU struct {
	rooms map[uuid.UUID]*sfuRoom
	mu    sync.RWMutex
	log   *zap.Logger
	cfg   webrtc.Configuration
}

type sfuRoom struct {
	publisher   *webrtc.PeerConnection
	tracks      []*relayTrack
	subscribers map[string]*webrtc.PeerConnection
	mu          sync.RWMutex
}

type relayTrack struct {
	remote *webrtc.TrackRemote
	locals []*webrtc.TrackLocalStaticRTP
	mu     sync.Mutex
}

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type icePayload struct {
	Target    string          `json:"target"`
	Candidate json.RawMessage `json:"candidate"`
}

// NewSFU creates an SFU with the given ICE (STUN/TURN) servers.
func NewSFU(log *zap.Logger, iceServers []webrtc.ICEServer) *SFU {
	if log == nil {
		log = zap.NewNop()
	}
	if len(iceServers) == 0 {
		iceServers = defaultICE
	}
	return &SFU{
		rooms: make(map[uuid.UUID]*sfuRoom),
		log:   log,
		cfg:   webrtc.Configuration{ICEServers: iceServers},
	}
}

// HandleSignal processes a WebRTC signaling message from c. It reports
// whether msg was a signaling event.
func (s *SFU) HandleSignal(c *Client, msg WSMessage) bool {
	var err error
	switch msg.Event {
	case EventPublisherOffer:
		var p sdpPayload
		if json.Unmarshal(msg.Data, &p) != nil || p.SDP == "" {
			return true
		}
		err = s.handlePublisherOffer(c, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP})
	case EventSubscribe:
		if !c.Role.CanReview() {
			c.Send(EventWebRTCError, map[string]string{"message": "forbidden"})
			return true
		}
		err = s.handleSubscribe(c)
	case EventSubscriberAnswer:
		var p sdpPayload
		if json.Unmarshal(msg.Data, &p) != nil || p.SDP == "" {
			return true
		}
		err = s.handleSubscriberAnswer(c, webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP})
	case EventICE:
		var p icePayload
		var cand webrtc.ICECandidateInit
		if json.Unmarshal(msg.Data, &p) != nil || json.Unmarshal(p.Candidate, &cand) != nil {
			return true
		}
		err = s.handleICE(c, p.Target, cand)
	default:
		return false
	}
	if err != nil {
		s.log.Warn("webrtc signaling failed",
			zap.String("interview_id", c.RoomID.String()),
			zap.String("event", msg.Event),
			zap.Error(err))
		c.Send(EventWebRTCError, map[string]string{"message": err.Error()})
	}
	return true
}

func (s *SFU) getOrCreateRoom(roomID uuid.UUID) *sfuRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		return r
	}
	r := &sfuRoom{subscribers: make(map[string]*webrtc.PeerConnection)}
	s.rooms[roomID] = r
	return r
}

func (s *SFU) getRoom(roomID uuid.UUID) *sfuRoom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[roomID]
}

func (s *SFU) newPeerConnection() (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	return api.NewPeerConnection(s.cfg)
}

func trickle(c *Client, target string) func(*webrtc.ICECandidate) {
	return func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		b, _ := json.Marshal(cand.ToJSON())
		c.Send(EventICE, map[string]any{"target": target, "candidate": json.RawMessage(b)})
	}
}

// handlePublisherOffer replaces the room's publisher with a new peer
// connection for the candidate and answers the offer.
func (s *SFU) handlePublisherOffer(c *Client, sdp webrtc.SessionDescription) error {
	if c.Role != models.RoleCandidate {
		return errNotPublisher
	}
	r := s.getOrCreateRoom(c.RoomID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.publisher != nil {
		_ = r.publisher.Close()
		r.publisher = nil
		r.tracks = nil
	}

	pc, err := s.newPeerConnection()
	if err != nil {
		return err
	}
	pc.OnICECandidate(trickle(c, "publisher"))
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		relay := &relayTrack{remote: track}
		r.mu.Lock()
		r.tracks = append(r.tracks, relay)
		r.attachToSubscribers(relay)
		r.mu.Unlock()
		go relay.readAndForward()
	})

	if err := pc.SetRemoteDescription(sdp); err != nil {
		_ = pc.Close()
		return err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		return err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		return err
	}
	r.publisher = pc
	c.Send(EventPublisherAnswer, sdpPayload{Type: answer.Type.String(), SDP: answer.SDP})
	s.log.Info("candidate publishing", zap.String("interview_id", c.RoomID.String()))
	return nil
}

func (rt *relayTrack) readAndForward() {
	for {
		ptr := rtpBufferPool.Get().(*[]byte)
		buf := *ptr
		n, _, err := rt.remote.Read(buf)
		if err != nil {
			rtpBufferPool.Put(ptr)
			return
		}
		// Copy the subscriber list so a slow subscriber does not block the lock.
		rt.mu.Lock()
		locals := make([]*webrtc.TrackLocalStaticRTP, len(rt.locals))
		copy(locals, rt.locals)
		rt.mu.Unlock()
		for _, local := range locals {
			_, _ = local.Write(buf[:n])
		}
		rtpBufferPool.Put(ptr)
	}
}

// attachToSubscribers adds relay to every subscriber. Caller holds r.mu.
func (r *sfuRoom) attachToSubscribers(relay *relayTrack) {
	for _, pc := range r.subscribers {
		relay.attach(pc)
	}
}

func (rt *relayTrack) attach(pc *webrtc.PeerConnection) {
	local, err := webrtc.NewTrackLocalStaticRTP(rt.remote.Codec().RTPCodecCapability, rt.remote.ID(), rt.remote.StreamID())
	if err != nil {
		return
	}
	if _, err := pc.AddTrack(local); err != nil {
		return
	}
	rt.mu.Lock()
	rt.locals = append(rt.locals, local)
	rt.mu.Unlock()
}

// handleSubscribe creates a reviewer peer connection carrying the
// candidate's tracks and sends it an offer.
func (s *SFU) handleSubscribe(c *Client) error {
	r := s.getRoom(c.RoomID)
	if r == nil {
		c.Send(EventWebRTCError, map[string]string{"message": "no_stream"})
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.publisher == nil || len(r.tracks) == 0 {
		c.Send(EventWebRTCError, map[string]string{"message": "no_stream"})
		return nil
	}
	if old, ok := r.subscribers[c.ID]; ok {
		_ = old.Close()
		delete(r.subscribers, c.ID)
	}

	pc, err := s.newPeerConnection()
	if err != nil {
		return err
	}
	pc.OnICECandidate(trickle(c, "subscriber"))
	for _, relay := range r.tracks {
		relay.attach(pc)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return err
	}
	r.subscribers[c.ID] = pc
	c.Send(EventSubscriberOffer, sdpPayload{Type: offer.Type.String(), SDP: offer.SDP})
	return nil
}

func (s *SFU) handleSubscriberAnswer(c *Client, sdp webrtc.SessionDescription) error {
	r := s.getRoom(c.RoomID)
	if r == nil {
		return nil
	}
	r.mu.RLock()
	pc, ok := r.subscribers[c.ID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return pc.SetRemoteDescription(sdp)
}

func (s *SFU) handleICE(c *Client, target string, cand webrtc.ICECandidateInit) error {
	r := s.getRoom(c.RoomID)
	if r == nil {
		return nil
	}
	r.mu.RLock()
	var pc *webrtc.PeerConnection
	switch target {
	case "publisher":
		if c.Role == models.RoleCandidate {
			pc = r.publisher
		}
	case "subscriber":
		pc = r.subscribers[c.ID]
	}
	r.mu.RUnlock()
	if pc == nil {
		return nil
	}
	return pc.AddICECandidate(cand)
}

// Publishing reports whether the candidate's media is live in the room.
func (s *SFU) Publishing(roomID uuid.UUID) bool {
	r := s.getRoom(roomID)
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publisher != nil && len(r.tracks) > 0
}

// Leave closes whatever c had open: its subscriber connection, and the
// publisher when c is the candidate.
func (s *SFU) Leave(c *Client) {
	r := s.getRoom(c.RoomID)
	if r == nil {
		return
	}
	r.mu.Lock()
	if pc, ok := r.subscribers[c.ID]; ok {
		delete(r.subscribers, c.ID)
		_ = pc.Close()
	}
	if c.Role == models.RoleCandidate && r.publisher != nil {
		_ = r.publisher.Close()
		r.publisher = nil
		r.tracks = nil
	}
	empty := r.publisher == nil && len(r.subscribers) == 0
	r.mu.Unlock()

	if empty {
		s.mu.Lock()
		if s.rooms[c.RoomID] == r {
			delete(s.rooms, c.RoomID)
		}
		s.mu.Unlock()
	}
}

var defaultICE = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

// ICEServers converts configured STUN/TURN URLs, falling back to a public
// STUN server.
func ICEServers(urls []string) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		out = append(out, webrtc.ICEServer{URLs: []string{u}})
	}
	if len(out) == 0 {
		return defaultICE
	}
	return out
}
