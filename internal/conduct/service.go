// Package conduct runs live interviews over WebSocket: the candidate's
// browser drives a session controller, reviewers watch the same room.
package conduct

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-hire/backend/internal/auth"
	"github.com/aura-hire/backend/internal/interviews"
	"github.com/aura-hire/backend/internal/middleware"
	"github.com/aura-hire/backend/internal/models"
	"github.com/aura-hire/backend/internal/realtime"
	"github.com/aura-hire/backend/internal/session"
	"github.com/aura-hire/backend/pkg/response"
)

// Candidate commands.
const (
	CmdBegin    = "begin"
	CmdSkip     = "skip"
	CmdStop     = "stop"
	CmdRerecord = "rerecord"
	CmdNext     = "next"
	CmdSubmit   = "submit"
	CmdChunk    = "chunk"
)

const submitGrace = 30 * time.Second

var errReplaced = errors.New("session opened elsewhere")

// Loader loads one interview.
type Loader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Interview, error)
}

// Signaler relays WebRTC signaling for live proctoring.
type Signaler interface {
	HandleSignal(c *realtime.Client, msg realtime.WSMessage) bool
	Publishing(roomID uuid.UUID) bool
	Leave(c *realtime.Client)
}

// Timing tunes the controllers the service creates. Zero values take the
// session defaults.
type Timing struct {
	TickUnit      time.Duration
	SettleDelay   time.Duration
	DrainTimeout  time.Duration
	DeviceTimeout time.Duration
}

// Deps are the collaborators of a Service. SFU, Jobs, Archiver and
// Transcriber may be nil.
type Deps struct {
	Interviews  Loader
	Store       Completer
	Jobs        Jobs
	Archiver    session.Archiver
	Transcriber session.Transcriber
	Hub         *realtime.Hub
	SFU         Signaler
	JWT         *auth.JWTService
	Logger      *zap.Logger
	Clock       session.Clock
	Timing      Timing
}

// Service keeps at most one live controller per interview on this instance.
type Service struct {
	Deps

	mu   sync.Mutex
	live map[uuid.UUID]*liveSession
}

type liveSession struct {
	client  *realtime.Client
	ctrl    *session.Controller
	devices *RemoteDevices
	ctx     context.Context
	cancel  context.CancelFunc
}

func (l *liveSession) teardown() {
	l.cancel()
	l.devices.Close()
	l.ctrl.Close()
}

func NewService(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = session.SystemClock{}
	}
	return &Service{Deps: deps, live: make(map[uuid.UUID]*liveSession)}
}

// Routes registers the interview socket.
func (s *Service) Routes(r gin.IRouter) {
	r.GET("/ws/interviews/:id", s.ServeWS)
}

// ServeWS authenticates the ?token= (or bearer) JWT, checks access to the
// interview and upgrades. Candidates may only join an interview in progress.
func (s *Service) ServeWS(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid interview id")
		return
	}
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	claims, err := s.JWT.Validate(token)
	if err != nil {
		response.Unauthorized(c, "invalid or expired token")
		return
	}
	middleware.SetClaims(c, claims)

	iv, err := s.Interviews.GetByID(c.Request.Context(), id)
	if err != nil {
		s.Logger.Error("load interview for socket", zap.String("interview_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to load interview")
		return
	}
	if iv == nil {
		response.NotFound(c, "interview not found")
		return
	}
	if !interviews.CanAccess(c, iv) {
		response.Forbidden(c, "not authorized for this interview")
		return
	}
	role := middleware.UserRole(c)
	if !role.CanReview() && iv.Status != models.InterviewInProgress {
		response.Conflict(c, "interview is not in progress")
		return
	}
	userID, _ := middleware.UserID(c)
	identity := realtime.Identity{RoomID: iv.ID, UserID: userID, Role: role}
	realtime.Serve(c, s.Hub, identity, &connection{svc: s, interview: iv}, s.Logger)
}

// Live reports whether an interview has a controller on this instance.
func (s *Service) Live(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live[id]
	return ok
}

// Shutdown tears down every live controller.
func (s *Service) Shutdown() {
	s.mu.Lock()
	sessions := s.live
	s.live = make(map[uuid.UUID]*liveSession)
	s.mu.Unlock()
	for _, l := range sessions {
		l.teardown()
	}
}

type endedPayload struct {
	Reason string `json:"reason"`
}

// End tears down the interview's live controller and disconnects its
// candidate. Everyone else in the room is told why. It reports whether a
// session was running on this instance.
func (s *Service) End(id uuid.UUID, reason string) bool {
	s.mu.Lock()
	l, ok := s.live[id]
	delete(s.live, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	l.teardown()
	if s.SFU != nil {
		s.SFU.Leave(l.client)
	}
	payload := endedPayload{Reason: reason}
	l.client.Send(EventSessionEnded, payload)
	s.Hub.Unregister(l.client)
	s.Hub.Publish(id, EventSessionEnded, payload)
	s.Logger.Info("live session ended", zap.String("interview_id", id.String()), zap.String("reason", reason))
	return true
}

// attach starts a controller for a candidate connection, replacing any
// previous one for the same interview.
func (s *Service) attach(cl *realtime.Client, iv *models.Interview) *liveSession {
	devices := NewRemoteDevices(cl, s.Timing.DeviceTimeout)
	language := session.LanguageFromNotes(iv.Notes, iv.Language)
	ctrl := session.NewController(session.Config{
		InterviewID:  iv.ID,
		Questions:    session.NormalizeQuestions(iv.Notes, language),
		Language:     language,
		TickUnit:     s.Timing.TickUnit,
		SettleDelay:  s.Timing.SettleDelay,
		DrainTimeout: s.Timing.DrainTimeout,
	}, session.Deps{
		Devices:     devices,
		Transcriber: s.Transcriber,
		Persister:   NewPersister(s.Store, s.Jobs, s.Logger),
		Archiver:    s.Archiver,
		Observer:    roomObserver{room: s.Hub, id: iv.ID},
		Logger:      s.Logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	l := &liveSession{client: cl, ctrl: ctrl, devices: devices, ctx: ctx, cancel: cancel}

	s.mu.Lock()
	old := s.live[iv.ID]
	s.live[iv.ID] = l
	s.mu.Unlock()

	if old != nil {
		s.Logger.Info("candidate reconnected, replacing session", zap.String("interview_id", iv.ID.String()))
		old.teardown()
		sendError(old.client, "", errReplaced)
		// Unregistering flushes the queued error before the socket closes.
		s.Hub.Unregister(old.client)
	}
	go ctrl.Run(ctx, s.Clock)
	return l
}

// detach tears down cl's controller unless it has been replaced. It reports
// whether cl was still the live candidate.
func (s *Service) detach(cl *realtime.Client) bool {
	s.mu.Lock()
	l, ok := s.live[cl.RoomID]
	if !ok || l.client != cl {
		s.mu.Unlock()
		return false
	}
	delete(s.live, cl.RoomID)
	s.mu.Unlock()
	l.teardown()
	return true
}

func (s *Service) current(cl *realtime.Client) *liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.live[cl.RoomID]
	if !ok || l.client != cl {
		return nil
	}
	return l
}

func (s *Service) liveFor(id uuid.UUID) *liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[id]
}

// connection is the MessageHandler for one socket.
type connection struct {
	svc       *Service
	interview *models.Interview
}

func (h *connection) Connected(cl *realtime.Client) {
	if cl.Role == models.RoleCandidate {
		l := h.svc.attach(cl, h.interview)
		cl.Send(EventSessionState, l.ctrl.Snapshot())
		return
	}
	if l := h.svc.liveFor(cl.RoomID); l != nil {
		cl.Send(EventSessionState, l.ctrl.Snapshot())
		for _, a := range l.ctrl.Advisories() {
			cl.Send(EventAdvisory, a)
		}
	}
	if h.svc.SFU != nil {
		cl.Send(EventProctoring, proctoringPayload{Publishing: h.svc.SFU.Publishing(cl.RoomID)})
	}
}

// Disconnected tears the session down. A replaced candidate leaves the
// SFU alone so the newer connection keeps its publisher.
func (h *connection) Disconnected(cl *realtime.Client) {
	if cl.Role == models.RoleCandidate && !h.svc.detach(cl) {
		return
	}
	if h.svc.SFU != nil {
		h.svc.SFU.Leave(cl)
	}
}

// HandleMessage routes signaling to the SFU and commands to the controller.
// A replaced candidate socket reaches neither.
func (h *connection) HandleMessage(cl *realtime.Client, msg realtime.WSMessage) {
	var l *liveSession
	if cl.Role == models.RoleCandidate {
		if l = h.svc.current(cl); l == nil {
			sendError(cl, msg.Event, errReplaced)
			return
		}
	}
	if h.svc.SFU != nil && h.svc.SFU.HandleSignal(cl, msg) {
		return
	}
	if l == nil {
		return
	}
	h.dispatch(cl, l, msg)
}

// proctoringPayload tells a reviewer whether a subscribe offer will carry
// the candidate's camera.
type proctoringPayload struct {
	Publishing bool `json:"publishing"`
}

type chunkMessage struct {
	Question int                 `json:"question"`
	Stream   session.ChunkStream `json:"stream"`
	Data     []byte              `json:"data"`
}

func (h *connection) dispatch(cl *realtime.Client, l *liveSession, msg realtime.WSMessage) {
	var err error
	switch msg.Event {
	case CmdBegin:
		// Begin waits on device replies that arrive through this read loop.
		go func() {
			if err := l.ctrl.Begin(l.ctx); err != nil && !errors.Is(err, session.ErrClosed) {
				sendError(cl, msg.Event, err)
			}
		}()
	case CmdSkip:
		err = l.ctrl.Skip()
	case CmdStop:
		err = l.ctrl.Stop()
	case CmdRerecord:
		err = l.ctrl.Rerecord()
	case CmdNext:
		err = l.ctrl.Next()
	case CmdSubmit:
		go h.submit(cl, l)
	case CmdChunk:
		var m chunkMessage
		if err = json.Unmarshal(msg.Data, &m); err != nil {
			break
		}
		err = l.ctrl.WriteChunk(m.Question, m.Stream, m.Data)
		if errors.Is(err, session.ErrForeignChunk) {
			h.svc.Logger.Debug("dropping stray chunk", zap.String("interview_id", cl.RoomID.String()), zap.Int("question", m.Question))
			err = nil
		}
	case EventMediaDevices, EventMediaResult:
		if rErr := l.devices.Resolve(msg.Data); rErr != nil {
			h.svc.Logger.Debug("unmatched device reply", zap.String("event", msg.Event), zap.Error(rErr))
		}
	default:
		err = errors.New("unknown event")
	}
	if err != nil {
		sendError(cl, msg.Event, err)
	}
}

// submit outlives the socket by a grace period so a dropped connection does
// not lose a write that is already under way.
func (h *connection) submit(cl *realtime.Client, l *liveSession) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(l.ctx), submitGrace)
	defer cancel()
	bundle, err := l.ctrl.Submit(ctx)
	if err != nil {
		sendError(cl, CmdSubmit, err)
		return
	}
	h.svc.Hub.Publish(cl.RoomID, EventSubmitted, bundle)
}

type errorPayload struct {
	Event   string       `json:"event,omitempty"`
	Kind    session.Kind `json:"kind,omitempty"`
	Message string       `json:"message"`
}

func sendError(cl *realtime.Client, event string, err error) {
	cl.Send(EventError, errorPayload{Event: event, Kind: session.KindOf(err), Message: err.Error()})
}
