package conduct

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-hire/backend/internal/auth"
	"github.com/aura-hire/backend/internal/models"
	"github.com/aura-hire/backend/internal/realtime"
	"github.com/aura-hire/backend/internal/session"
)

type memInterviews struct {
	mu        sync.Mutex
	items     map[uuid.UUID]*models.Interview
	completed map[uuid.UUID]session.Bundle
}

func (m *memInterviews) GetByID(_ context.Context, id uuid.UUID) (*models.Interview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iv, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *iv
	return &cp, nil
}

func (m *memInterviews) Complete(_ context.Context, id uuid.UUID, b session.Bundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[id] = b
	m.items[id].Status = models.InterviewCompleted
	return nil
}

func (m *memInterviews) bundle(id uuid.UUID) (session.Bundle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.completed[id]
	return b, ok
}

// stillClock never ticks; tests drive countdowns with commands only.
type stillClock struct{}

type stillTicker struct{ c chan time.Time }

func (stillClock) NewTicker(time.Duration) session.Ticker { return stillTicker{c: make(chan time.Time)} }
func (t stillTicker) C() <-chan time.Time                   { return t.c }
func (stillTicker) Reset(time.Duration)                     {}
func (stillTicker) Stop()                                   {}

type testEnv struct {
	store       *memInterviews
	jobs        *fakeJobs
	jwt         *auth.JWTService
	svc         *Service
	srv         *httptest.Server
	interview   uuid.UUID
	candidateID uuid.UUID
}

func newEnv(t *testing.T, status models.InterviewStatus) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		store: &memInterviews{
			items:     map[uuid.UUID]*models.Interview{},
			completed: map[uuid.UUID]session.Bundle{},
		},
		jobs:        &fakeJobs{},
		jwt:         auth.NewJWTService("secret", 1, 24),
		interview:   uuid.New(),
		candidateID: uuid.New(),
	}
	env.store.items[env.interview] = &models.Interview{
		ID:          env.interview,
		CandidateID: &env.candidateID,
		JobTitle:    "Engineer",
		Language:    "en",
		Status:      status,
		Notes:       json.RawMessage(`{"questions":["Only question"],"language":"en"}`),
	}
	env.svc = NewService(Deps{
		Interviews: env.store,
		Store:      env.store,
		Jobs:       env.jobs,
		Hub:        realtime.NewHub(nil, nil, nil),
		SFU:        realtime.NewSFU(nil, nil),
		JWT:        env.jwt,
		Clock:      stillClock{},
		Timing:     Timing{DrainTimeout: time.Second, DeviceTimeout: time.Second},
	})
	r := gin.New()
	env.svc.Routes(r)
	env.srv = httptest.NewServer(r)
	t.Cleanup(func() {
		env.svc.Shutdown()
		env.srv.Close()
	})
	return env
}

func (e *testEnv) inviteToken(t *testing.T) string {
	t.Helper()
	tok, err := e.jwt.GenerateInvite(e.candidateID, "cand@example.com", e.interview)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) url(token string) string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/interviews/" + e.interview.String() + "?token=" + token
}

func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.url(token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(realtime.WSMessage) bool) realtime.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg realtime.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func isEvent(event string) func(realtime.WSMessage) bool {
	return func(m realtime.WSMessage) bool { return m.Event == event }
}

func inPhase(phase session.Phase) func(realtime.WSMessage) bool {
	return func(m realtime.WSMessage) bool {
		if m.Event != EventSessionState {
			return false
		}
		var snap session.Snapshot
		return json.Unmarshal(m.Data, &snap) == nil && snap.State.Phase == phase
	}
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(realtime.WSMessage{Event: event, Data: raw}))
}

func TestCandidateRunsInterviewTextOnly(t *testing.T) {
	env := newEnv(t, models.InterviewInProgress)
	conn := env.dial(t, env.inviteToken(t))

	readUntil(t, conn, inPhase(session.PhaseIdle))
	assert.True(t, env.svc.Live(env.interview))

	send(t, conn, CmdBegin, nil)
	enum := readUntil(t, conn, isEvent(EventMediaEnumerate))
	var req deviceRequest
	require.NoError(t, json.Unmarshal(enum.Data, &req))
	send(t, conn, EventMediaDevices, map[string]any{"request_id": req.RequestID, "devices": []any{}})

	adv := readUntil(t, conn, isEvent(EventAdvisory))
	var a session.Advisory
	require.NoError(t, json.Unmarshal(adv.Data, &a))
	assert.Equal(t, session.MediaUnavailable, a.Kind)
	readUntil(t, conn, inPhase(session.PhasePreparing))

	send(t, conn, CmdSkip, nil)
	readUntil(t, conn, inPhase(session.PhaseRecording))
	send(t, conn, CmdStop, nil)
	readUntil(t, conn, inPhase(session.PhaseReviewing))
	send(t, conn, CmdNext, nil)
	readUntil(t, conn, inPhase(session.PhaseCompleted))
	send(t, conn, CmdSubmit, nil)

	msg := readUntil(t, conn, isEvent(EventSubmitted))
	var b session.Bundle
	require.NoError(t, json.Unmarshal(msg.Data, &b))
	assert.Equal(t, []string{"Only question"}, b.Questions)

	stored, ok := env.store.bundle(env.interview)
	require.True(t, ok)
	assert.Equal(t, "en", stored.Language)
	assert.Equal(t, []uuid.UUID{env.interview}, env.jobs.analysed())
}

func TestInvalidCommandReportsError(t *testing.T) {
	env := newEnv(t, models.InterviewInProgress)
	conn := env.dial(t, env.inviteToken(t))
	readUntil(t, conn, inPhase(session.PhaseIdle))

	send(t, conn, CmdNext, nil)
	msg := readUntil(t, conn, isEvent(EventError))
	var p errorPayload
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	assert.Equal(t, CmdNext, p.Event)
	assert.NotEmpty(t, p.Message)

	send(t, conn, "dance", nil)
	msg = readUntil(t, conn, isEvent(EventError))
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	assert.Equal(t, "unknown event", p.Message)
}

func TestSecondCandidateConnectionReplacesFirst(t *testing.T) {
	env := newEnv(t, models.InterviewInProgress)
	first := env.dial(t, env.inviteToken(t))
	readUntil(t, first, inPhase(session.PhaseIdle))

	second := env.dial(t, env.inviteToken(t))
	readUntil(t, second, inPhase(session.PhaseIdle))

	msg := readUntil(t, first, isEvent(EventError))
	assert.Contains(t, string(msg.Data), errReplaced.Error())
	assert.True(t, env.svc.Live(env.interview))

	require.NoError(t, second.Close())
	require.Eventually(t, func() bool { return !env.svc.Live(env.interview) }, 2*time.Second, 10*time.Millisecond)
}

type recordingSignaler struct {
	mu      sync.Mutex
	signals []*realtime.Client
	leaves  []*realtime.Client
}

func (s *recordingSignaler) HandleSignal(c *realtime.Client, msg realtime.WSMessage) bool {
	if msg.Event != realtime.EventPublisherOffer {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, c)
	return true
}

func (s *recordingSignaler) Publishing(uuid.UUID) bool { return false }

func (s *recordingSignaler) Leave(c *realtime.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves = append(s.leaves, c)
}

func (s *recordingSignaler) left() []*realtime.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*realtime.Client(nil), s.leaves...)
}

func (s *recordingSignaler) from() []*realtime.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*realtime.Client(nil), s.signals...)
}

func TestReplacedCandidateCannotSignal(t *testing.T) {
	env := newEnv(t, models.InterviewInProgress)
	sfu := &recordingSignaler{}
	env.svc.SFU = sfu

	first := env.dial(t, env.inviteToken(t))
	readUntil(t, first, inPhase(session.PhaseIdle))
	stale := env.svc.liveFor(env.interview).client

	second := env.dial(t, env.inviteToken(t))
	readUntil(t, second, inPhase(session.PhaseIdle))
	fresh := env.svc.liveFor(env.interview).client
	require.NotSame(t, stale, fresh)

	// A message still in flight from the old socket.
	h := &connection{svc: env.svc, interview: &models.Interview{ID: env.interview}}
	h.HandleMessage(stale, realtime.WSMessage{Event: realtime.EventPublisherOffer, Data: json.RawMessage(`{}`)})
	assert.Empty(t, sfu.from())

	send(t, second, realtime.EventPublisherOffer, map[string]string{"sdp": "offer"})
	require.Eventually(t, func() bool { return len(sfu.from()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Same(t, fresh, sfu.from()[0])
}

func TestEndDisconnectsCandidateAndTellsRoom(t *testing.T) {
	env := newEnv(t, models.InterviewInProgress)
	sfu := &recordingSignaler{}
	env.svc.SFU = sfu

	cand := env.dial(t, env.inviteToken(t))
	readUntil(t, cand, inPhase(session.PhaseIdle))
	candidate := env.svc.liveFor(env.interview).client

	tok, err := env.jwt.Generate(uuid.New(), "admin@example.com", string(models.RoleAdmin))
	require.NoError(t, err)
	rev := env.dial(t, tok)
	readUntil(t, rev, isEvent(EventProctoring))

	require.True(t, env.svc.End(env.interview, "interview cancelled"))
	assert.False(t, env.svc.Live(env.interview))
	assert.Contains(t, sfu.left(), candidate)

	for _, conn := range []*websocket.Conn{cand, rev} {
		msg := readUntil(t, conn, isEvent(EventSessionEnded))
		var ended endedPayload
		require.NoError(t, json.Unmarshal(msg.Data, &ended))
		assert.Equal(t, "interview cancelled", ended.Reason)
	}

	// The candidate socket is closed by the server.
	require.NoError(t, cand.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := cand.ReadMessage(); err != nil {
			break
		}
	}
	assert.False(t, env.svc.End(env.interview, "interview cancelled"))
}

func TestReviewerSeesLiveState(t *testing.T) {
	env := newEnv(t, models.InterviewInProgress)
	cand := env.dial(t, env.inviteToken(t))
	readUntil(t, cand, inPhase(session.PhaseIdle))

	tok, err := env.jwt.Generate(uuid.New(), "rev@example.com", string(models.RoleReviewer))
	require.NoError(t, err)
	rev := env.dial(t, tok)
	readUntil(t, rev, inPhase(session.PhaseIdle))
	pr := readUntil(t, rev, isEvent(EventProctoring))
	var proctoring proctoringPayload
	require.NoError(t, json.Unmarshal(pr.Data, &proctoring))
	assert.False(t, proctoring.Publishing)

	send(t, cand, CmdBegin, nil)
	enum := readUntil(t, cand, isEvent(EventMediaEnumerate))
	var req deviceRequest
	require.NoError(t, json.Unmarshal(enum.Data, &req))
	send(t, cand, EventMediaDevices, map[string]any{"request_id": req.RequestID})

	readUntil(t, rev, inPhase(session.PhasePreparing))

	// Reviewer commands never reach the controller.
	send(t, rev, CmdSkip, nil)
	require.NoError(t, rev.Close())
	require.Eventually(t, func() bool { return env.svc.Live(env.interview) }, time.Second, 10*time.Millisecond)
}

func TestServeWSRejects(t *testing.T) {
	env := newEnv(t, models.InterviewPending)
	other, err := env.jwt.GenerateInvite(uuid.New(), "x@example.com", uuid.New())
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"bad id", "/ws/interviews/nope?token=" + env.inviteToken(t), http.StatusBadRequest},
		{"no token", "/ws/interviews/" + env.interview.String(), http.StatusUnauthorized},
		{"unknown interview", "/ws/interviews/" + uuid.NewString() + "?token=" + env.inviteToken(t), http.StatusNotFound},
		{"other candidate", "/ws/interviews/" + env.interview.String() + "?token=" + other, http.StatusForbidden},
		{"not started", "/ws/interviews/" + env.interview.String() + "?token=" + env.inviteToken(t), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(env.srv.URL + tt.path)
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
