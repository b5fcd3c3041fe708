package interviews

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aura-hire/backend/internal/ai"
	"github.com/aura-hire/backend/internal/auth"
	"github.com/aura-hire/backend/internal/export"
	"github.com/aura-hire/backend/internal/middleware"
	"github.com/aura-hire/backend/internal/models"
	"github.com/aura-hire/backend/internal/session"
)

type memStore struct {
	mu         sync.Mutex
	interviews map[uuid.UUID]*models.Interview
}

func newMemStore() *memStore { return &memStore{interviews: make(map[uuid.UUID]*models.Interview)} }

func (s *memStore) put(iv models.Interview) *models.Interview {
	s.mu.Lock()
	defer s.mu.Unlock()
	if iv.ID == uuid.Nil {
		iv.ID = uuid.New()
	}
	s.interviews[iv.ID] = &iv
	return &iv
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv, ok := s.interviews[id]
	if !ok {
		return nil, nil
	}
	cp := *iv
	return &cp, nil
}

func (s *memStore) Create(_ context.Context, iv *models.Interview) error {
	iv.ID = uuid.New()
	iv.CreatedAt = time.Now()
	s.put(*iv)
	return nil
}

func (s *memStore) List(_ context.Context, f ListFilter) ([]models.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Interview
	for _, iv := range s.interviews {
		if f.CandidateID != nil && !iv.BelongsTo(*f.CandidateID) {
			continue
		}
		if len(f.Statuses) > 0 {
			match := false
			for _, st := range f.Statuses {
				match = match || st == iv.Status
			}
			if !match {
				continue
			}
		}
		out = append(out, *iv)
	}
	return out, nil
}

func (s *memStore) Start(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv := s.interviews[id]
	if iv == nil || iv.Status != models.InterviewPending {
		return false, nil
	}
	iv.Status = models.InterviewInProgress
	return true, nil
}

func (s *memStore) Decide(_ context.Context, id uuid.UUID, d models.Decision) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv := s.interviews[id]
	if iv == nil || iv.Status != models.InterviewCompleted {
		return false, nil
	}
	iv.Status, _ = d.Status.Status()
	iv.Notes = mergeNotes(iv.Notes, map[string]any{"decision": d})
	return true, nil
}

func (s *memStore) Cancel(_ context.Context, id uuid.UUID, c models.Cancellation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv := s.interviews[id]
	if iv == nil || !iv.Status.Cancellable() {
		return false, nil
	}
	iv.Status = models.InterviewCancelled
	iv.Notes = mergeNotes(iv.Notes, map[string]any{"cancellation": c})
	return true, nil
}

func (s *memStore) Update(_ context.Context, id uuid.UUID, e Edit) (*models.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv := s.interviews[id]
	if iv == nil || iv.Status != models.InterviewPending {
		return nil, nil
	}
	patch := map[string]any{}
	if e.JobTitle != nil {
		iv.JobTitle = *e.JobTitle
	}
	if e.Language != nil {
		iv.Language = *e.Language
		patch["language"] = *e.Language
	}
	if e.Questions != nil {
		patch["questions"] = e.Questions
	}
	iv.Notes = mergeNotes(iv.Notes, patch)
	cp := *iv
	return &cp, nil
}

type endedSessions struct {
	mu    sync.Mutex
	ended []uuid.UUID
}

func (e *endedSessions) End(id uuid.UUID, _ string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ended = append(e.ended, id)
	return true
}

func (s *memStore) SaveAnalysis(_ context.Context, id uuid.UUID, analysis json.RawMessage, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv := s.interviews[id]
	iv.Notes = mergeNotes(iv.Notes, map[string]any{"analysis": analysis, "analyzed_at": at})
	return nil
}

func mergeNotes(raw json.RawMessage, patch map[string]any) json.RawMessage {
	doc := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &doc)
	}
	for k, v := range patch {
		doc[k] = v
	}
	out, _ := json.Marshal(doc)
	return out
}

type memCandidates struct {
	byEmail map[string]*models.User
}

func (m *memCandidates) EnsureCandidate(_ context.Context, email, name string) (*models.User, error) {
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	u := &models.User{ID: uuid.New(), Email: email, FullName: name, Role: models.RoleCandidate}
	m.byEmail[email] = u
	return u, nil
}

type fixedQuestions []string

func (q fixedQuestions) Generate(context.Context, ai.QuestionRequest) []string { return q }

type fakeMedia struct{ list []models.InterviewMedia }

func (f fakeMedia) List(context.Context, uuid.UUID) ([]models.InterviewMedia, error) { return f.list, nil }

type fakeLinker struct{}

func (fakeLinker) PresignAnswerDownload(_ context.Context, key string) (string, error) {
	return "https://signed.example/" + key, nil
}

type testEnv struct {
	router     *gin.Engine
	store      *memStore
	sessions   *endedSessions
	candidates *memCandidates
	jwt        *auth.JWTService
	adminID    uuid.UUID
}

func newEnv(t *testing.T, analyzer InterviewAnalyzer) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		store:      newMemStore(),
		sessions:   &endedSessions{},
		candidates: &memCandidates{byEmail: map[string]*models.User{}},
		jwt:        auth.NewJWTService("secret", 1, 24),
		adminID:    uuid.New(),
	}
	h := NewHandler(Deps{
		Store:      env.store,
		Media:      fakeMedia{list: []models.InterviewMedia{{QuestionIndex: 0, S3Key: "answers/x/0.webm"}}},
		Linker:     fakeLinker{},
		Candidates: env.candidates,
		Questions:  fixedQuestions{"Q one", "Q two"},
		Analysis:   NewAnalysisRunner(env.store, analyzer, nil),
		Transcriber: session.TranscriberFunc(func(_ context.Context, audio []byte, language string) (string, error) {
			return language + ":" + string(audio), nil
		}),
		Sessions: env.sessions,
		JWT:      env.jwt,
	})
	env.router = gin.New()
	api := env.router.Group("")
	api.Use(middleware.JWT(env.jwt))
	h.Routes(api)
	return env
}

func (e *testEnv) token(t *testing.T, id uuid.UUID, role models.Role) string {
	t.Helper()
	tok, err := e.jwt.Generate(id, string(role)+"@example.com", string(role))
	require.NoError(t, err)
	return tok
}

func (e *testEnv) adminToken(t *testing.T) string { return e.token(t, e.adminID, models.RoleAdmin) }

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if into != nil {
		require.NoError(t, json.Unmarshal(env.Data, into))
	}
	return env
}

func completedInterview(candidate uuid.UUID) models.Interview {
	return models.Interview{
		CandidateID: &candidate,
		JobTitle:    "Engineer",
		Language:    "en",
		Status:      models.InterviewCompleted,
		Notes:       json.RawMessage(`{"questions":["Who are you?"],"transcripts":{"0":"A builder"},"language":"en"}`),
	}
}

func noAnalyzer() InterviewAnalyzer { return nil }

func TestCreateIssuesScopedInvite(t *testing.T) {
	env := newEnv(t, noAnalyzer())

	w := env.do(http.MethodPost, "/interviews", env.adminToken(t), CreateRequest{
		CandidateEmail: "Ada@Example.com",
		CandidateName:  "Ada",
		Language:       "KO",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp CreateResponse
	decode(t, w, &resp)
	require.Equal(t, []string{"Q one", "Q two"}, resp.Questions)
	require.Equal(t, models.InterviewPending, resp.Interview.Status)
	require.Equal(t, ai.DefaultJobTitle, resp.Interview.JobTitle)
	require.Equal(t, "ko", resp.Interview.Language)

	notes, err := models.ParseNotes(resp.Interview.Notes)
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", notes.CandidateEmail)
	require.Equal(t, []string{"Q one", "Q two"}, session.NormalizeQuestions(notes.Questions, "ko"))

	claims, err := env.jwt.Validate(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "candidate", claims.Role)
	require.NotNil(t, claims.InterviewID)
	require.Equal(t, resp.Interview.ID, *claims.InterviewID)
	require.Equal(t, env.candidates.byEmail["ada@example.com"].ID, claims.UserID)
}

func TestCreateRequiresAdmin(t *testing.T) {
	env := newEnv(t, noAnalyzer())
	w := env.do(http.MethodPost, "/interviews", env.token(t, uuid.New(), models.RoleReviewer), CreateRequest{CandidateEmail: "a@b.co"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodPost, "/interviews", "", CreateRequest{CandidateEmail: "a@b.co"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCandidateAccessRules(t *testing.T) {
	env := newEnv(t, noAnalyzer())
	candidate := uuid.New()
	iv := env.store.put(models.Interview{CandidateID: &candidate, JobTitle: "Dev", ResumeText: "secret resume", Status: models.InterviewPending, Notes: json.RawMessage(`{"questions":["Q"],"candidate_email":"c@x.io"}`)})
	other := env.store.put(models.Interview{CandidateID: &candidate, JobTitle: "Other", Status: models.InterviewPending})

	own := env.token(t, candidate, models.RoleCandidate)
	w := env.do(http.MethodGet, "/interviews/"+iv.ID.String(), own, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view struct {
		ResumeText string          `json:"resume_text"`
		NextStep   string          `json:"next_step"`
		Notes      json.RawMessage `json:"notes"`
	}
	decode(t, w, &view)
	require.Empty(t, view.ResumeText)
	require.Equal(t, models.NextStepPrepare, view.NextStep)
	require.NotContains(t, string(view.Notes), "candidate_email")

	stranger := env.token(t, uuid.New(), models.RoleCandidate)
	require.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/interviews/"+iv.ID.String(), stranger, nil).Code)

	invite, err := env.jwt.GenerateInvite(candidate, "c@x.io", iv.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/interviews/"+iv.ID.String(), invite, nil).Code)
	require.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/interviews/"+other.ID.String(), invite, nil).Code)

	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/interviews/"+uuid.NewString(), env.adminToken(t), nil).Code)
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/interviews/nope", env.adminToken(t), nil).Code)
}

func TestListScopesCandidates(t *testing.T) {
	env := newEnv(t, noAnalyzer())
	candidate := uuid.New()
	env.store.put(models.Interview{CandidateID: &candidate, Status: models.InterviewPending})
	env.store.put(completedInterview(uuid.New()))

	var views []View
	decode(t, env.do(http.MethodGet, "/interviews", env.token(t, candidate, models.RoleCandidate), nil), &views)
	require.Len(t, views, 1)

	decode(t, env.do(http.MethodGet, "/interviews?status=completed,hired", env.adminToken(t), nil), &views)
	require.Len(t, views, 1)
	require.Equal(t, models.NextStepDone, views[0].NextStep)

	require.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/interviews?status=archived", env.adminToken(t), nil).Code)
}

func TestStartIsConditional(t *testing.T) {
	env := newEnv(t, noAnalyzer())
	candidate := uuid.New()
	iv := env.store.put(models.Interview{CandidateID: &candidate, Status: models.InterviewPending})
	tok := env.token(t, candidate, models.RoleCandidate)

	w := env.do(http.MethodPost, "/interviews/"+iv.ID.String()+"/start", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view View
	decode(t, w, &view)
	require.Equal(t, models.NextStepConduct, view.NextStep)

	require.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/interviews/"+iv.ID.String()+"/start", tok, nil).Code)
	require.Equal(t, http.StatusForbidden, env.do(http.MethodPost, "/interviews/"+iv.ID.String()+"/start", env.adminToken(t), nil).Code)
}

func TestDecisionLifecycle(t *testing.T) {
	env := newEnv(t, noAnalyzer())
	admin := env.adminToken(t)

	pending := env.store.put(models.Interview{Status: models.InterviewInProgress})
	w := env.do(http.MethodPost, "/interviews/"+pending.ID.String()+"/decision", admin, DecisionRequest{Decision: models.DecisionAccepted})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	iv := env.store.put(completedInterview(uuid.New()))
	path := "/interviews/" + iv.ID.String() + "/decision"

	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, path, admin, nil).Code)
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, path, admin, DecisionRequest{Decision: "maybe"}).Code)

	w = env.do(http.MethodPost, path, admin, DecisionRequest{Decision: models.DecisionAccepted, Feedback: " Strong "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var d models.Decision
	decode(t, w, &d)
	require.Equal(t, "Strong", d.Feedback)
	require.Equal(t, env.adminID, d.DecidedBy)

	stored, _ := env.store.GetByID(context.Background(), iv.ID)
	require.Equal(t, models.InterviewHired, stored.Status)

	w = env.do(http.MethodPost, path, admin, DecisionRequest{Decision: models.DecisionAccepted, Feedback: "changed"})
	require.Equal(t, http.StatusOK, w.Code)
	var again models.Decision
	decode(t, w, &again)
	require.Equal(t, "Strong", again.Feedback)

	require.Equal(t, http.StatusConflict, env.do(http.MethodPost, path, admin, DecisionRequest{Decision: models.DecisionRejected}).Code)

	var fetched models.Decision
	decode(t, env.do(http.MethodGet, path, env.token(t, uuid.New(), models.RoleReviewer), nil), &fetched)
	require.Equal(t, models.DecisionAccepted, fetched.Status)
}

func TestAnalyzeStoresAnalysis(t *testing.T) {
	calls := 0
	analyzer := ai.NewAnalyzer(ai.CompleterFunc(func(_ context.Context, p ai.Prompt) (string, error) {
		calls++
		require.Contains(t, p.User, "Q1: Who are you?\nA1: A builder")
		return `{"summary":"Good"}`, nil
	}), nil, nil)
	env := newEnv(t, analyzer)
	admin := env.adminToken(t)
	iv := env.store.put(completedInterview(uuid.New()))

	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/interviews/"+iv.ID.String()+"/analysis", admin, nil).Code)

	w := env.do(http.MethodPost, "/interviews/"+iv.ID.String()+"/analyze", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res AnalysisResult
	decode(t, env.do(http.MethodGet, "/interviews/"+iv.ID.String()+"/analysis", admin, nil), &res)
	require.JSONEq(t, `{"summary":"Good"}`, string(res.Analysis))
	require.NotNil(t, res.AnalyzedAt)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/interviews/"+iv.ID.String()+"/analyze", admin, nil).Code)
	require.Equal(t, 2, calls)
}

func TestAnalyzeErrors(t *testing.T) {
	failing := ai.NewAnalyzer(ai.CompleterFunc(func(context.Context, ai.Prompt) (string, error) {
		return "", errors.New("vendor down")
	}), nil, nil)
	env := newEnv(t, failing)
	admin := env.adminToken(t)

	inProgress := env.store.put(models.Interview{Status: models.InterviewInProgress})
	require.Equal(t, http.StatusUnprocessableEntity, env.do(http.MethodPost, "/interviews/"+inProgress.ID.String()+"/analyze", admin, nil).Code)

	empty := env.store.put(models.Interview{Status: models.InterviewCompleted, Notes: json.RawMessage(`{"questions":["Q"]}`)})
	require.Equal(t, http.StatusUnprocessableEntity, env.do(http.MethodPost, "/interviews/"+empty.ID.String()+"/analyze", admin, nil).Code)

	iv := env.store.put(completedInterview(uuid.New()))
	require.Equal(t, http.StatusBadGateway, env.do(http.MethodPost, "/interviews/"+iv.ID.String()+"/analyze", admin, nil).Code)
}

func TestListMediaPresigns(t *testing.T) {
	env := newEnv(t, noAnalyzer())
	iv := env.store.put(completedInterview(uuid.New()))

	var media []models.InterviewMedia
	decode(t, env.do(http.MethodGet, "/interviews/"+iv.ID.String()+"/media", env.adminToken(t), nil), &media)
	require.Len(t, media, 1)
	require.Equal(t, "https://signed.example/answers/x/0.webm", media[0].DownloadURL)
}

func TestExportReturnsWorkbook(t *testing.T) {
	env := newEnv(t, noAnalyzer())
	env.store.put(completedInterview(uuid.New()))

	w := env.do(http.MethodGet, "/interviews/export", env.adminToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	require.NotZero(t, w.Body.Len())
}

func TestSpeechToText(t *testing.T) {
	env := newEnv(t, noAnalyzer())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "clip.webm")
	require.NoError(t, err)
	_, _ = part.Write([]byte("voice"))
	require.NoError(t, mw.WriteField("language", "th"))
	require.NoError(t, mw.WriteField("questionIndex", "2"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/speech-to-text", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token(t, uuid.New(), models.RoleCandidate))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Transcript    string `json:"transcript"`
		QuestionIndex int    `json:"questionIndex"`
		Language      string `json:"language"`
	}
	decode(t, w, &out)
	require.Equal(t, "th:voice", out.Transcript)
	require.Equal(t, 2, out.QuestionIndex)

	missing := env.do(http.MethodPost, "/speech-to-text", env.token(t, uuid.New(), models.RoleCandidate), nil)
	require.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestCancelEndsLiveSession(t *testing.T) {
	env := newEnv(t, noAnalyzer())
	candidate := uuid.New()
	iv := env.store.put(models.Interview{CandidateID: &candidate, JobTitle: "Dev", Status: models.InterviewInProgress,
		Notes: json.RawMessage(`{"questions":["Q"]}`)})
	path := "/interviews/" + iv.ID.String() + "/cancel"

	w := env.do(http.MethodPost, path, env.token(t, candidate, models.RoleCandidate), nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodPost, path, env.adminToken(t), CancelRequest{Reason: " position filled "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view View
	decode(t, w, &view)
	require.Equal(t, models.InterviewCancelled, view.Status)
	require.Equal(t, models.NextStepDone, view.NextStep)
	notes, err := models.ParseNotes(view.Notes)
	require.NoError(t, err)
	require.NotNil(t, notes.Cancellation)
	require.Equal(t, "position filled", notes.Cancellation.Reason)
	require.Equal(t, env.adminID, notes.Cancellation.CancelledBy)
	require.Equal(t, []uuid.UUID{iv.ID}, env.sessions.ended)

	// Repeating is a no-op.
	w = env.do(http.MethodPost, path, env.adminToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, env.sessions.ended, 1)

	// The candidate can no longer start it.
	w = env.do(http.MethodPost, "/interviews/"+iv.ID.String()+"/start", env.token(t, candidate, models.RoleCandidate), nil)
	require.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodGet, "/interviews?status=cancelled", env.adminToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list []View
	decode(t, w, &list)
	require.Len(t, list, 1)
	require.Equal(t, iv.ID, list[0].ID)
}

func TestCancelRejectsFinishedInterview(t *testing.T) {
	env := newEnv(t, noAnalyzer())
	iv := env.store.put(completedInterview(uuid.New()))

	w := env.do(http.MethodPost, "/interviews/"+iv.ID.String()+"/cancel", env.adminToken(t), nil)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Empty(t, env.sessions.ended)
}

func TestUpdatePendingInterview(t *testing.T) {
	env := newEnv(t, noAnalyzer())
	candidate := uuid.New()
	iv := env.store.put(models.Interview{CandidateID: &candidate, JobTitle: "Dev", Language: "en", Status: models.InterviewPending,
		Notes: json.RawMessage(`{"questions":["Old"],"language":"en","candidate_email":"c@x.io"}`)})
	path := "/interviews/" + iv.ID.String()

	title, lang := "  Staff Engineer ", "KO"
	w := env.do(http.MethodPatch, path, env.adminToken(t), UpdateRequest{
		JobTitle:  &title,
		Language:  &lang,
		Questions: []string{" First? ", "Second?"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view View
	decode(t, w, &view)
	require.Equal(t, "Staff Engineer", view.JobTitle)
	require.Equal(t, "ko", view.Language)

	notes, err := models.ParseNotes(view.Notes)
	require.NoError(t, err)
	require.Equal(t, "c@x.io", notes.CandidateEmail)
	require.Equal(t, "ko", notes.Language)
	require.Equal(t, []string{"First?", "Second?"}, session.NormalizeQuestions(notes.Questions, "ko"))

	cases := []struct {
		name string
		body any
	}{
		{"nothing", map[string]any{}},
		{"empty questions", map[string]any{"questions": []string{}}},
		{"blank question", map[string]any{"questions": []string{"ok", "  "}}},
		{"blank title", map[string]any{"job_title": " "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(http.MethodPatch, path, env.adminToken(t), tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestUpdateRejectedOnceStarted(t *testing.T) {
	env := newEnv(t, noAnalyzer())
	candidate := uuid.New()
	iv := env.store.put(models.Interview{CandidateID: &candidate, JobTitle: "Dev", Status: models.InterviewInProgress,
		Notes: json.RawMessage(`{"questions":["Fixed"]}`)})

	w := env.do(http.MethodPatch, "/interviews/"+iv.ID.String(), env.adminToken(t), UpdateRequest{Questions: []string{"Changed"}})
	require.Equal(t, http.StatusConflict, w.Code)

	stored, err := env.store.GetByID(context.Background(), iv.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{"questions":["Fixed"]}`, string(stored.Notes))

	w = env.do(http.MethodPatch, "/interviews/"+iv.ID.String(), env.token(t, candidate, models.RoleCandidate), UpdateRequest{Questions: []string{"Mine"}})
	require.Equal(t, http.StatusForbidden, w.Code)
}
