// Package interviews is the admin and candidate HTTP surface for AI
// interviews: creation with generated questions, decisions, analysis, media
// and export.
package interviews

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-hire/backend/internal/ai"
	"github.com/aura-hire/backend/internal/auth"
	"github.com/aura-hire/backend/internal/export"
	"github.com/aura-hire/backend/internal/middleware"
	"github.com/aura-hire/backend/internal/models"
	"github.com/aura-hire/backend/internal/session"
	"github.com/aura-hire/backend/pkg/response"
)

// maxAudioUpload bounds POST /speech-to-text bodies.
const maxAudioUpload = 25 << 20

// Store is the interview persistence the handler needs.
type Store interface {
	AnalysisStore
	Create(ctx context.Context, iv *models.Interview) error
	List(ctx context.Context, f ListFilter) ([]models.Interview, error)
	Start(ctx context.Context, id uuid.UUID) (bool, error)
	Decide(ctx context.Context, id uuid.UUID, d models.Decision) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID, c models.Cancellation) (bool, error)
	Update(ctx context.Context, id uuid.UUID, e Edit) (*models.Interview, error)
}

// MediaLister lists archived answers.
type MediaLister interface {
	List(ctx context.Context, interviewID uuid.UUID) ([]models.InterviewMedia, error)
}

// MediaLinker presigns archived answer downloads.
type MediaLinker interface {
	PresignAnswerDownload(ctx context.Context, key string) (string, error)
}

// CandidateStore finds or creates candidate accounts.
type CandidateStore interface {
	EnsureCandidate(ctx context.Context, email, fullName string) (*models.User, error)
}

// QuestionSource writes interview questions.
type QuestionSource interface {
	Generate(ctx context.Context, req ai.QuestionRequest) []string
}

// LiveSessions ends a candidate's running session.
type LiveSessions interface {
	End(id uuid.UUID, reason string) bool
}

// Deps wires the handler. Media, Linker and Transcriber may be nil; their
// endpoints then answer 503. Sessions may be nil.
type Deps struct {
	Store       Store
	Media       MediaLister
	Linker      MediaLinker
	Candidates  CandidateStore
	Questions   QuestionSource
	Analysis    *AnalysisRunner
	Transcriber session.Transcriber
	Sessions    LiveSessions
	JWT         *auth.JWTService
	Logger      *zap.Logger
}

// Handler handles interview HTTP endpoints.
type Handler struct {
	Deps
	now func() time.Time
}

func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Handler{Deps: deps, now: time.Now}
}

// CreateRequest is the body for POST /interviews.
type CreateRequest struct {
	CandidateEmail string `json:"candidate_email" binding:"required,email"`
	CandidateName  string `json:"candidate_name"`
	JobTitle       string `json:"job_title"`
	ResumeText     string `json:"resume_text"`
	Language       string `json:"language"`
	ApplicationID  string `json:"application_id"`
}

// CreateResponse carries the new interview and the candidate's invite token.
type CreateResponse struct {
	Interview   *models.Interview `json:"interview"`
	Questions   []string          `json:"questions"`
	AccessToken string            `json:"access_token"`
}

// DecisionRequest is the body for POST /interviews/:id/decision.
type DecisionRequest struct {
	Decision   models.DecisionOutcome `json:"decision" binding:"required"`
	Feedback   string                 `json:"feedback"`
	AdminNotes string                 `json:"admin_notes"`
}

// CancelRequest is the optional body for POST /interviews/:id/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// UpdateRequest is the body for PATCH /interviews/:id. Absent fields are
// left unchanged.
type UpdateRequest struct {
	JobTitle  *string  `json:"job_title"`
	Language  *string  `json:"language"`
	Questions []string `json:"questions"`
}

// View is an interview with its routing hint.
type View struct {
	*models.Interview
	NextStep string `json:"next_step"`
}

// Create handles POST /interviews (admin only).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	adminID, _ := middleware.UserID(c)

	email := strings.ToLower(strings.TrimSpace(req.CandidateEmail))
	name := strings.TrimSpace(req.CandidateName)
	candidate, err := h.Candidates.EnsureCandidate(ctx, email, name)
	if err != nil || candidate == nil {
		h.Logger.Error("ensure candidate failed", zap.String("email", email), zap.Error(err))
		response.Internal(c, "failed to create candidate")
		return
	}
	if candidate.Role != models.RoleCandidate {
		response.Conflict(c, "email belongs to a staff account")
		return
	}

	language := strings.ToLower(strings.TrimSpace(req.Language))
	if language == "" {
		language = session.DefaultLanguage
	}
	jobTitle := strings.TrimSpace(req.JobTitle)
	if jobTitle == "" {
		jobTitle = ai.DefaultJobTitle
	}
	questions := h.Questions.Generate(ctx, ai.QuestionRequest{JobTitle: jobTitle, Resume: req.ResumeText, Language: language})

	notes, err := json.Marshal(models.InterviewNotes{
		Questions:      mustMarshal(questions),
		Language:       language,
		ApplicationID:  strings.TrimSpace(req.ApplicationID),
		CandidateEmail: email,
		CandidateName:  name,
	})
	if err != nil {
		response.Internal(c, "failed to encode notes")
		return
	}

	iv := &models.Interview{
		CandidateID: &candidate.ID,
		CreatedBy:   &adminID,
		JobTitle:    jobTitle,
		ResumeText:  strings.TrimSpace(req.ResumeText),
		Language:    language,
		Status:      models.InterviewPending,
		Notes:       notes,
	}
	if err := h.Store.Create(ctx, iv); err != nil {
		h.Logger.Error("create interview failed", zap.Error(err))
		response.Internal(c, "failed to create interview")
		return
	}

	token, err := h.JWT.GenerateInvite(candidate.ID, candidate.Email, iv.ID)
	if err != nil {
		response.Internal(c, "failed to generate access token")
		return
	}
	h.Logger.Info("interview created",
		zap.String("interview_id", iv.ID.String()),
		zap.String("candidate_id", candidate.ID.String()),
		zap.String("language", language),
		zap.Int("questions", len(questions)))
	response.Created(c, CreateResponse{Interview: iv, Questions: questions, AccessToken: token})
}

// List handles GET /interviews. Reviewers see everything, optionally
// filtered by ?status=a,b; candidates see their own interviews.
func (h *Handler) List(c *gin.Context) {
	var f ListFilter
	for _, s := range strings.Split(c.Query("status"), ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		status := models.InterviewStatus(s)
		if !validStatus(status) {
			response.BadRequest(c, "invalid status "+strconv.Quote(s))
			return
		}
		f.Statuses = append(f.Statuses, status)
	}
	reviewer := middleware.UserRole(c).CanReview()
	if !reviewer {
		userID, _ := middleware.UserID(c)
		f.CandidateID = &userID
	}

	list, err := h.Store.List(c.Request.Context(), f)
	if err != nil {
		h.Logger.Error("list interviews failed", zap.Error(err))
		response.Internal(c, "failed to list interviews")
		return
	}
	views := make([]View, 0, len(list))
	for i := range list {
		iv := &list[i]
		if !reviewer {
			iv = candidateView(iv)
		}
		views = append(views, View{Interview: iv, NextStep: iv.NextStep()})
	}
	response.OK(c, views)
}

// Get handles GET /interviews/:id.
func (h *Handler) Get(c *gin.Context) {
	iv := interviewFrom(c)
	if !middleware.UserRole(c).CanReview() {
		iv = candidateView(iv)
	}
	response.OK(c, View{Interview: iv, NextStep: iv.NextStep()})
}

// Start handles POST /interviews/:id/start (the interview's candidate only).
func (h *Handler) Start(c *gin.Context) {
	iv := interviewFrom(c)
	userID, _ := middleware.UserID(c)
	if !iv.BelongsTo(userID) {
		response.Forbidden(c, "only the candidate can start the interview")
		return
	}
	ok, err := h.Store.Start(c.Request.Context(), iv.ID)
	if err != nil {
		h.Logger.Error("start interview failed", zap.String("interview_id", iv.ID.String()), zap.Error(err))
		response.Internal(c, "failed to start interview")
		return
	}
	if !ok {
		response.Conflict(c, "interview is not pending")
		return
	}
	h.Logger.Info("interview started", zap.String("interview_id", iv.ID.String()))
	iv.Status = models.InterviewInProgress
	response.OK(c, View{Interview: candidateView(iv), NextStep: iv.NextStep()})
}

// Update handles PATCH /interviews/:id (admin only). Questions, language
// and job title are fixed once the candidate has started.
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	edit, msg := req.edit()
	if msg != "" {
		response.BadRequest(c, msg)
		return
	}
	iv := interviewFrom(c)
	if iv.Status != models.InterviewPending {
		response.Conflict(c, "interview can only be edited while pending")
		return
	}
	updated, err := h.Store.Update(c.Request.Context(), iv.ID, edit)
	if err != nil {
		h.Logger.Error("update interview failed", zap.String("interview_id", iv.ID.String()), zap.Error(err))
		response.Internal(c, "failed to update interview")
		return
	}
	if updated == nil {
		response.Conflict(c, "interview can only be edited while pending")
		return
	}
	h.Logger.Info("interview updated", zap.String("interview_id", iv.ID.String()))
	response.OK(c, View{Interview: updated, NextStep: updated.NextStep()})
}

func (r UpdateRequest) edit() (Edit, string) {
	var e Edit
	if r.JobTitle != nil {
		title := strings.TrimSpace(*r.JobTitle)
		if title == "" {
			return e, "job_title must not be empty"
		}
		e.JobTitle = &title
	}
	if r.Language != nil {
		lang := strings.ToLower(strings.TrimSpace(*r.Language))
		if lang == "" {
			return e, "language must not be empty"
		}
		e.Language = &lang
	}
	if r.Questions != nil {
		if len(r.Questions) == 0 {
			return e, "questions must not be empty"
		}
		e.Questions = make([]string, 0, len(r.Questions))
		for _, q := range r.Questions {
			q = strings.TrimSpace(q)
			if q == "" {
				return e, "questions must not contain blank entries"
			}
			e.Questions = append(e.Questions, q)
		}
	}
	if e.JobTitle == nil && e.Language == nil && e.Questions == nil {
		return e, "nothing to update"
	}
	return e, ""
}

// Cancel handles POST /interviews/:id/cancel (admin only). A live session
// for the interview is ended. Cancelling twice is a no-op.
func (h *Handler) Cancel(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	iv := interviewFrom(c)
	if iv.Status == models.InterviewCancelled {
		response.OK(c, View{Interview: iv, NextStep: iv.NextStep()})
		return
	}
	if !iv.Status.Cancellable() {
		response.Conflict(c, "interview is already "+string(iv.Status))
		return
	}

	adminID, _ := middleware.UserID(c)
	cancellation := models.Cancellation{
		Reason:      strings.TrimSpace(req.Reason),
		CancelledAt: h.now().UTC(),
		CancelledBy: adminID,
	}
	ok, err := h.Store.Cancel(ctx, iv.ID, cancellation)
	if err != nil {
		h.Logger.Error("cancel interview failed", zap.String("interview_id", iv.ID.String()), zap.Error(err))
		response.Internal(c, "failed to cancel interview")
		return
	}
	if !ok {
		response.Conflict(c, "interview can no longer be cancelled")
		return
	}
	ended := h.Sessions != nil && h.Sessions.End(iv.ID, "interview cancelled")
	h.Logger.Info("interview cancelled", zap.String("interview_id", iv.ID.String()), zap.Bool("live_session_ended", ended))

	updated, err := h.Store.GetByID(ctx, iv.ID)
	if err != nil || updated == nil {
		iv.Status = models.InterviewCancelled
		updated = iv
	}
	response.OK(c, View{Interview: updated, NextStep: updated.NextStep()})
}

// Decide handles POST /interviews/:id/decision (admin only). Repeating the
// stored decision is a no-op; a different one is a conflict.
func (h *Handler) Decide(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if _, ok := req.Decision.Status(); !ok {
		response.BadRequest(c, "decision must be accepted or rejected")
		return
	}
	iv := interviewFrom(c)

	if iv.Status.Decided() {
		h.repeatDecision(c, iv, req.Decision)
		return
	}
	if iv.Status != models.InterviewCompleted {
		response.Unprocessable(c, "interview is not completed")
		return
	}

	adminID, _ := middleware.UserID(c)
	d := models.Decision{
		Status:     req.Decision,
		Feedback:   strings.TrimSpace(req.Feedback),
		AdminNotes: strings.TrimSpace(req.AdminNotes),
		DecidedAt:  h.now().UTC(),
		DecidedBy:  adminID,
	}
	ok, err := h.Store.Decide(c.Request.Context(), iv.ID, d)
	if err != nil {
		h.Logger.Error("record decision failed", zap.String("interview_id", iv.ID.String()), zap.Error(err))
		response.Internal(c, "failed to record decision")
		return
	}
	if !ok {
		// Lost a race with another reviewer.
		current, err := h.Store.GetByID(c.Request.Context(), iv.ID)
		if err != nil || current == nil || !current.Status.Decided() {
			response.Conflict(c, "interview changed while deciding")
			return
		}
		h.repeatDecision(c, current, req.Decision)
		return
	}
	h.Logger.Info("interview decided",
		zap.String("interview_id", iv.ID.String()),
		zap.String("decision", string(d.Status)),
		zap.String("decided_by", adminID.String()))
	response.OK(c, d)
}

func (h *Handler) repeatDecision(c *gin.Context, iv *models.Interview, want models.DecisionOutcome) {
	notes, _ := models.ParseNotes(iv.Notes)
	if notes.Decision == nil {
		response.Conflict(c, "interview already decided")
		return
	}
	if notes.Decision.Status != want {
		response.Conflict(c, "interview already "+string(notes.Decision.Status))
		return
	}
	response.OK(c, notes.Decision)
}

// GetDecision handles GET /interviews/:id/decision.
func (h *Handler) GetDecision(c *gin.Context) {
	notes, err := models.ParseNotes(interviewFrom(c).Notes)
	if err != nil {
		response.BadRequest(c, "invalid interview data")
		return
	}
	if notes.Decision == nil {
		response.NotFound(c, "no decision recorded")
		return
	}
	response.OK(c, notes.Decision)
}

// Analyze handles POST /interviews/:id/analyze (admin only). It always
// re-runs the analysis.
func (h *Handler) Analyze(c *gin.Context) {
	iv := interviewFrom(c)
	res, err := h.Analysis.Run(c.Request.Context(), iv.ID, true)
	switch {
	case err == nil:
		response.OK(c, res)
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "interview not found")
	case errors.Is(err, ErrNotFinished):
		response.Unprocessable(c, "interview must be completed before analysis")
	case errors.Is(err, ErrNoTranscripts):
		response.Unprocessable(c, ErrNoTranscripts.Error())
	case errors.Is(err, ErrAnalysisRejected):
		response.BadGateway(c, "failed to analyze interview")
	default:
		h.Logger.Error("analyze interview failed", zap.String("interview_id", iv.ID.String()), zap.Error(err))
		response.Internal(c, "failed to store analysis")
	}
}

// GetAnalysis handles GET /interviews/:id/analysis.
func (h *Handler) GetAnalysis(c *gin.Context) {
	notes, err := models.ParseNotes(interviewFrom(c).Notes)
	if err != nil {
		response.BadRequest(c, "invalid interview data")
		return
	}
	if len(notes.Analysis) == 0 {
		response.NotFound(c, "No analysis available")
		return
	}
	response.OK(c, AnalysisResult{Analysis: notes.Analysis, AnalyzedAt: notes.AnalyzedAt})
}

// ListMedia handles GET /interviews/:id/media.
func (h *Handler) ListMedia(c *gin.Context) {
	if h.Media == nil {
		response.ServiceUnavailable(c, "media archive not configured")
		return
	}
	iv := interviewFrom(c)
	list, err := h.Media.List(c.Request.Context(), iv.ID)
	if err != nil {
		h.Logger.Error("list media failed", zap.String("interview_id", iv.ID.String()), zap.Error(err))
		response.Internal(c, "failed to list media")
		return
	}
	if list == nil {
		list = []models.InterviewMedia{}
	}
	if h.Linker != nil {
		for i := range list {
			url, err := h.Linker.PresignAnswerDownload(c.Request.Context(), list[i].S3Key)
			if err != nil {
				h.Logger.Warn("presign answer failed", zap.String("key", list[i].S3Key), zap.Error(err))
				continue
			}
			list[i].DownloadURL = url
		}
	}
	response.OK(c, list)
}

// Export handles GET /interviews/export (admin only).
func (h *Handler) Export(c *gin.Context) {
	list, err := h.Store.List(c.Request.Context(), ListFilter{
		Statuses: []models.InterviewStatus{models.InterviewCompleted, models.InterviewHired, models.InterviewRejected},
	})
	if err != nil {
		h.Logger.Error("list interviews for export failed", zap.Error(err))
		response.Internal(c, "failed to export interviews")
		return
	}
	var buf bytes.Buffer
	if err := export.WriteInterviews(&buf, list); err != nil {
		h.Logger.Error("render export failed", zap.Error(err))
		response.Internal(c, "failed to export interviews")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(h.now())+`"`)
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

// SpeechToText handles POST /speech-to-text: multipart audio, language and
// questionIndex.
func (h *Handler) SpeechToText(c *gin.Context) {
	if h.Transcriber == nil {
		response.ServiceUnavailable(c, "speech-to-text not configured")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAudioUpload)
	fh, err := c.FormFile("audio")
	if err != nil {
		response.BadRequest(c, "No audio file provided")
		return
	}
	language := strings.TrimSpace(c.PostForm("language"))
	if language == "" {
		language = session.DefaultLanguage
	}
	question, _ := strconv.Atoi(c.PostForm("questionIndex"))

	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "unreadable audio file")
		return
	}
	defer f.Close()
	audio, err := io.ReadAll(f)
	if err != nil || len(audio) == 0 {
		response.BadRequest(c, "unreadable audio file")
		return
	}

	text, err := h.Transcriber.Transcribe(c.Request.Context(), audio, language)
	if err != nil {
		h.Logger.Warn("speech-to-text failed", zap.String("language", language), zap.Int("question", question), zap.Error(err))
		response.BadGateway(c, "Speech-to-text conversion failed")
		return
	}
	response.OK(c, gin.H{"transcript": text, "questionIndex": question, "language": language})
}

// candidateView hides reviewer-only fields from a candidate.
func candidateView(iv *models.Interview) *models.Interview {
	notes, _ := models.ParseNotes(iv.Notes)
	cp := *iv
	cp.ResumeText = ""
	cp.CreatedBy = nil
	cp.Notes = mustMarshal(models.InterviewNotes{
		Questions:   notes.Questions,
		Transcripts: notes.Transcripts,
		Language:    notes.Language,
		CompletedAt: notes.CompletedAt,
	})
	return &cp
}

func validStatus(s models.InterviewStatus) bool {
	switch s {
	case models.InterviewPending, models.InterviewInProgress, models.InterviewCompleted,
		models.InterviewHired, models.InterviewRejected, models.InterviewCancelled:
		return true
	}
	return false
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Routes registers the interview endpoints on api, which must already run
// the JWT middleware.
func (h *Handler) Routes(api gin.IRouter) {
	admin := middleware.RequireRole(models.RoleAdmin)
	staff := middleware.RequireRole(models.RoleAdmin, models.RoleReviewer)
	access := RequireAccess(h.Store)

	api.POST("/speech-to-text", h.SpeechToText)
	api.GET("/interviews", h.List)
	api.POST("/interviews", admin, h.Create)
	api.GET("/interviews/export", admin, h.Export)
	api.GET("/interviews/:id", access, h.Get)
	api.PATCH("/interviews/:id", admin, access, h.Update)
	api.POST("/interviews/:id/start", access, h.Start)
	api.POST("/interviews/:id/cancel", admin, access, h.Cancel)
	api.POST("/interviews/:id/decision", admin, access, h.Decide)
	api.GET("/interviews/:id/decision", staff, access, h.GetDecision)
	api.POST("/interviews/:id/analyze", admin, access, h.Analyze)
	api.GET("/interviews/:id/analysis", staff, access, h.GetAnalysis)
	api.GET("/interviews/:id/media", staff, access, h.ListMedia)
}
