package interviews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-hire/backend/internal/models"
	"github.com/aura-hire/backend/internal/session"
)

var (
	ErrNotFound         = errors.New("interview not found")
	ErrNotFinished      = errors.New("interview is not completed")
	ErrNoTranscripts    = errors.New("no transcript data available")
	ErrAlreadyAnalyzed  = errors.New("interview already analyzed")
	ErrAnalysisRejected = errors.New("analysis failed")
)

// AnalysisStore is the persistence the analysis runner needs.
type AnalysisStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Interview, error)
	SaveAnalysis(ctx context.Context, id uuid.UUID, analysis json.RawMessage, at time.Time) error
}

// InterviewAnalyzer grades a transcript.
type InterviewAnalyzer interface {
	Analyze(ctx context.Context, jobTitle string, questions []string, transcripts map[int]string) (json.RawMessage, error)
}

// AnalysisResult is what the API returns for an analysis.
type AnalysisResult struct {
	Analysis   json.RawMessage `json:"analysis"`
	AnalyzedAt *time.Time      `json:"analyzed_at,omitempty"`
}

// AnalysisRunner analyses finished interviews and stores the result in
// their notes. The HTTP handler and the worker share it.
type AnalysisRunner struct {
	store    AnalysisStore
	analyzer InterviewAnalyzer
	logger   *zap.Logger
	now      func() time.Time
}

func NewAnalysisRunner(store AnalysisStore, analyzer InterviewAnalyzer, logger *zap.Logger) *AnalysisRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisRunner{store: store, analyzer: analyzer, logger: logger, now: time.Now}
}

// Run analyses interview id. Without force an existing analysis is kept and
// ErrAlreadyAnalyzed returned alongside it.
func (r *AnalysisRunner) Run(ctx context.Context, id uuid.UUID, force bool) (*AnalysisResult, error) {
	iv, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load interview: %w", err)
	}
	if iv == nil {
		return nil, ErrNotFound
	}
	if !iv.Status.Finished() {
		return nil, ErrNotFinished
	}
	notes, err := models.ParseNotes(iv.Notes)
	if err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	if !force && len(notes.Analysis) > 0 {
		return &AnalysisResult{Analysis: notes.Analysis, AnalyzedAt: notes.AnalyzedAt}, ErrAlreadyAnalyzed
	}
	if len(notes.Questions) == 0 || len(notes.Transcripts) == 0 {
		return nil, ErrNoTranscripts
	}

	language := iv.Language
	if notes.Language != "" {
		language = notes.Language
	}
	questions := session.NormalizeQuestions(notes.Questions, language)

	analysis, err := r.analyzer.Analyze(ctx, iv.JobTitle, questions, notes.Transcripts)
	if err != nil {
		r.logger.Warn("interview analysis failed", zap.String("interview_id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrAnalysisRejected, err)
	}
	at := r.now().UTC()
	if err := r.store.SaveAnalysis(ctx, id, analysis, at); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	r.logger.Info("interview analyzed", zap.String("interview_id", id.String()), zap.Int("questions", len(questions)))
	return &AnalysisResult{Analysis: analysis, AnalyzedAt: &at}, nil
}
