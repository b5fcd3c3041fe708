package interviews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-hire/backend/internal/models"
	"github.com/aura-hire/backend/internal/session"
)

const interviewColumns = `id, candidate_id, created_by, job_title, COALESCE(resume_text,''), language, status, notes,
	started_at, completed_at, created_at, updated_at`

// ErrNotInProgress is returned when a bundle arrives for an interview that
// is not being conducted.
var ErrNotInProgress = errors.New("interview is not in progress")

// ListFilter narrows List. Zero value lists everything.
type ListFilter struct {
	Statuses    []models.InterviewStatus
	CandidateID *uuid.UUID
}

// Repository handles interview persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an interview repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanInterview(row pgx.Row) (*models.Interview, error) {
	var iv models.Interview
	err := row.Scan(&iv.ID, &iv.CandidateID, &iv.CreatedBy, &iv.JobTitle, &iv.ResumeText, &iv.Language, &iv.Status,
		&iv.Notes, &iv.StartedAt, &iv.CompletedAt, &iv.CreatedAt, &iv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &iv, nil
}

// Create inserts iv and fills its generated fields.
func (r *Repository) Create(ctx context.Context, iv *models.Interview) error {
	const q = `INSERT INTO interviews (candidate_id, created_by, job_title, resume_text, language, status, notes)
		VALUES ($1, $2, $3, NULLIF($4,''), $5, $6, $7)
		RETURNING id, status, created_at, updated_at`
	if iv.Status == "" {
		iv.Status = models.InterviewPending
	}
	notes := iv.Notes
	if len(notes) == 0 {
		notes = json.RawMessage(`{}`)
	}
	return r.pool.QueryRow(ctx, q, iv.CandidateID, iv.CreatedBy, iv.JobTitle, iv.ResumeText, iv.Language, string(iv.Status), notes).
		Scan(&iv.ID, &iv.Status, &iv.CreatedAt, &iv.UpdatedAt)
}

// GetByID returns an interview, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Interview, error) {
	iv, err := scanInterview(r.pool.QueryRow(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return iv, err
}

// List returns interviews newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Interview, error) {
	var (
		conds []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.CandidateID != nil {
		args = append(args, *f.CandidateID)
		conds = append(conds, fmt.Sprintf("candidate_id = $%d", len(args)))
	}
	q := `SELECT ` + interviewColumns + ` FROM interviews`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	rows, err := r.pool.Query(ctx, q+" ORDER BY created_at DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *iv)
	}
	return list, rows.Err()
}

// Start moves a pending interview to in_progress. It reports false when the
// interview was not pending.
func (r *Repository) Start(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE interviews SET status = 'in_progress', started_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'pending'`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Complete merges the transcript bundle into notes and marks the interview
// completed. Repeating it for a completed interview overwrites the bundle.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, b session.Bundle) error {
	patch, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}
	const q = `UPDATE interviews
		SET status = 'completed', completed_at = $3, notes = COALESCE(notes, '{}'::jsonb) || $2::jsonb, updated_at = now()
		WHERE id = $1 AND status IN ('in_progress', 'completed')`
	tag, err := r.pool.Exec(ctx, q, id, patch, b.CompletedAt)
	if err != nil {
		return fmt.Errorf("complete interview: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotInProgress
	}
	return nil
}

// Decide records a decision on a completed interview. It reports false when
// the interview was not awaiting one.
func (r *Repository) Decide(ctx context.Context, id uuid.UUID, d models.Decision) (bool, error) {
	status, ok := d.Status.Status()
	if !ok {
		return false, fmt.Errorf("unknown decision %q", d.Status)
	}
	patch, err := json.Marshal(map[string]any{"decision": d})
	if err != nil {
		return false, fmt.Errorf("marshal decision: %w", err)
	}
	const q = `UPDATE interviews SET status = $2, notes = COALESCE(notes, '{}'::jsonb) || $3::jsonb, updated_at = now()
		WHERE id = $1 AND status = 'completed'`
	tag, err := r.pool.Exec(ctx, q, id, string(status), patch)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SaveAnalysis stores an analysis document and its timestamp in notes.
func (r *Repository) SaveAnalysis(ctx context.Context, id uuid.UUID, analysis json.RawMessage, at time.Time) error {
	patch, err := json.Marshal(map[string]any{"analysis": analysis, "analyzed_at": at})
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	const q = `UPDATE interviews SET notes = COALESCE(notes, '{}'::jsonb) || $2::jsonb, updated_at = now() WHERE id = $1`
	_, err = r.pool.Exec(ctx, q, id, patch)
	return err
}

// Cancel calls off a pending or in-progress interview. It reports false when
// the interview had already moved past that.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID, c models.Cancellation) (bool, error) {
	patch, err := json.Marshal(map[string]any{"cancellation": c})
	if err != nil {
		return false, fmt.Errorf("marshal cancellation: %w", err)
	}
	const q = `UPDATE interviews SET status = 'cancelled', notes = COALESCE(notes, '{}'::jsonb) || $2::jsonb, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'in_progress')`
	tag, err := r.pool.Exec(ctx, q, id, patch)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Edit is a partial update of a pending interview. Nil fields are kept.
type Edit struct {
	JobTitle  *string
	Language  *string
	Questions []string
}

// Update applies e to a pending interview and returns the stored row, or nil
// when the interview is no longer pending.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, e Edit) (*models.Interview, error) {
	patch := map[string]any{}
	if e.Language != nil {
		patch["language"] = *e.Language
	}
	if e.Questions != nil {
		patch["questions"] = e.Questions
	}
	notes, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("marshal edit: %w", err)
	}
	q := `UPDATE interviews
		SET job_title = COALESCE($2, job_title), language = COALESCE($3, language),
			notes = COALESCE(notes, '{}'::jsonb) || $4::jsonb, updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + interviewColumns
	iv, err := scanInterview(r.pool.QueryRow(ctx, q, id, e.JobTitle, e.Language, notes))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update interview: %w", err)
	}
	return iv, nil
}
