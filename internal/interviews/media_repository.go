package interviews

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-hire/backend/internal/models"
)

// MediaRepository handles archived answer recordings.
type MediaRepository struct {
	pool *pgxpool.Pool
}

func NewMediaRepository(pool *pgxpool.Pool) *MediaRepository {
	return &MediaRepository{pool: pool}
}

// Insert records an uploaded answer. It reports false when the question
// already has a row.
func (r *MediaRepository) Insert(ctx context.Context, m *models.InterviewMedia) (bool, error) {
	const q = `INSERT INTO interview_media (interview_id, question_index, s3_key, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (interview_id, question_index) DO NOTHING
		RETURNING id, created_at`
	rows, err := r.pool.Query(ctx, q, m.InterviewID, m.QuestionIndex, m.S3Key, m.ContentType, m.SizeBytes)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return false, rows.Err()
	}
	if err := rows.Scan(&m.ID, &m.CreatedAt); err != nil {
		return false, err
	}
	return true, nil
}

// Exists reports whether the question's answer is already archived.
func (r *MediaRepository) Exists(ctx context.Context, interviewID uuid.UUID, question int) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM interview_media WHERE interview_id = $1 AND question_index = $2)`
	var ok bool
	err := r.pool.QueryRow(ctx, q, interviewID, question).Scan(&ok)
	return ok, err
}

// List returns an interview's archived answers in question order.
func (r *MediaRepository) List(ctx context.Context, interviewID uuid.UUID) ([]models.InterviewMedia, error) {
	const q = `SELECT id, interview_id, question_index, s3_key, content_type, size_bytes, created_at
		FROM interview_media WHERE interview_id = $1 ORDER BY question_index`
	rows, err := r.pool.Query(ctx, q, interviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.InterviewMedia
	for rows.Next() {
		var m models.InterviewMedia
		if err := rows.Scan(&m.ID, &m.InterviewID, &m.QuestionIndex, &m.S3Key, &m.ContentType, &m.SizeBytes, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
