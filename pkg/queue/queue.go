package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueAnswers is the Redis list key for answer media upload jobs.
	QueueAnswers = "worker:answers"
	// QueueAnalysis is the Redis list key for interview analysis jobs.
	QueueAnalysis = "worker:analysis"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// PollTimeout bounds one blocking pop so shutdown is noticed.
	PollTimeout = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeAnswerUpload      JobType = "answer_upload"
	JobTypeInterviewAnalysis JobType = "interview_analysis"
)

var ErrUnknownJobType = errors.New("unknown job type")

// AnswerUploadPayload points at one spooled answer recording.
type AnswerUploadPayload struct {
	InterviewID   uuid.UUID `json:"interview_id"`
	QuestionIndex int       `json:"question_index"`
	SpoolPath     string    `json:"spool_path"`
	ContentType   string    `json:"content_type"`
	SizeBytes     int64     `json:"size_bytes"`
}

// InterviewAnalysisPayload requests an AI analysis of a submitted interview.
type InterviewAnalysisPayload struct {
	InterviewID uuid.UUID `json:"interview_id"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// KeyFor returns the list a job type is queued on.
func KeyFor(t JobType) (string, error) {
	switch t {
	case JobTypeAnswerUpload:
		return QueueAnswers, nil
	case JobTypeInterviewAnalysis:
		return QueueAnalysis, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownJobType, t)
	}
}

// NewJob wraps payload in a fresh envelope.
func NewJob(t JobType, payload any) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueAnswerUpload enqueues an answer upload job.
func (q *Queue) EnqueueAnswerUpload(ctx context.Context, payload AnswerUploadPayload) error {
	job, err := NewJob(JobTypeAnswerUpload, payload)
	if err != nil {
		return err
	}
	if err := q.push(ctx, job); err != nil {
		return err
	}
	q.logger.Debug("enqueued answer upload job",
		zap.String("job_id", job.ID),
		zap.String("interview_id", payload.InterviewID.String()),
		zap.Int("question", payload.QuestionIndex))
	return nil
}

// EnqueueInterviewAnalysis enqueues an interview analysis job.
func (q *Queue) EnqueueInterviewAnalysis(ctx context.Context, payload InterviewAnalysisPayload) error {
	job, err := NewJob(JobTypeInterviewAnalysis, payload)
	if err != nil {
		return err
	}
	if err := q.push(ctx, job); err != nil {
		return err
	}
	q.logger.Debug("enqueued analysis job", zap.String("job_id", job.ID), zap.String("interview_id", payload.InterviewID.String()))
	return nil
}

func (q *Queue) push(ctx context.Context, job *Job) error {
	key, err := KeyFor(job.Type)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

// Dequeue blocks up to PollTimeout for a job on any queue. It returns a nil
// job on timeout or on an unreadable entry.
func (q *Queue) Dequeue(ctx context.Context) (*Job, string, error) {
	result, err := q.client.BLPop(ctx, PollTimeout, QueueAnswers, QueueAnalysis).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", nil
		}
		return nil, "", err
	}
	if len(result) < 2 {
		return nil, "", nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("queue", result[0]), zap.Error(err))
		return nil, "", nil
	}
	return &job, result[0], nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	if job.Attempt >= MaxRetries {
		raw, err := json.Marshal(job)
		if err != nil {
			return err
		}
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.push(ctx, job); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
