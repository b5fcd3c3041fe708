package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-hire/backend/internal/interviews"
	"github.com/aura-hire/backend/internal/models"
	"github.com/aura-hire/backend/pkg/queue"
	"github.com/aura-hire/backend/pkg/storage"
)

// MediaStore records archived answers.
type MediaStore interface {
	Exists(ctx context.Context, interviewID uuid.UUID, question int) (bool, error)
	Insert(ctx context.Context, m *models.InterviewMedia) (bool, error)
}

// ObjectStore receives answer recordings.
type ObjectStore interface {
	UploadAnswer(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) error
}

// Analyses runs the AI review of a submitted interview.
type Analyses interface {
	Run(ctx context.Context, id uuid.UUID, force bool) (*interviews.AnalysisResult, error)
}

// JobQueue is the Redis-backed job list.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Processor handles answer upload and interview analysis jobs.
type Processor struct {
	media    MediaStore
	objects  ObjectStore
	analyses Analyses
	queue    JobQueue
	logger   *zap.Logger
	backoff  time.Duration
}

// NewProcessor creates a job processor. objects may be nil when S3 is not
// configured; answer jobs then fail and are retried.
func NewProcessor(media MediaStore, objects ObjectStore, analyses Analyses, q JobQueue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		media:    media,
		objects:  objects,
		analyses: analyses,
		queue:    q,
		logger:   logger,
		backoff:  queue.RetryBackoff,
	}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeAnswerUpload:
		var payload queue.AnswerUploadPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.uploadAnswer(ctx, payload)
	case queue.JobTypeInterviewAnalysis:
		var payload queue.InterviewAnalysisPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.analyse(ctx, payload.InterviewID)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// uploadAnswer streams the spooled recording to S3, records it and removes
// the spool file. A question that already has a row is only cleaned up.
func (p *Processor) uploadAnswer(ctx context.Context, payload queue.AnswerUploadPayload) error {
	log := p.logger.With(
		zap.String("interview_id", payload.InterviewID.String()),
		zap.Int("question", payload.QuestionIndex))

	exists, err := p.media.Exists(ctx, payload.InterviewID, payload.QuestionIndex)
	if err != nil {
		return fmt.Errorf("check media: %w", err)
	}
	if exists {
		log.Info("answer already archived")
		p.removeSpool(payload.SpoolPath, log)
		return nil
	}
	if p.objects == nil {
		return errors.New("object storage not configured")
	}

	f, err := os.Open(payload.SpoolPath)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("spool file missing, dropping job", zap.String("path", payload.SpoolPath))
		return nil
	}
	if err != nil {
		return fmt.Errorf("open spool file: %w", err)
	}
	size := payload.SizeBytes
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}

	key := storage.AnswerKey(payload.InterviewID, payload.QuestionIndex, payload.ContentType)
	err = p.objects.UploadAnswer(ctx, key, payload.ContentType, f, size)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	m := &models.InterviewMedia{
		InterviewID:   payload.InterviewID,
		QuestionIndex: payload.QuestionIndex,
		S3Key:         key,
		ContentType:   payload.ContentType,
		SizeBytes:     size,
	}
	if _, err := p.media.Insert(ctx, m); err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	p.removeSpool(payload.SpoolPath, log)
	log.Info("answer upload completed", zap.String("s3_key", key), zap.Int64("bytes", size))
	return nil
}

func (p *Processor) removeSpool(path string, log *zap.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("remove spool file", zap.String("path", path), zap.Error(err))
	}
}

// analyse keeps an existing analysis. Interviews that cannot be analysed are
// logged and dropped; only vendor and storage failures are retried.
func (p *Processor) analyse(ctx context.Context, id uuid.UUID) error {
	log := p.logger.With(zap.String("interview_id", id.String()))
	_, err := p.analyses.Run(ctx, id, false)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, interviews.ErrAlreadyAnalyzed):
		log.Info("interview already analyzed")
		return nil
	case errors.Is(err, interviews.ErrNotFound),
		errors.Is(err, interviews.ErrNotFinished),
		errors.Is(err, interviews.ErrNoTranscripts):
		log.Warn("interview not analyzable, dropping job", zap.Error(err))
		return nil
	default:
		return err
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, source, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.String("queue", source))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *Processor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
