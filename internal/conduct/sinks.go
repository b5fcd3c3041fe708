package conduct

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-hire/backend/internal/session"
	"github.com/aura-hire/backend/pkg/queue"
	"github.com/aura-hire/backend/pkg/storage"
)

// Server events fanned out to the interview room.
const (
	EventSessionState = "session_state"
	EventAdvisory     = "advisory"
	EventSubmitted    = "submitted"
	EventError        = "error"
	EventProctoring   = "proctoring"
	EventSessionEnded = "session_ended"
)

// RoomPublisher delivers an event to everyone in an interview room.
type RoomPublisher interface {
	Publish(roomID uuid.UUID, event string, payload any)
}

// Jobs enqueues background work for a finished interview.
type Jobs interface {
	EnqueueAnswerUpload(ctx context.Context, p queue.AnswerUploadPayload) error
	EnqueueInterviewAnalysis(ctx context.Context, p queue.InterviewAnalysisPayload) error
}

// Completer writes the submitted bundle.
type Completer interface {
	Complete(ctx context.Context, id uuid.UUID, b session.Bundle) error
}

// roomObserver mirrors controller notices into the room so the candidate and
// watching reviewers see the same state.
type roomObserver struct {
	room RoomPublisher
	id   uuid.UUID
}

func (o roomObserver) StateChanged(s session.Snapshot) { o.room.Publish(o.id, EventSessionState, s) }
func (o roomObserver) Updated(s session.Snapshot)      { o.room.Publish(o.id, EventSessionState, s) }
func (o roomObserver) Advised(a session.Advisory)      { o.room.Publish(o.id, EventAdvisory, a) }

// Persister completes the interview row and queues its analysis. A queue
// failure does not fail the submit; the analysis can be requested later.
type Persister struct {
	store  Completer
	jobs   Jobs
	logger *zap.Logger
}

func NewPersister(store Completer, jobs Jobs, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{store: store, jobs: jobs, logger: logger}
}

func (p *Persister) Complete(ctx context.Context, id uuid.UUID, b session.Bundle) error {
	if err := p.store.Complete(ctx, id, b); err != nil {
		return err
	}
	if p.jobs == nil {
		return nil
	}
	if err := p.jobs.EnqueueInterviewAnalysis(ctx, queue.InterviewAnalysisPayload{InterviewID: id}); err != nil {
		p.logger.Warn("enqueue interview analysis failed", zap.String("interview_id", id.String()), zap.Error(err))
	}
	return nil
}

// SpoolArchiver writes each answer's recording under dir and hands it to the
// worker for upload.
type SpoolArchiver struct {
	dir    string
	jobs   Jobs
	logger *zap.Logger
}

func NewSpoolArchiver(dir string, jobs Jobs, logger *zap.Logger) *SpoolArchiver {
	if dir == "" {
		dir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpoolArchiver{dir: filepath.Join(dir, "answers"), jobs: jobs, logger: logger}
}

// SpoolPath is where the recording for one answer is written.
func (a *SpoolArchiver) SpoolPath(interviewID uuid.UUID, question int) string {
	return filepath.Join(a.dir, interviewID.String(), strconv.Itoa(question)+".webm")
}

func (a *SpoolArchiver) ArchiveAnswer(ctx context.Context, interviewID uuid.UUID, question int, chunks [][]byte) error {
	path := a.SpoolPath(interviewID, question)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}
	size, err := writeChunks(path, chunks)
	if err != nil {
		return err
	}
	if a.jobs == nil {
		return nil
	}
	payload := queue.AnswerUploadPayload{
		InterviewID:   interviewID,
		QuestionIndex: question,
		SpoolPath:     path,
		ContentType:   storage.DefaultAnswerContentType,
		SizeBytes:     size,
	}
	if err := a.jobs.EnqueueAnswerUpload(ctx, payload); err != nil {
		return fmt.Errorf("enqueue answer upload: %w", err)
	}
	a.logger.Debug("answer spooled", zap.String("path", path), zap.Int64("bytes", size))
	return nil
}

func writeChunks(path string, chunks [][]byte) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return 0, fmt.Errorf("open spool file: %w", err)
	}
	var size int64
	for _, chunk := range chunks {
		n, err := f.Write(chunk)
		size += int64(n)
		if err != nil {
			_ = f.Close()
			return size, fmt.Errorf("write spool file: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return size, fmt.Errorf("close spool file: %w", err)
	}
	return size, nil
}
