package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// InterviewStatus is the persisted lifecycle of an interview.
type InterviewStatus string

const (
	InterviewPending    InterviewStatus = "pending"
	InterviewInProgress InterviewStatus = "in_progress"
	InterviewCompleted  InterviewStatus = "completed"
	InterviewHired      InterviewStatus = "hired"
	InterviewRejected   InterviewStatus = "rejected"
	InterviewCancelled  InterviewStatus = "cancelled"
)

// Decided reports whether a hiring decision has been recorded.
func (s InterviewStatus) Decided() bool {
	return s == InterviewHired || s == InterviewRejected
}

// Cancellable reports whether an admin may still call the interview off.
func (s InterviewStatus) Cancellable() bool {
	return s == InterviewPending || s == InterviewInProgress
}

// Finished reports whether the candidate has submitted.
func (s InterviewStatus) Finished() bool {
	return s == InterviewCompleted || s.Decided()
}

// Routing hints returned with an interview.
const (
	NextStepPrepare = "prepare"
	NextStepConduct = "conduct"
	NextStepDone    = "done"
)

// Interview is one candidate's AI interview.
type Interview struct {
	ID          uuid.UUID       `json:"id"`
	CandidateID *uuid.UUID      `json:"candidate_id,omitempty"`
	CreatedBy   *uuid.UUID      `json:"created_by,omitempty"`
	JobTitle    string          `json:"job_title"`
	ResumeText  string          `json:"resume_text,omitempty"`
	Language    string          `json:"language"`
	Status      InterviewStatus `json:"status"`
	Notes       json.RawMessage `json:"notes"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NextStep tells the candidate UI where to go.
func (i *Interview) NextStep() string {
	switch i.Status {
	case InterviewPending:
		return NextStepPrepare
	case InterviewInProgress:
		return NextStepConduct
	default:
		return NextStepDone
	}
}

// BelongsTo reports whether userID is the interview's candidate.
func (i *Interview) BelongsTo(userID uuid.UUID) bool {
	return i.CandidateID != nil && *i.CandidateID == userID
}

// DecisionOutcome is the reviewer verdict.
type DecisionOutcome string

const (
	DecisionAccepted DecisionOutcome = "accepted"
	DecisionRejected DecisionOutcome = "rejected"
)

// Status returns the interview status a decision moves to.
func (d DecisionOutcome) Status() (InterviewStatus, bool) {
	switch d {
	case DecisionAccepted:
		return InterviewHired, true
	case DecisionRejected:
		return InterviewRejected, true
	}
	return "", false
}

// Decision is stored under notes.decision.
type Decision struct {
	Status     DecisionOutcome `json:"status"`
	Feedback   string          `json:"feedback,omitempty"`
	AdminNotes string          `json:"admin_notes,omitempty"`
	DecidedAt  time.Time       `json:"decided_at"`
	DecidedBy  uuid.UUID       `json:"decided_by"`
}

// Cancellation is stored under notes.cancellation.
type Cancellation struct {
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
	CancelledBy uuid.UUID `json:"cancelled_by"`
}

// InterviewNotes is the typed view of the notes document. Questions stays
// raw because stored shapes vary.
type InterviewNotes struct {
	Questions      json.RawMessage `json:"questions,omitempty"`
	Transcripts    map[int]string  `json:"transcripts,omitempty"`
	Language       string          `json:"language,omitempty"`
	ApplicationID  string          `json:"application_id,omitempty"`
	CandidateEmail string          `json:"candidate_email,omitempty"`
	CandidateName  string          `json:"candidate_name,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Decision       *Decision       `json:"decision,omitempty"`
	Analysis       json.RawMessage `json:"analysis,omitempty"`
	AnalyzedAt     *time.Time      `json:"analyzed_at,omitempty"`
	Cancellation   *Cancellation   `json:"cancellation,omitempty"`
}

// ParseNotes decodes notes leniently: an empty or malformed document yields
// zero notes and the error.
func ParseNotes(raw json.RawMessage) (InterviewNotes, error) {
	var n InterviewNotes
	if len(raw) == 0 {
		return n, nil
	}
	err := json.Unmarshal(raw, &n)
	return n, err
}

// InterviewMedia is one archived answer recording.
type InterviewMedia struct {
	ID            uuid.UUID `json:"id"`
	InterviewID   uuid.UUID `json:"interview_id"`
	QuestionIndex int       `json:"question_index"`
	S3Key         string    `json:"s3_key"`
	ContentType   string    `json:"content_type"`
	SizeBytes     int64     `json:"size_bytes"`
	CreatedAt     time.Time `json:"created_at"`
	DownloadURL   string    `json:"download_url,omitempty"`
}
