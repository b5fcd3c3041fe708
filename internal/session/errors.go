package session

import (
	"errors"
	"fmt"
)

// Kind classifies session failures. Only PersistenceWriteFailed blocks the
// candidate, and only at submit.
type Kind string

const (
	MediaUnavailable       Kind = "media_unavailable"
	MediaPermissionDenied  Kind = "media_permission_denied"
	MediaDeviceBusy        Kind = "media_device_busy"
	MediaNotFound          Kind = "media_not_found"
	MediaConstraint        Kind = "media_constraint_unsatisfiable"
	MediaOther             Kind = "media_other"
	MediaCameraMissing     Kind = "media_camera_missing"
	MediaMicrophoneMissing Kind = "media_microphone_missing"
	CaptureTooShort        Kind = "capture_too_short"
	TranscriptionFailed    Kind = "transcription_failed"
	PersistenceWriteFailed Kind = "persistence_write_failed"
)

var (
	ErrNoQuestions   = errors.New("session has no questions")
	ErrForeignChunk  = errors.New("chunk does not belong to the capturing question")
	ErrChunkTooBig   = errors.New("chunk exceeds capture limits")
	ErrClosed        = errors.New("session closed")
	ErrNoTranscriber = errors.New("no transcriber configured")
)

// Error is a classified session failure.
type Error struct {
	Kind     Kind
	Op       string
	Question int
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Advisory is a non-fatal, candidate-visible warning.
type Advisory struct {
	Kind     Kind   `json:"kind"`
	Message  string `json:"message"`
	Question *int   `json:"question,omitempty"`
}

var advisoryText = map[Kind]string{
	MediaUnavailable:       "No camera or microphone found. Interview will proceed in text-only mode.",
	MediaPermissionDenied:  "Media access denied. Interview will proceed in text-only mode.",
	MediaDeviceBusy:        "Media devices are busy. Interview will proceed in text-only mode.",
	MediaNotFound:          "Camera or microphone not found. Interview will proceed in text-only mode.",
	MediaConstraint:        "Unable to access camera and microphone with basic settings. Interview will proceed in text-only mode.",
	MediaOther:             "Media setup failed. Interview will proceed in text-only mode.",
	MediaCameraMissing:     "Camera not available, but microphone is ready. You can proceed with audio-only interview.",
	MediaMicrophoneMissing: "Microphone not available, but camera is ready. You can proceed with video-only interview.",
	TranscriptionFailed:    "Speech-to-text conversion failed. You can still continue the interview.",
	PersistenceWriteFailed: "Failed to submit interview. Please try again.",
}

// NewAdvisory builds the standard advisory for kind.
func NewAdvisory(kind Kind) Advisory {
	return Advisory{Kind: kind, Message: advisoryText[kind]}
}

func newQuestionAdvisory(kind Kind, q int) Advisory {
	a := NewAdvisory(kind)
	a.Question = &q
	return a
}
