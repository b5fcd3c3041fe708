package session

import "fmt"

// Phase is the variant tag of a session State.
type Phase string

type Event string

const (
	PhaseIdle      Phase = "idle"
	PhasePreparing Phase = "preparing"
	PhaseRecording Phase = "recording"
	PhaseReviewing Phase = "reviewing"
	PhaseCompleted Phase = "completed"
	PhaseSubmitted Phase = "submitted"
)

const (
	EventBegin          Event = "begin"
	EventPrepareExpired Event = "prepare_expired"
	EventSkip           Event = "skip"
	EventRecordExpired  Event = "record_expired"
	EventStop           Event = "stop"
	EventRerecord       Event = "rerecord"
	EventNext           Event = "next"
	EventSubmit         Event = "submit"
)

// State is the controller position. Question is only meaningful while
// preparing, recording or reviewing.
type State struct {
	Phase    Phase `json:"phase"`
	Question int   `json:"question"`
}

func (s State) String() string {
	switch s.Phase {
	case PhasePreparing, PhaseRecording, PhaseReviewing:
		return fmt.Sprintf("%s(%d)", s.Phase, s.Question)
	default:
		return string(s.Phase)
	}
}

// Transition applies event to current for a session with questionCount
// questions. On error the returned state equals current.
func Transition(current State, event Event, questionCount int) (State, error) {
	switch current.Phase {
	case PhaseIdle:
		if event == EventBegin && questionCount > 0 {
			return State{Phase: PhasePreparing, Question: 0}, nil
		}
	case PhasePreparing:
		switch event {
		case EventPrepareExpired, EventSkip:
			return State{Phase: PhaseRecording, Question: current.Question}, nil
		}
	case PhaseRecording:
		switch event {
		case EventRecordExpired, EventStop:
			return State{Phase: PhaseReviewing, Question: current.Question}, nil
		}
	case PhaseReviewing:
		switch event {
		case EventRerecord:
			return State{Phase: PhaseRecording, Question: current.Question}, nil
		case EventNext:
			if current.Question+1 < questionCount {
				return State{Phase: PhasePreparing, Question: current.Question + 1}, nil
			}
			return State{Phase: PhaseCompleted}, nil
		}
	case PhaseCompleted:
		if event == EventSubmit {
			return State{Phase: PhaseSubmitted}, nil
		}
	case PhaseSubmitted:
	default:
		return current, fmt.Errorf("unknown state %q", current.Phase)
	}
	return current, invalidTransition(current, event)
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
