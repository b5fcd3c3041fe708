package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPathSingleQuestion(t *testing.T) {
	s := State{Phase: PhaseIdle}

	steps := []struct {
		event Event
		want  State
	}{
		{EventBegin, State{Phase: PhasePreparing}},
		{EventPrepareExpired, State{Phase: PhaseRecording}},
		{EventRecordExpired, State{Phase: PhaseReviewing}},
		{EventNext, State{Phase: PhaseCompleted}},
		{EventSubmit, State{Phase: PhaseSubmitted}},
	}
	for _, step := range steps {
		next, err := Transition(s, step.event, 1)
		require.NoError(t, err)
		require.Equal(t, step.want, next)
		s = next
	}
}

func TestTransitionNextAdvancesUntilLastQuestion(t *testing.T) {
	next, err := Transition(State{Phase: PhaseReviewing, Question: 0}, EventNext, 3)
	require.NoError(t, err)
	require.Equal(t, State{Phase: PhasePreparing, Question: 1}, next)

	next, err = Transition(State{Phase: PhaseReviewing, Question: 2}, EventNext, 3)
	require.NoError(t, err)
	require.Equal(t, PhaseCompleted, next.Phase)
}

func TestTransitionRerecordStaysOnQuestion(t *testing.T) {
	next, err := Transition(State{Phase: PhaseReviewing, Question: 1}, EventRerecord, 3)
	require.NoError(t, err)
	require.Equal(t, State{Phase: PhaseRecording, Question: 1}, next)
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		state State
		event Event
		count int
	}{
		{name: "idle without questions", state: State{Phase: PhaseIdle}, event: EventBegin, count: 0},
		{name: "idle skip", state: State{Phase: PhaseIdle}, event: EventSkip, count: 1},
		{name: "preparing stop", state: State{Phase: PhasePreparing}, event: EventStop, count: 1},
		{name: "preparing next", state: State{Phase: PhasePreparing}, event: EventNext, count: 1},
		{name: "recording skip", state: State{Phase: PhaseRecording}, event: EventSkip, count: 1},
		{name: "recording next", state: State{Phase: PhaseRecording}, event: EventNext, count: 1},
		{name: "reviewing stop", state: State{Phase: PhaseReviewing}, event: EventStop, count: 1},
		{name: "reviewing submit", state: State{Phase: PhaseReviewing}, event: EventSubmit, count: 1},
		{name: "completed next", state: State{Phase: PhaseCompleted}, event: EventNext, count: 1},
		{name: "submitted submit", state: State{Phase: PhaseSubmitted}, event: EventSubmit, count: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event, tc.count)
			require.Error(t, err)
			require.Contains(t, err.Error(), "invalid transition")
			require.Equal(t, tc.state, next)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State{Phase: "mystery"}, EventBegin, 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, Phase("mystery"), next.Phase)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "recording(2)", State{Phase: PhaseRecording, Question: 2}.String())
	require.Equal(t, "completed", State{Phase: PhaseCompleted}.String())
}
