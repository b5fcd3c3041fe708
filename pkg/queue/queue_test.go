package queue

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestKeyFor(t *testing.T) {
	key, err := KeyFor(JobTypeAnswerUpload)
	require.NoError(t, err)
	require.Equal(t, QueueAnswers, key)

	key, err = KeyFor(JobTypeInterviewAnalysis)
	require.NoError(t, err)
	require.Equal(t, QueueAnalysis, key)

	_, err = KeyFor("recording_upload")
	require.ErrorIs(t, err, ErrUnknownJobType)
}

func TestNewJobWrapsPayload(t *testing.T) {
	id := uuid.New()
	job, err := NewJob(JobTypeAnswerUpload, AnswerUploadPayload{InterviewID: id, QuestionIndex: 2, SpoolPath: "/tmp/a.webm"})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	require.Zero(t, job.Attempt)
	require.False(t, job.CreatedAt.IsZero())

	var payload AnswerUploadPayload
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	require.Equal(t, id, payload.InterviewID)
	require.Equal(t, 2, payload.QuestionIndex)
}
