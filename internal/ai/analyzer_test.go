package ai

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatTranscript(t *testing.T) {
	out := FormatTranscript([]string{"Who are you?", "Why us?"}, map[int]string{0: "A developer"})
	require.Equal(t, "Q1: Who are you?\nA1: A developer\n\nQ2: Why us?\nA2: No response recorded", out)
}

func TestAnalyzeReturnsDocument(t *testing.T) {
	var seen Prompt
	llm := CompleterFunc(func(_ context.Context, p Prompt) (string, error) {
		seen = p
		return `{"summary":"Solid","overall_assessment":{"recommendation":"Hire","overall_score":8.5}}`, nil
	})

	raw, err := NewAnalyzer(llm, nil, nil).Analyze(context.Background(), "", []string{"Q"}, map[int]string{0: "A"})
	require.NoError(t, err)
	require.Contains(t, seen.User, `for "General Position"`)
	require.Contains(t, seen.User, "Q1: Q\nA1: A")
	require.Equal(t, analysisMaxTokens, seen.MaxTokens)

	a, err := ParseAnalysis(raw)
	require.NoError(t, err)
	require.Equal(t, "Solid", a.Summary)
	require.Equal(t, "Hire", a.OverallAssessment.Recommendation)
	require.InDelta(t, 8.5, a.OverallAssessment.OverallScore, 0.001)
}

func TestAnalyzeRejects(t *testing.T) {
	ok := CompleterFunc(func(context.Context, Prompt) (string, error) { return `{}`, nil })
	_, err := NewAnalyzer(ok, nil, nil).Analyze(context.Background(), "Dev", nil, map[int]string{0: "A"})
	require.ErrorIs(t, err, ErrNothingToAnalyze)
	_, err = NewAnalyzer(ok, nil, nil).Analyze(context.Background(), "Dev", []string{"Q"}, nil)
	require.ErrorIs(t, err, ErrNothingToAnalyze)

	for _, content := range []string{`[1,2]`, `{"summary":`, `Sure! Here it is`} {
		llm := CompleterFunc(func(context.Context, Prompt) (string, error) { return content, nil })
		_, err := NewAnalyzer(llm, nil, nil).Analyze(context.Background(), "Dev", []string{"Q"}, map[int]string{0: "A"})
		require.ErrorIs(t, err, ErrMalformedResult, content)
	}
}

func TestParseAnalysisRejectsWrongShape(t *testing.T) {
	_, err := ParseAnalysis(json.RawMessage(`{"summary": 5}`))
	require.Error(t, err)
}
