package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aura-hire/backend/internal/catalog"
)

const (
	analysisTemperature = 0.3
	analysisMaxTokens   = 2000

	noResponse = "No response recorded"
)

var (
	ErrNothingToAnalyze = errors.New("no questions or transcripts to analyze")
	ErrMalformedResult  = errors.New("analysis is not a JSON object")
)

// Analysis is the typed view of a stored analysis document. Unknown fields
// are kept in the raw document only.
type Analysis struct {
	Summary string `json:"summary"`
	Skills  struct {
		Technical []string `json:"technical"`
		Soft      []string `json:"soft"`
	} `json:"skills"`
	LanguageAnalysis struct {
		ClarityScore         float64 `json:"clarity_score"`
		FillerWordsCount     int     `json:"filler_words_count"`
		RepetitionIssues     int     `json:"repetition_issues"`
		OverallCommunication string  `json:"overall_communication"`
	} `json:"language_analysis"`
	QuestionAnalysis []struct {
		QuestionNumber int      `json:"question_number"`
		Strengths      []string `json:"strengths"`
		Weaknesses     []string `json:"weaknesses"`
		Score          float64  `json:"score"`
		KeyHighlights  string   `json:"key_highlights"`
	} `json:"question_analysis"`
	OverallAssessment struct {
		Strengths           []string `json:"strengths"`
		AreasForImprovement []string `json:"areas_for_improvement"`
		Recommendation      string   `json:"recommendation"`
		OverallScore        float64  `json:"overall_score"`
	} `json:"overall_assessment"`
	HRHighlights []struct {
		Timestamp string `json:"timestamp"`
		Highlight string `json:"highlight"`
		Category  string `json:"category"`
	} `json:"hr_highlights"`
}

// ParseAnalysis decodes a stored analysis document.
func ParseAnalysis(raw json.RawMessage) (*Analysis, error) {
	var a Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &a, nil
}

// Analyzer grades a completed interview.
type Analyzer struct {
	llm     Completer
	catalog *catalog.Catalog
	logger  *zap.Logger
}

func NewAnalyzer(llm Completer, cat *catalog.Catalog, logger *zap.Logger) *Analyzer {
	if cat == nil {
		cat = catalog.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{llm: llm, catalog: cat, logger: logger}
}

// Analyze returns the model's analysis document verbatim.
func (a *Analyzer) Analyze(ctx context.Context, jobTitle string, questions []string, transcripts map[int]string) (json.RawMessage, error) {
	if len(questions) == 0 || len(transcripts) == 0 {
		return nil, ErrNothingToAnalyze
	}
	if strings.TrimSpace(jobTitle) == "" {
		jobTitle = DefaultJobTitle
	}
	system, user, err := a.catalog.AnalysisPrompt(catalog.AnalysisPromptData{
		JobTitle:   jobTitle,
		Transcript: FormatTranscript(questions, transcripts),
	})
	if err != nil {
		return nil, err
	}

	content, err := a.llm.Complete(ctx, Prompt{
		System:      system,
		User:        user,
		Temperature: analysisTemperature,
		MaxTokens:   analysisMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze interview: %w", err)
	}
	raw := []byte(cleanJSONResponse(content))
	if !json.Valid(raw) || !bytes.HasPrefix(raw, []byte("{")) {
		a.logger.Warn("malformed analysis", zap.Int("bytes", len(raw)))
		return nil, ErrMalformedResult
	}
	return json.RawMessage(raw), nil
}

// FormatTranscript renders "Qn: question\nAn: answer" blocks separated by a
// blank line.
func FormatTranscript(questions []string, transcripts map[int]string) string {
	blocks := make([]string, len(questions))
	for i, q := range questions {
		answer := strings.TrimSpace(transcripts[i])
		if answer == "" {
			answer = noResponse
		}
		blocks[i] = fmt.Sprintf("Q%d: %s\nA%d: %s", i+1, q, i+1, answer)
	}
	return strings.Join(blocks, "\n\n")
}
