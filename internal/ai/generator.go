package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aura-hire/backend/internal/catalog"
)

const (
	DefaultJobTitle      = "General Position"
	DefaultQuestionCount = 5

	questionTemperature = 0.7
	questionMaxTokens   = 512
)

// QuestionRequest describes the interview to write questions for.
type QuestionRequest struct {
	JobTitle string
	Resume   string
	Language string
}

// QuestionGenerator asks the language model for interview questions.
type QuestionGenerator struct {
	llm     Completer
	catalog *catalog.Catalog
	count   int
	logger  *zap.Logger
}

func NewQuestionGenerator(llm Completer, cat *catalog.Catalog, count int, logger *zap.Logger) *QuestionGenerator {
	if cat == nil {
		cat = catalog.Default()
	}
	if count <= 0 {
		count = DefaultQuestionCount
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionGenerator{llm: llm, catalog: cat, count: count, logger: logger}
}

// Generate never fails: any vendor or parse error yields the language's
// self-introduction question.
func (g *QuestionGenerator) Generate(ctx context.Context, req QuestionRequest) []string {
	lang := g.catalog.Lookup(req.Language)
	fallback := []string{lang.SelfIntro}

	if g.llm == nil {
		return fallback
	}
	jobTitle := strings.TrimSpace(req.JobTitle)
	if jobTitle == "" {
		jobTitle = DefaultJobTitle
	}
	system, user, err := g.catalog.QuestionPrompt(catalog.QuestionPromptData{
		Language: lang,
		JobTitle: jobTitle,
		Resume:   strings.TrimSpace(req.Resume),
		Count:    g.count,
	})
	if err != nil {
		g.logger.Error("render question prompt", zap.Error(err))
		return fallback
	}

	content, err := g.llm.Complete(ctx, Prompt{
		System:      system,
		User:        user,
		Temperature: questionTemperature,
		MaxTokens:   questionMaxTokens,
	})
	if err != nil {
		g.logger.Warn("question generation failed", zap.String("language", lang.Code), zap.Error(err))
		return fallback
	}
	questions, err := ParseQuestions(content)
	if err != nil {
		g.logger.Warn("unparseable generated questions", zap.String("language", lang.Code), zap.Error(err))
		return fallback
	}
	if len(questions) > g.count {
		questions = questions[:g.count]
	}
	return questions
}

// ParseQuestions decodes a JSON array of question strings, dropping blanks.
func ParseQuestions(content string) ([]string, error) {
	var raw []string
	if err := json.Unmarshal([]byte(cleanJSONResponse(content)), &raw); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	out := make([]string, 0, len(raw))
	for _, q := range raw {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("decode questions: no questions")
	}
	return out, nil
}
