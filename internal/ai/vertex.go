package ai

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

const (
	DefaultVertexLocation = "us-central1"
	DefaultVertexModel    = "gemini-1.5-flash"
)

// VertexClient is a Completer backed by a Gemini model on Vertex AI.
type VertexClient struct {
	client *genai.Client
	model  string
}

func NewVertexClient(ctx context.Context, projectID, location, model string) (*VertexClient, error) {
	if projectID == "" {
		return nil, fmt.Errorf("vertex ai: project id is required")
	}
	if location == "" {
		location = DefaultVertexLocation
	}
	if model == "" {
		model = DefaultVertexModel
	}
	client, err := genai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, fmt.Errorf("create vertex ai client: %w", err)
	}
	return &VertexClient{client: client, model: model}, nil
}

func (v *VertexClient) Complete(ctx context.Context, p Prompt) (string, error) {
	m := v.client.GenerativeModel(v.model)
	m.SetTemperature(p.Temperature)
	if p.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(p.MaxTokens))
	}
	if p.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(p.System)}}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyCompletion
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	content := cleanJSONResponse(b.String())
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

func (v *VertexClient) Close() error {
	return v.client.Close()
}
