package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/aura-hire/backend/config"
)

// OpenAIConfigFrom maps the environment settings onto the client config.
func OpenAIConfigFrom(c config.OpenAIConfig) OpenAIConfig {
	return OpenAIConfig{
		APIKey:             c.APIKey,
		BaseURL:            c.BaseURL,
		ChatModel:          c.ChatModel,
		TranscriptionModel: c.TranscriptionModel,
		Timeout:            time.Duration(c.TimeoutSec) * time.Second,
	}
}

// NewCompleter builds the LLM selected by AI_PROVIDER. The returned close
// func releases the provider's client.
func NewCompleter(ctx context.Context, cfg *config.Config) (Completer, func() error, error) {
	switch cfg.Interview.AIProvider {
	case config.ProviderVertex:
		v, err := NewVertexClient(ctx, cfg.VertexAI.ProjectID, cfg.VertexAI.Location, cfg.VertexAI.Model)
		if err != nil {
			return nil, nil, err
		}
		return v, v.Close, nil
	case config.ProviderOpenAI, "":
		return NewOpenAIClient(OpenAIConfigFrom(cfg.OpenAI)), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown AI provider %q", cfg.Interview.AIProvider)
	}
}
