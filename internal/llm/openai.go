package llm

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var ErrNoModel = errors.New("llm: model required")

// CompletionBackend talks to an OpenAI-compatible /completions endpoint
// (llama.cpp server, vLLM, Ollama). The raw prompt is sent untouched so
// the chat template built by the prompt package reaches the model, and
// echo is requested so output matches a local text-generation pipeline.
type CompletionBackend struct {
	client      openai.Client
	model       string
	temperature float64
}

func NewCompletionBackend(cfg Config, opts ...option.RequestOption) (*CompletionBackend, error) {
	if cfg.Model == "" {
		return nil, ErrNoModel
	}
	// Failures are terminal for the turn; callers retry if they want to.
	opts = append([]option.RequestOption{option.WithMaxRetries(0)}, opts...)
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &CompletionBackend{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// OpenAIFactory returns a Factory for CompletionBackend. A non-nil
// httpClient is used for every request (e.g. one routed through a proxy).
func OpenAIFactory(httpClient *http.Client, extra ...option.RequestOption) Factory {
	return func(cfg Config) (Backend, error) {
		opts := append([]option.RequestOption(nil), extra...)
		if httpClient != nil {
			opts = append(opts, option.WithHTTPClient(httpClient))
		}
		return NewCompletionBackend(cfg, opts...)
	}
}

func (c *CompletionBackend) Complete(ctx context.Context, prompt string, maxNewTokens int) (string, error) {
	params := openai.CompletionNewParams{
		Model:     openai.CompletionNewParamsModel(c.model),
		Prompt:    openai.CompletionNewParamsPromptUnion{OfString: openai.String(prompt)},
		MaxTokens: openai.Int(int64(maxNewTokens)),
		Echo:      openai.Bool(true),
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}

	resp, err := c.client.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	log.Debug("Completion received", "model", c.model, "finish", resp.Choices[0].FinishReason)
	return resp.Choices[0].Text, nil
}
