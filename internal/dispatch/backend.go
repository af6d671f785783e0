package dispatch

import (
	"context"
	"errors"

	"github.com/kalambet/relay/internal/config"
	"github.com/kalambet/relay/internal/ollama"
	"github.com/kalambet/relay/internal/openai"
)

// Backend executes a single prompt against one model provider.
type Backend interface {
	Kind() Kind
	Model() string
	Invoke(ctx context.Context, prompt string) (string, error)
}

// FromConfig binds the configured backend selector to a concrete Backend.
// An invalid selector or missing credentials fail here, before any network
// call is made.
func FromConfig(cfg config.Config) (Backend, error) {
	kind, err := ParseKind(cfg.Backend.Active)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return nil, errors.New(config.MissingAPIKeyMessage())
		}
		return &openaiBackend{
			client:      openai.NewClient(cfg.OpenAI.APIKey),
			model:       cfg.OpenAI.Model,
			temperature: cfg.OpenAI.Temperature,
			maxTokens:   cfg.OpenAI.MaxTokens,
		}, nil
	case KindLocal:
		return &localBackend{
			client:      ollama.New(cfg.Local.BaseURL),
			model:       cfg.Local.Model,
			temperature: cfg.Local.Temperature,
		}, nil
	default:
		return nil, errors.New("unreachable backend kind")
	}
}

type openaiBackend struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int
}

func (b *openaiBackend) Kind() Kind    { return KindOpenAI }
func (b *openaiBackend) Model() string { return b.model }

func (b *openaiBackend) Invoke(ctx context.Context, prompt string) (string, error) {
	return b.client.Complete(ctx, openai.CompletionRequest{
		Model:       b.model,
		Prompt:      prompt,
		Temperature: b.temperature,
		MaxTokens:   b.maxTokens,
	})
}

type localBackend struct {
	client      *ollama.Client
	model       string
	temperature float64
}

func (b *localBackend) Kind() Kind    { return KindLocal }
func (b *localBackend) Model() string { return b.model }

func (b *localBackend) Invoke(ctx context.Context, prompt string) (string, error) {
	return b.client.Generate(ctx, b.model, prompt, b.temperature)
}
