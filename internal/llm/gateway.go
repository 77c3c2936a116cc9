package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nikhilbhutani/docqa/internal/config"
)

type gateway struct {
	providers         map[string]Provider
	defaultProvider   string
	fallbackProvider  string
	embeddingProvider string
	maxRetries        int
}

// NewGateway registers a provider for every configured credential.
// Embedding requests without an explicit provider go to embeddingProvider.
func NewGateway(cfg config.LLMConfig, embeddingProvider string) Gateway {
	g := &gateway{
		providers:         make(map[string]Provider),
		defaultProvider:   cfg.DefaultProvider,
		fallbackProvider:  cfg.FallbackProvider,
		embeddingProvider: embeddingProvider,
		maxRetries:        cfg.MaxRetries,
	}

	if cfg.OpenAIKey != "" {
		g.providers["openai"] = NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIBaseURL)
	}
	if cfg.AnthropicKey != "" {
		g.providers["anthropic"] = NewAnthropicProvider(cfg.AnthropicKey)
	}
	if cfg.OllamaURL != "" {
		g.providers["ollama"] = NewOllamaProvider(cfg.OllamaURL)
	}

	return g
}

// NewGatewayWithProviders builds a gateway over explicit providers.
func NewGatewayWithProviders(defaultProvider, embeddingProvider string, maxRetries int, providers ...Provider) Gateway {
	g := &gateway{
		providers:         make(map[string]Provider, len(providers)),
		defaultProvider:   defaultProvider,
		embeddingProvider: embeddingProvider,
		maxRetries:        maxRetries,
	}
	for _, p := range providers {
		g.providers[p.Name()] = p
	}
	return g
}

func (g *gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

func (g *gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}

	resp, err := g.chatWithRetry(ctx, providerName, req)
	if err != nil && g.fallbackProvider != "" && g.fallbackProvider != providerName {
		slog.Warn("primary provider failed, trying fallback",
			"primary", providerName,
			"fallback", g.fallbackProvider,
			"error", err,
		)
		return g.chatWithRetry(ctx, g.fallbackProvider, req)
	}
	return resp, err
}

// chatWithRetry makes up to maxRetries+1 attempts with exponential backoff.
func (g *gateway) chatWithRetry(ctx context.Context, providerName string, req ChatRequest) (*ChatResponse, error) {
	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(g.maxRetries, 0))), ctx)

	var resp *ChatResponse
	call := func() error {
		r, err := p.ChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		slog.Debug("retrying LLM call", "provider", providerName, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(call, policy, notify); err != nil {
		return nil, fmt.Errorf("all retries exhausted for %s: %w", providerName, err)
	}
	return resp, nil
}

func (g *gateway) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.embeddingProvider
	}
	if providerName == "" {
		providerName = g.defaultProvider
	}

	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}

	resp, err := p.GenerateEmbedding(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(req.Input) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d inputs", providerName, len(resp.Embeddings), len(req.Input))
	}
	return resp, nil
}
