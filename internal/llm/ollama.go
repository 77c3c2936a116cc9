package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaEmbedModel = "nomic-embed-text"

// OllamaProvider talks to a local Ollama server over its JSON HTTP API.
// Local models are free, so responses always report zero cost.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

func NewOllamaProvider(baseURL string) *OllamaProvider {
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaSampling struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatBody struct {
	Model    string          `json:"model"`
	Messages []ollamaTurn    `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaSampling `json:"options,omitempty"`
}

type ollamaChatReply struct {
	Message         ollamaTurn `json:"message"`
	PromptEvalCount int        `json:"prompt_eval_count"`
	EvalCount       int        `json:"eval_count"`
}

func (p *OllamaProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := ollamaChatBody{Model: req.Model, Messages: make([]ollamaTurn, len(req.Messages))}
	for i, m := range req.Messages {
		body.Messages[i] = ollamaTurn{Role: m.Role, Content: m.Content}
	}
	if req.Temperature > 0 || req.TopP > 0 || req.MaxTokens > 0 {
		body.Options = &ollamaSampling{Temperature: req.Temperature, TopP: req.TopP, NumPredict: req.MaxTokens}
	}

	start := time.Now()
	var reply ollamaChatReply
	if err := p.post(ctx, "/api/chat", body, &reply); err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	return &ChatResponse{
		Provider:     p.Name(),
		Model:        req.Model,
		Content:      reply.Message.Content,
		InputTokens:  reply.PromptEvalCount,
		OutputTokens: reply.EvalCount,
		TotalTokens:  reply.PromptEvalCount + reply.EvalCount,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

type ollamaEmbedBody struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedReply struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *OllamaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	model := req.Model
	if model == "" {
		model = defaultOllamaEmbedModel
	}

	var reply ollamaEmbedReply
	body := ollamaEmbedBody{Model: model, Input: withTaskPrefix(model, req.Mode, req.Input)}
	if err := p.post(ctx, "/api/embed", body, &reply); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(reply.Embeddings) != len(req.Input) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(reply.Embeddings), len(req.Input))
	}

	return &EmbeddingResponse{
		Provider:   p.Name(),
		Model:      model,
		Embeddings: reply.Embeddings,
	}, nil
}

func (p *OllamaProvider) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// withTaskPrefix applies the task prefixes nomic-embed models are trained
// with, so queries and passages embed into a comparable space.
func withTaskPrefix(model string, mode EmbeddingMode, input []string) []string {
	if !strings.HasPrefix(model, "nomic-embed") || mode == "" {
		return input
	}
	prefix := "search_document: "
	if mode == ModeQuery {
		prefix = "search_query: "
	}
	out := make([]string, len(input))
	for i, s := range input {
		out[i] = prefix + s
	}
	return out
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
