package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/models"
)

const (
	NoInfoAnswer = "I don't have enough information in my knowledge base to answer your question. " +
		"Please consider asking a different question or providing more context."
	ErrorAnswer = "I'm sorry, I encountered an error while generating a response."

	answeredConfidence = 0.8
)

const answerPrompt = `You are an Enterprise Q&A system. Your task is to provide accurate answers to questions based on the context provided.

## Context:
%s

## Question:
%s

## Instructions:
1. Answer the question based only on the context provided.
2. If the context doesn't contain the information needed to answer the question, say "I don't have enough information to answer that question."
3. Be concise and to the point.
4. Use bullet points or numbered lists when appropriate.
5. Format your answer using markdown when helpful.
6. Include "Sources:" section at the end if you found relevant information.

## Answer:
`

// GenerationOptions are passed through to the chat provider.
type GenerationOptions struct {
	Provider    string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Synthesizer turns a query and its retrieved chunks into a Response.
type Synthesizer struct {
	gateway llm.Gateway
	opts    GenerationOptions
}

func NewSynthesizer(gw llm.Gateway, opts GenerationOptions) *Synthesizer {
	return &Synthesizer{gateway: gw, opts: opts}
}

// Answer generates from the chunks in rank order. With no chunks it returns
// the no-information response without calling the model. A failed
// generation yields the apology with confidence 0 and no sources.
func (s *Synthesizer) Answer(ctx context.Context, query *models.Query, chunks []models.TextChunk) *models.Response {
	if len(chunks) == 0 {
		return s.NoInfo(query)
	}

	resp, err := s.gateway.Chat(ctx, llm.ChatRequest{
		Provider:    s.opts.Provider,
		Model:       s.opts.Model,
		Temperature: s.opts.Temperature,
		TopP:        s.opts.TopP,
		MaxTokens:   s.opts.MaxTokens,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(answerPrompt, buildContext(chunks), query.Text)},
		},
	})
	if err != nil {
		slog.Error("answer generation failed", "query_id", query.ID, "chunks", len(chunks), "error", err)
		return models.NewResponse(query.ID, ErrorAnswer, nil, 0)
	}
	if strings.TrimSpace(resp.Content) == "" {
		slog.Error("answer generation returned empty content", "query_id", query.ID, "model", resp.Model)
		return models.NewResponse(query.ID, ErrorAnswer, nil, 0)
	}

	slog.Info("answer generated",
		"query_id", query.ID,
		"model", resp.Model,
		"chunks", len(chunks),
		"tokens", resp.TotalTokens,
		"cost_usd", resp.CostUSD,
		"latency_ms", resp.LatencyMs,
	)
	return models.NewResponse(query.ID, resp.Content, chunks, answeredConfidence)
}

// NoInfo is the fixed answer for queries without qualifying context.
func (s *Synthesizer) NoInfo(query *models.Query) *models.Response {
	return models.NewResponse(query.ID, NoInfoAnswer, nil, 0)
}

func buildContext(chunks []models.TextChunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, "\n\n")
}
