package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docqa/internal/ai"
	"docqa/internal/observability/metrics"
)

type Completer interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
}

// Engine retrieves the top-k passages for a question and asks the model.
type Engine struct {
	embedder  Embedder
	completer Completer
	topK      int
	metrics   *metrics.Metrics
}

func NewEngine(embedder Embedder, completer Completer, topK int, m *metrics.Metrics) *Engine {
	if topK <= 0 {
		topK = 4
	}
	return &Engine{embedder: embedder, completer: completer, topK: topK, metrics: m}
}

// Answer returns the model completion verbatim.
func (e *Engine) Answer(ctx context.Context, idx *Index, question string) (string, error) {
	ctx, span := tracer.Start(ctx, "rag.answer")
	defer span.End()

	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyPrompt
	}

	answer, err := e.answer(ctx, idx, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "answer failed")
		return "", fmt.Errorf("answer: %w: %w", ErrAnswer, err)
	}
	return answer, nil
}

func (e *Engine) answer(ctx context.Context, idx *Index, question string) (string, error) {
	if idx == nil || idx.Len() == 0 {
		return "", fmt.Errorf("empty index")
	}

	started := time.Now()
	queryVec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return "", fmt.Errorf("embed question: %w", err)
	}
	hits, err := idx.Search(queryVec, e.topK)
	if err != nil {
		return "", fmt.Errorf("retrieve: %w", err)
	}
	e.metrics.ObserveStage("retrieve", time.Since(started))
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("retrieved_chunks", len(hits)))

	started = time.Now()
	answer, err := e.completer.Complete(ctx, buildMessages(question, hits))
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	e.metrics.ObserveStage("answer", time.Since(started))
	return answer, nil
}
