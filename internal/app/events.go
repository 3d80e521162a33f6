package app

import (
	"context"

	"docqa/internal/model"
)

type EventPublisher interface {
	Publish(ctx context.Context, event model.DocumentEvent) error
}

// NoopPublisher drops events. Used when RabbitMQ is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, model.DocumentEvent) error { return nil }
