package eventbus

import (
	"context"

	"go.uber.org/zap"

	"github.com/matthewbaird/mobi/internal/event"
)

// LogConsumer logs all domain events for observability.
type LogConsumer struct {
	log *zap.Logger
}

// NewLogConsumer logs through the given logger, or the global one if nil.
func NewLogConsumer(log *zap.Logger) *LogConsumer {
	if log == nil {
		log = zap.L()
	}
	return &LogConsumer{log: log.Named("event")}
}

func (c *LogConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", evt.EventType),
		zap.String("category", evt.Category),
		zap.String("session_id", evt.SessionID),
	}
	if evt.FieldID != "" {
		fields = append(fields, zap.String("field_id", evt.FieldID))
	}
	c.log.Info(evt.Summary, fields...)
	return nil
}
