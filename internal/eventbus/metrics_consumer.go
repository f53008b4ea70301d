package eventbus

import (
	"context"

	"github.com/matthewbaird/mobi/internal/event"
	"github.com/matthewbaird/mobi/internal/metrics"
)

// MetricsConsumer counts domain events by type and category.
type MetricsConsumer struct {
	m *metrics.Metrics
}

// NewMetricsConsumer creates a consumer recording into m.
func NewMetricsConsumer(m *metrics.Metrics) *MetricsConsumer {
	return &MetricsConsumer{m: m}
}

func (c *MetricsConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	c.m.ObserveEvent(evt.EventType, evt.Category)
	return nil
}
