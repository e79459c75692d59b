package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, stream string, event Event) error {
	p.log.Info("event",
		zap.String("stream", stream),
		zap.String("type", event.Type),
		zap.Any("payload", event.Payload),
	)
	return nil
}
