package publisher

import (
	"context"

	"go.uber.org/zap"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
)

// LogSink writes notifications to the log. It stands in for the chat
// transport when none is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) Publish(_ context.Context, n model.Notification) error {
	l.logger.Info("notification",
		zap.Stringer("kind", n.Kind),
		zap.String("title", n.Title),
		zap.String("text", n.Text),
		zap.Time("at", n.At),
	)
	return nil
}

func (l *LogSink) RegisterDevice(model.Device) error {
	return nil
}
