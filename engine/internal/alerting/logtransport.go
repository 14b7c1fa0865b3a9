package alerting

import (
	"context"
	"log/slog"

	"github.com/99souls/anomalyengine/engine/models"
	"github.com/99souls/anomalyengine/engine/telemetry/logging"
)

// LogTransport delivers notifications through a structured logger. It backs
// the default "log" channel so an Alerter is usable before any real
// transport (email, Slack, pager) is wired in.
type LogTransport struct {
	logger logging.Logger
}

// NewLogTransport builds a LogTransport; nil logger falls back to slog.Default().
func NewLogTransport(logger logging.Logger) *LogTransport {
	if logger == nil {
		logger = logging.New(nil)
	}
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, channel models.NotificationChannel, recipient, content string) error {
	t.logger.InfoCtx(ctx, "alert notification",
		slog.String("channel", string(channel)),
		slog.String("recipient", recipient),
		slog.String("content", content),
	)
	return nil
}
