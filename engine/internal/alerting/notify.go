package alerting

import (
	"context"
	"fmt"

	"github.com/99souls/anomalyengine/engine/models"
)

// Transport delivers a formatted message to one recipient on one channel.
// The core is indifferent to how a transport actually delivers; it only
// records the outcome (sent vs failed) on the notification.
type Transport interface {
	Send(ctx context.Context, channel models.NotificationChannel, recipient, content string) error
}

// NotificationFormatter renders an alert into the message body sent to a
// transport. Swappable so callers can customize wording without touching
// the escalation state machine.
type NotificationFormatter interface {
	Format(alert models.Alert) string
}

// DefaultFormatter implements formatAlertMessage: a deterministic string
// built from the anomaly's metric, severity, type, score, actual/expected
// value, deviation, timestamp, and description.
type DefaultFormatter struct{}

func (DefaultFormatter) Format(alert models.Alert) string {
	a := alert.Anomaly
	expected := "n/a"
	if a.ExpectedValue != nil {
		expected = fmt.Sprintf("%.3f", *a.ExpectedValue)
	}
	return fmt.Sprintf(
		"[%s] %s on %s: score=%.3f actual=%.3f expected=%s deviation=%.3f at %s — %s",
		a.Severity, a.Type, a.Context.Metric, a.Score, a.ActualValue, expected, a.Deviation,
		a.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"), a.Description,
	)
}
