package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/99souls/anomalyengine/engine/clock"
	events "github.com/99souls/anomalyengine/engine/internal/telemetry/events"
	"github.com/99souls/anomalyengine/engine/models"
	"github.com/stretchr/testify/require"
)

var errTransportFailed = errors.New("transport failed")

type recordingTransport struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (t *recordingTransport) Send(ctx context.Context, channel models.NotificationChannel, recipient, content string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail {
		return errTransportFailed
	}
	t.sent = append(t.sent, recipient+":"+content)
	return nil
}

func twoLevelPolicy() models.EscalationPolicy {
	return models.EscalationPolicy{
		Levels: []models.EscalationLevel{
			{Level: 1, DelayMinutes: 0, Recipients: []string{"oncall"}, Channels: []models.NotificationChannel{"email"}},
			{Level: 2, DelayMinutes: 5, Recipients: []string{"manager"}, Channels: []models.NotificationChannel{"email"}},
			{Level: 3, DelayMinutes: 15, Recipients: []string{"director"}, Channels: []models.NotificationChannel{"email"}},
		},
	}
}

func sampleAnomaly(metric string, severity models.Severity) models.Anomaly {
	return models.Anomaly{
		ID:       "anom-1",
		Type:     models.AnomalySpike,
		Severity: severity,
		Score:    0.95,
		Context:  models.AnomalyContext{Metric: metric},
		Sample:   models.Sample{Source: "svc-a", Metric: metric, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func newTestAlerter(t *testing.T) (*Alerter, *clock.Manual, *recordingTransport) {
	t.Helper()
	c := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := events.NewBus(nil)
	transport := &recordingTransport{}
	al := New(c, c, bus, map[models.NotificationChannel]Transport{"email": transport})
	return al, c, transport
}

func TestProcessAnomalyCreatesAlertAndSendsLevelOne(t *testing.T) {
	al, _, transport := newTestAlerter(t)
	al.Configure(Config{
		Enabled: true,
		Rules: []models.AlertRule{
			{ID: "rule-1", Enabled: true, SeverityThreshold: models.SeverityMedium, Escalation: twoLevelPolicy()},
		},
	})

	alert, err := al.ProcessAnomaly(context.Background(), sampleAnomaly("cpu.pct", models.SeverityHigh))
	require.NoError(t, err)
	require.NotNil(t, alert)
	require.Equal(t, models.AlertOpen, alert.Status)
	require.Len(t, alert.Notifications, 1)
	require.Len(t, transport.sent, 1)
}

func TestProcessAnomalyReturnsNilWhenDisabled(t *testing.T) {
	al, _, _ := newTestAlerter(t)
	al.Configure(Config{Enabled: false})

	alert, err := al.ProcessAnomaly(context.Background(), sampleAnomaly("cpu.pct", models.SeverityHigh))
	require.NoError(t, err)
	require.Nil(t, alert)
}

func TestProcessAnomalySuppressedBySuppressionRule(t *testing.T) {
	al, _, _ := newTestAlerter(t)
	al.Configure(Config{
		Enabled: true,
		Rules: []models.AlertRule{
			{ID: "rule-1", Enabled: true, SeverityThreshold: models.SeverityLow, Escalation: twoLevelPolicy()},
		},
		SuppressionRules: []models.SuppressionRule{
			{ID: "maint", Enabled: true, Condition: "metric == \"cpu.pct\""},
		},
	})

	alert, err := al.ProcessAnomaly(context.Background(), sampleAnomaly("cpu.pct", models.SeverityHigh))
	require.NoError(t, err)
	require.Nil(t, alert)
}

func TestProcessAnomalyRateLimited(t *testing.T) {
	al, _, _ := newTestAlerter(t)
	al.Configure(Config{
		Enabled: true,
		Rules: []models.AlertRule{
			{ID: "rule-1", Enabled: true, SeverityThreshold: models.SeverityLow, RateLimitPerMin: 1, Escalation: twoLevelPolicy()},
		},
	})

	first, err := al.ProcessAnomaly(context.Background(), sampleAnomaly("cpu.pct", models.SeverityHigh))
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := al.ProcessAnomaly(context.Background(), sampleAnomaly("cpu.pct", models.SeverityHigh))
	require.NoError(t, err)
	require.Nil(t, second)
}

func TestEscalationFiresAtScheduledDelay(t *testing.T) {
	al, c, transport := newTestAlerter(t)
	al.Configure(Config{
		Enabled: true,
		Rules: []models.AlertRule{
			{ID: "rule-1", Enabled: true, SeverityThreshold: models.SeverityLow, Escalation: twoLevelPolicy()},
		},
	})

	_, err := al.ProcessAnomaly(context.Background(), sampleAnomaly("cpu.pct", models.SeverityHigh))
	require.NoError(t, err)
	require.Len(t, transport.sent, 1)

	c.Advance(5 * time.Minute)
	require.Len(t, transport.sent, 2)

	// level 3 fires at createdAt+20min (cumulative 0+5+15); 5min already elapsed.
	c.Advance(15 * time.Minute)
	require.Len(t, transport.sent, 3)
}

func TestAcknowledgeCancelsPendingEscalations(t *testing.T) {
	al, c, transport := newTestAlerter(t)
	al.Configure(Config{
		Enabled: true,
		Rules: []models.AlertRule{
			{ID: "rule-1", Enabled: true, SeverityThreshold: models.SeverityLow, Escalation: twoLevelPolicy()},
		},
	})

	alert, err := al.ProcessAnomaly(context.Background(), sampleAnomaly("cpu.pct", models.SeverityHigh))
	require.NoError(t, err)
	require.Len(t, transport.sent, 1)

	c.Advance(2 * time.Minute)
	ok, err := al.Acknowledge(alert.ID, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	c.Advance(20 * time.Minute)
	require.Len(t, transport.sent, 1, "no further escalation levels should fire after acknowledgement")

	got, found := al.GetAlert(alert.ID)
	require.True(t, found)
	require.Equal(t, models.AlertAcknowledged, got.Status)
	require.Equal(t, "alice", got.AcknowledgedBy)
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	al, _, _ := newTestAlerter(t)
	al.Configure(Config{
		Enabled: true,
		Rules: []models.AlertRule{
			{ID: "rule-1", Enabled: true, SeverityThreshold: models.SeverityLow, Escalation: twoLevelPolicy()},
		},
	})
	alert, err := al.ProcessAnomaly(context.Background(), sampleAnomaly("cpu.pct", models.SeverityHigh))
	require.NoError(t, err)

	ok1, err := al.Acknowledge(alert.ID, "alice")
	require.NoError(t, err)
	require.True(t, ok1)

	ok2, err := al.Acknowledge(alert.ID, "bob")
	require.NoError(t, err)
	require.True(t, ok2)

	got, _ := al.GetAlert(alert.ID)
	require.Equal(t, "alice", got.AcknowledgedBy, "second Acknowledge must not mutate state")
}

func TestResolveCancelsPendingEscalations(t *testing.T) {
	al, c, transport := newTestAlerter(t)
	al.Configure(Config{
		Enabled: true,
		Rules: []models.AlertRule{
			{ID: "rule-1", Enabled: true, SeverityThreshold: models.SeverityLow, Escalation: twoLevelPolicy()},
		},
	})
	alert, err := al.ProcessAnomaly(context.Background(), sampleAnomaly("cpu.pct", models.SeverityHigh))
	require.NoError(t, err)
	require.Len(t, transport.sent, 1)

	ok, err := al.Resolve(alert.ID)
	require.NoError(t, err)
	require.True(t, ok)

	c.Advance(20 * time.Minute)
	require.Len(t, transport.sent, 1)
}

func TestNoMatchingRuleProducesNoAlert(t *testing.T) {
	al, _, _ := newTestAlerter(t)
	al.Configure(Config{
		Enabled: true,
		Rules: []models.AlertRule{
			{ID: "rule-1", Enabled: true, SeverityThreshold: models.SeverityCritical, Escalation: twoLevelPolicy()},
		},
	})

	alert, err := al.ProcessAnomaly(context.Background(), sampleAnomaly("cpu.pct", models.SeverityLow))
	require.NoError(t, err)
	require.Nil(t, alert)
}
