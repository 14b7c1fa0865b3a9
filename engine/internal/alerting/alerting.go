package alerting

import (
	"context"
	"strings"
	"sync"

	"github.com/99souls/anomalyengine/engine/clock"
	events "github.com/99souls/anomalyengine/engine/internal/telemetry/events"
	"github.com/99souls/anomalyengine/engine/models"
	"github.com/google/uuid"
)

// Config holds the alerting component's live configuration (the
// `alerting.*` keys of the engine configuration schema).
type Config struct {
	Enabled          bool
	Rules            []models.AlertRule
	SuppressionRules []models.SuppressionRule
}

// Alerter drives the alert lifecycle: suppression, rate limiting, rule
// matching, alert creation, and cancellable multi-level escalation.
type Alerter struct {
	clock      clock.Clock
	scheduler  clock.Scheduler
	limiter    *RateLimiter
	patterns   *patternCache
	bus        events.Bus
	formatter  NotificationFormatter
	transports map[models.NotificationChannel]Transport

	mu     sync.Mutex
	cfg    Config
	alerts map[string]*models.Alert
	timers map[string][]clock.CancelTimer
}

// New builds an Alerter. transports may be nil or partial; a channel with
// no registered transport still records a notification, marked failed.
func New(c clock.Clock, sched clock.Scheduler, bus events.Bus, transports map[models.NotificationChannel]Transport) *Alerter {
	if c == nil {
		c = clock.Real()
	}
	if sched == nil {
		sched = clock.RealScheduler()
	}
	if transports == nil {
		transports = map[models.NotificationChannel]Transport{}
	}
	return &Alerter{
		clock:      c,
		scheduler:  sched,
		limiter:    NewRateLimiter(c),
		patterns:   newPatternCache(),
		bus:        bus,
		formatter:  DefaultFormatter{},
		transports: transports,
		alerts:     make(map[string]*models.Alert),
		timers:     make(map[string][]clock.CancelTimer),
	}
}

// SetFormatter overrides the default message formatter.
func (al *Alerter) SetFormatter(f NotificationFormatter) {
	al.mu.Lock()
	defer al.mu.Unlock()
	al.formatter = f
}

// Configure replaces the live rule set and suppression rules.
func (al *Alerter) Configure(cfg Config) {
	al.mu.Lock()
	defer al.mu.Unlock()
	al.cfg = cfg
}

// GetAlert returns a copy of an alert by ID.
func (al *Alerter) GetAlert(id string) (models.Alert, bool) {
	al.mu.Lock()
	defer al.mu.Unlock()
	a, ok := al.alerts[id]
	if !ok {
		return models.Alert{}, false
	}
	return *a, true
}

// ProcessAnomaly runs the six-step alert pipeline: disabled check,
// suppression, rule matching, the matched rule's rate limiting, alert
// creation with immediate level-1 notifications, and scheduling of levels
// 2..n.
func (al *Alerter) ProcessAnomaly(ctx context.Context, a models.Anomaly) (*models.Alert, error) {
	al.mu.Lock()
	cfg := al.cfg
	al.mu.Unlock()

	if !cfg.Enabled {
		return nil, nil
	}

	now := al.clock.Now()

	if _, suppressed := isSuppressed(cfg.SuppressionRules, a, now); suppressed {
		return nil, nil
	}

	rule, ok := findMatchingRule(cfg.Rules, a, al.patterns)
	if !ok {
		return nil, nil
	}

	if !al.limiter.Allow(rule.ID, rule.RateLimitPerMin, rule.RateLimitPerHour) {
		return nil, nil
	}

	alert := &models.Alert{
		ID:        uuid.NewString(),
		Anomaly:   a,
		Rule:      rule.ID,
		Status:    models.AlertOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}

	al.mu.Lock()
	al.alerts[alert.ID] = alert
	al.mu.Unlock()

	if len(rule.Escalation.Levels) > 0 {
		al.fireLevel(ctx, alert.ID, 0, rule.Escalation)
		al.scheduleEscalations(ctx, alert.ID, rule.Escalation)
	}

	al.publish(ctx, "anomaly.alert.created", alert)
	return alert, nil
}

// scheduleEscalations arms cancellable timers for levels 2..n (index 1..).
// If level 1 (index 0) already asked to stop escalation, nothing further
// is scheduled.
func (al *Alerter) scheduleEscalations(ctx context.Context, alertID string, policy models.EscalationPolicy) {
	if policy.Levels[0].StopEscalation {
		return
	}
	for i := 1; i < len(policy.Levels); i++ {
		idx := i
		delay := policy.CumulativeDelay(idx)
		timer := al.scheduler.AfterFunc(delay, func() {
			al.fireLevel(ctx, alertID, idx, policy)
		})
		al.mu.Lock()
		al.timers[alertID] = append(al.timers[alertID], timer)
		al.mu.Unlock()
	}
}

// fireLevel records one escalation level's notifications on the alert and
// delivers them through the registered transports. It is a no-op if the
// alert has since been acknowledged, resolved, or closed (per spec,
// escalation levels never fire after acknowledgedAt or resolvedAt).
func (al *Alerter) fireLevel(ctx context.Context, alertID string, levelIdx int, policy models.EscalationPolicy) {
	al.mu.Lock()
	alert, ok := al.alerts[alertID]
	if !ok || alert.Status != models.AlertOpen {
		al.mu.Unlock()
		return
	}
	level := policy.Levels[levelIdx]
	now := al.clock.Now()
	alert.Escalations = append(alert.Escalations, models.Escalation{
		Level:       level.Level,
		TriggeredAt: now,
		Recipients:  level.Recipients,
		Channels:    level.Channels,
	})
	for _, ch := range level.Channels {
		for _, rcpt := range level.Recipients {
			alert.Notifications = append(alert.Notifications, al.deliver(ctx, alert, ch, rcpt))
		}
	}
	alert.UpdatedAt = now
	stop := level.StopEscalation
	al.mu.Unlock()

	if stop {
		al.cancelTimers(alertID)
	}
	if levelIdx > 0 {
		al.publish(ctx, "anomaly.alert.escalated", alert)
	}
}

func (al *Alerter) deliver(ctx context.Context, alert *models.Alert, ch models.NotificationChannel, recipient string) models.Notification {
	notif := models.Notification{
		ID:        uuid.NewString(),
		Channel:   ch,
		Recipient: recipient,
		SentAt:    al.clock.Now(),
		Status:    models.NotificationPending,
		Content:   al.formatter.Format(*alert),
	}
	transport, ok := al.transports[ch]
	if !ok {
		notif.Status = models.NotificationFailed
		return notif
	}
	if err := transport.Send(ctx, ch, recipient, notif.Content); err != nil {
		notif.Status = models.NotificationFailed
		return notif
	}
	notif.Status = models.NotificationSent
	return notif
}

// Acknowledge transitions an alert to acknowledged and cancels any pending
// escalation timers. Idempotent: acknowledging an already-acknowledged
// alert returns (true, nil) without further mutation.
func (al *Alerter) Acknowledge(alertID, user string) (bool, error) {
	al.mu.Lock()
	alert, ok := al.alerts[alertID]
	if !ok {
		al.mu.Unlock()
		return false, models.ErrUnknownAlert
	}
	if alert.Status == models.AlertAcknowledged {
		al.mu.Unlock()
		return true, nil
	}
	now := al.clock.Now()
	if err := alert.Transition(models.AlertAcknowledged, now); err != nil {
		al.mu.Unlock()
		return false, err
	}
	alert.AcknowledgedBy = user
	al.mu.Unlock()

	al.cancelTimers(alertID)
	al.publish(context.Background(), "anomaly.alert.acknowledged", alert)
	return true, nil
}

// Resolve transitions an alert to resolved and cancels any pending
// escalation timers. Idempotent like Acknowledge.
func (al *Alerter) Resolve(alertID string) (bool, error) {
	al.mu.Lock()
	alert, ok := al.alerts[alertID]
	if !ok {
		al.mu.Unlock()
		return false, models.ErrUnknownAlert
	}
	if alert.Status == models.AlertResolved {
		al.mu.Unlock()
		return true, nil
	}
	now := al.clock.Now()
	if err := alert.Transition(models.AlertResolved, now); err != nil {
		al.mu.Unlock()
		return false, err
	}
	al.mu.Unlock()

	al.cancelTimers(alertID)
	al.publish(context.Background(), "anomaly.alert.resolved", alert)
	return true, nil
}

func (al *Alerter) cancelTimers(alertID string) {
	al.mu.Lock()
	timers := al.timers[alertID]
	delete(al.timers, alertID)
	al.mu.Unlock()
	for _, t := range timers {
		t.Cancel()
	}
}

func (al *Alerter) publish(ctx context.Context, eventType string, alert *models.Alert) {
	if al.bus == nil {
		return
	}
	recipients := make([]string, 0, len(alert.Notifications))
	for _, n := range alert.Notifications {
		recipients = append(recipients, n.Recipient)
	}
	_ = al.bus.PublishCtx(ctx, events.Event{
		Category: events.CategoryAlerting,
		Type:     eventType,
		Labels:   map[string]string{"alertId": alert.ID, "rule": alert.Rule},
		Fields: map[string]interface{}{
			"severity":    string(alert.Anomaly.Severity),
			"status":      string(alert.Status),
			"metric":      alert.Anomaly.Context.Metric,
			"recipients":  strings.Join(recipients, ","),
			"escalations": len(alert.Escalations),
		},
	})
}
