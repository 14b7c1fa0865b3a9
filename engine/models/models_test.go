package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityFromScore(t *testing.T) {
	cases := []struct {
		score, confidence float64
		want              Severity
	}{
		{1.0, 1.0, SeverityCritical},
		{0.9, 1.0, SeverityCritical},
		{0.8, 0.9, SeverityHigh},
		{0.7, 1.0, SeverityHigh},
		{0.5, 0.8, SeverityMedium},
		{0.4, 1.0, SeverityMedium},
		{0.1, 0.5, SeverityLow},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, SeverityFromScore(c.score, c.confidence), "score=%v confidence=%v", c.score, c.confidence)
	}
}

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityLow.Less(SeverityMedium))
	assert.True(t, SeverityMedium.Less(SeverityHigh))
	assert.True(t, SeverityHigh.Less(SeverityCritical))
	assert.True(t, SeverityHigh.GreaterOrEqual(SeverityMedium))
	assert.False(t, SeverityLow.GreaterOrEqual(SeverityMedium))
}

func TestSampleValidate(t *testing.T) {
	now := time.Now()
	valid := Sample{Source: "s1", Metric: "cpu", Value: 1.0, Timestamp: now}
	require.NoError(t, valid.Validate())

	missing := Sample{Metric: "cpu", Value: 1.0, Timestamp: now}
	require.ErrorIs(t, missing.Validate(), ErrInvalidSample)

	nonFinite := Sample{Source: "s1", Metric: "cpu", Value: math.NaN(), Timestamp: now}
	require.ErrorIs(t, nonFinite.Validate(), ErrInvalidSample)
}

func TestAlertTransitions(t *testing.T) {
	now := time.Now()
	a := &Alert{Status: AlertOpen, CreatedAt: now, UpdatedAt: now}

	require.NoError(t, a.Transition(AlertAcknowledged, now.Add(time.Minute)))
	assert.Equal(t, AlertAcknowledged, a.Status)
	require.NotNil(t, a.AcknowledgedAt)

	require.Error(t, a.Transition(AlertSuppressed, now.Add(2*time.Minute)))

	require.NoError(t, a.Transition(AlertResolved, now.Add(3*time.Minute)))
	require.NotNil(t, a.ResolvedAt)

	require.NoError(t, a.Transition(AlertClosed, now.Add(4*time.Minute)))
	require.Error(t, a.Transition(AlertOpen, now.Add(5*time.Minute)))
}

func TestAlertRuleMatches(t *testing.T) {
	rule := AlertRule{Enabled: true, SeverityThreshold: SeverityHigh, AnomalyTypes: []AnomalyType{AnomalySpike}}
	a := Anomaly{Severity: SeverityCritical, Type: AnomalySpike}
	assert.True(t, rule.Matches(a))

	low := Anomaly{Severity: SeverityLow, Type: AnomalySpike}
	assert.False(t, rule.Matches(low))

	wrongType := Anomaly{Severity: SeverityCritical, Type: AnomalyDrop}
	assert.False(t, rule.Matches(wrongType))
}

func TestEscalationPolicyCumulativeDelay(t *testing.T) {
	policy := EscalationPolicy{Levels: []EscalationLevel{
		{Level: 1, DelayMinutes: 5},
		{Level: 2, DelayMinutes: 10},
		{Level: 3, DelayMinutes: 15},
	}}
	assert.Equal(t, 5*time.Minute, policy.CumulativeDelay(0))
	assert.Equal(t, 15*time.Minute, policy.CumulativeDelay(1))
	assert.Equal(t, 30*time.Minute, policy.CumulativeDelay(2))
}
