package alerting

import (
	"testing"
	"time"

	"github.com/99souls/anomalyengine/engine/models"
	"github.com/stretchr/testify/require"
)

func testAnomaly(severity models.Severity, metric string) models.Anomaly {
	return models.Anomaly{
		Type:     models.AnomalySpike,
		Severity: severity,
		Score:    0.9,
		Context:  models.AnomalyContext{Metric: metric},
		Sample:   models.Sample{Source: "svc-a", Metric: metric},
	}
}

func TestFindMatchingRuleRequiresSeverityAndPattern(t *testing.T) {
	patterns := newPatternCache()
	rules := []models.AlertRule{
		{ID: "low-priority", Enabled: true, SeverityThreshold: models.SeverityCritical, MetricPatterns: []string{"^cpu\\."}},
		{ID: "general", Enabled: true, SeverityThreshold: models.SeverityMedium, MetricPatterns: []string{"^latency\\."}},
	}
	a := testAnomaly(models.SeverityHigh, "latency.p99")

	rule, ok := findMatchingRule(rules, a, patterns)
	require.True(t, ok)
	require.Equal(t, "general", rule.ID)
}

func TestFindMatchingRuleSkipsDisabledRule(t *testing.T) {
	patterns := newPatternCache()
	rules := []models.AlertRule{
		{ID: "disabled", Enabled: false, SeverityThreshold: models.SeverityLow},
	}
	a := testAnomaly(models.SeverityCritical, "cpu.pct")

	_, ok := findMatchingRule(rules, a, patterns)
	require.False(t, ok)
}

func TestFindMatchingRuleNoPatternsMatchesAnyMetric(t *testing.T) {
	patterns := newPatternCache()
	rules := []models.AlertRule{
		{ID: "catch-all", Enabled: true, SeverityThreshold: models.SeverityLow},
	}
	a := testAnomaly(models.SeverityLow, "anything.goes")

	rule, ok := findMatchingRule(rules, a, patterns)
	require.True(t, ok)
	require.Equal(t, "catch-all", rule.ID)
}

func TestIsSuppressedEvaluatesConditionAgainstAnomaly(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rules := []models.SuppressionRule{
		{ID: "maintenance", Enabled: true, Condition: "severity == \"low\""},
	}

	a := testAnomaly(models.SeverityLow, "cpu.pct")
	rule, suppressed := isSuppressed(rules, a, now)
	require.True(t, suppressed)
	require.Equal(t, "maintenance", rule.ID)

	a2 := testAnomaly(models.SeverityCritical, "cpu.pct")
	_, suppressed2 := isSuppressed(rules, a2, now)
	require.False(t, suppressed2)
}

func TestIsSuppressedRespectsValidityWindow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	rules := []models.SuppressionRule{
		{ID: "window", Enabled: true, Condition: "true == true", ValidFrom: &start, ValidTo: &end},
	}
	a := testAnomaly(models.SeverityLow, "cpu.pct")

	_, before := isSuppressed(rules, a, start.Add(-time.Hour))
	require.False(t, before)

	_, during := isSuppressed(rules, a, start.Add(time.Hour))
	require.True(t, during)

	_, after := isSuppressed(rules, a, end.Add(time.Hour))
	require.False(t, after)
}

func TestIsSuppressedTreatsInvalidExpressionAsNonMatching(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rules := []models.SuppressionRule{
		{ID: "broken", Enabled: true, Condition: "not a valid expression((("},
	}
	a := testAnomaly(models.SeverityLow, "cpu.pct")

	_, suppressed := isSuppressed(rules, a, now)
	require.False(t, suppressed)
}
