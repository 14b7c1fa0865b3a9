package alerting

import (
	"regexp"
	"sync"
	"time"

	"github.com/99souls/anomalyengine/engine/internal/expr"
	"github.com/99souls/anomalyengine/engine/models"
)

// patternCache compiles and caches metric-pattern regexes so repeated rule
// evaluation against the same rule set doesn't recompile on every anomaly.
type patternCache struct {
	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

func newPatternCache() *patternCache {
	return &patternCache{cache: make(map[string]*regexp.Regexp)}
}

func (c *patternCache) compile(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.cache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.cache[pattern] = re
	return re, nil
}

// matchesMetricPatterns reports whether metric matches at least one of
// patterns. An empty pattern list matches everything. An invalid pattern is
// treated as non-matching rather than failing the whole rule evaluation.
func (c *patternCache) matchesMetricPatterns(metric string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		re, err := c.compile(p)
		if err != nil {
			continue
		}
		if re.MatchString(metric) {
			return true
		}
	}
	return false
}

// findMatchingRule returns the first enabled rule (in order) matching a, also
// requiring its metric patterns to match, since models.AlertRule.Matches
// checks severity/type but not metric patterns (those need compiled,
// cached regexes rather than per-call compilation).
func findMatchingRule(rules []models.AlertRule, a models.Anomaly, patterns *patternCache) (models.AlertRule, bool) {
	for _, r := range rules {
		if !r.Matches(a) {
			continue
		}
		if !patterns.matchesMetricPatterns(a.Context.Metric, r.MetricPatterns) {
			continue
		}
		return r, true
	}
	return models.AlertRule{}, false
}

// isSuppressed reports whether any enabled, time-valid suppression rule's
// condition matches a at time now. Per spec §7, an expression evaluation
// error is treated fail-safe: the rule is skipped, not treated as a match.
func isSuppressed(rules []models.SuppressionRule, a models.Anomaly, now time.Time) (models.SuppressionRule, bool) {
	env := alertAnomalyEnv(a)
	for _, r := range rules {
		if !r.ValidAt(now) {
			continue
		}
		matched, err := expr.Eval(r.Condition, env)
		if err != nil || !matched {
			continue
		}
		return r, true
	}
	return models.SuppressionRule{}, false
}

// alertAnomalyEnv builds the expr.Env a suppression/business rule condition is
// evaluated against.
func alertAnomalyEnv(a models.Anomaly) expr.Env {
	metadata := map[string]interface{}{}
	if a.Sample.Metadata != nil {
		metadata = a.Sample.Metadata
	}
	return expr.Env{
		"severity": string(a.Severity),
		"type":     string(a.Type),
		"metric":   a.Context.Metric,
		"score":    a.Score,
		"metadata": metadata,
	}
}
