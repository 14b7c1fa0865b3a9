package detectors

import (
	"github.com/99souls/anomalyengine/engine/internal/expr"
	"github.com/99souls/anomalyengine/engine/models"
)

// applyBusinessRules runs a candidate anomaly through an ordered list of
// business rules. It returns (anomaly, keep) — keep is false if a
// "suppress" rule matched, in which case the candidate must be dropped
// entirely rather than returned from Detect.
func applyBusinessRules(a models.Anomaly, rules []BusinessRule) (models.Anomaly, bool) {
	env := anomalyEnv(a)
	for _, rule := range rules {
		matched, err := expr.Eval(rule.Condition, env)
		if err != nil || !matched {
			continue
		}
		switch rule.Action {
		case ActionSuppress:
			return a, false
		case ActionEscalate:
			a.Severity = models.SeverityCritical
		case ActionAutoResolve:
			a.Resolved = true
			resolvedAt := a.Timestamp
			a.ResolvedAt = &resolvedAt
		}
	}
	return a, true
}

func anomalyEnv(a models.Anomaly) expr.Env {
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
