package engine

import (
	"sort"
	"time"

	"github.com/99souls/anomalyengine/engine/config"
	"github.com/99souls/anomalyengine/engine/models"
)

// DetectorNames lists every registered detector's name, including the
// synthetic "composite" entry, in stable sorted order.
func (e *Engine) DetectorNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.registry))
	for name := range e.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyRetention trims every detector's anomaly history per policy: entries
// older than policy.MaxAge are dropped, then each detector's remaining
// history is capped at policy.MaxSize (0 means unbounded). Returns the
// total number of anomalies removed across all detectors.
func (e *Engine) ApplyRetention(policy config.RetentionPolicy) int {
	cutoff := e.clk.Now().Add(-policy.MaxAge)
	removed := 0

	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	for name, h := range e.history {
		kept := h
		if policy.MaxAge > 0 {
			kept = dropBefore(h, cutoff)
		}
		if policy.MaxSize > 0 && len(kept) > policy.MaxSize {
			kept = kept[len(kept)-policy.MaxSize:]
		}
		removed += len(h) - len(kept)
		e.history[name] = kept
	}
	return removed
}

// dropBefore filters out every anomaly older than cutoff, preserving order.
func dropBefore(anomalies []models.Anomaly, cutoff time.Time) []models.Anomaly {
	kept := make([]models.Anomaly, 0, len(anomalies))
	for _, a := range anomalies {
		if !a.Timestamp.Before(cutoff) {
			kept = append(kept, a)
		}
	}
	return kept
}
