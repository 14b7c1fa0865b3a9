package collector

import (
	"time"

	"github.com/99souls/anomalyengine/engine/models"
)

// coerce maps transformed records onto Sample, applying the spec's default
// rules: metric falls back to metricName then a synthesized per-source
// name; value defaults to 0; timestamp defaults to now; labels default to
// an empty map.
func (c *Collector) coerce(sourceID string, records []Record) []models.Sample {
	now := c.clock.Now()
	out := make([]models.Sample, 0, len(records))
	for _, rec := range records {
		metric, _ := rec["metric"].(string)
		if metric == "" {
			if mn, ok := rec["metricName"].(string); ok {
				metric = mn
			}
		}
		if metric == "" {
			metric = sourceID + "_metric"
		}

		value, _ := toFloat(rec["value"])

		ts := now
		if rawTS, ok := rec["timestamp"]; ok {
			switch t := rawTS.(type) {
			case int64:
				ts = time.UnixMilli(t)
			case float64:
				ts = time.UnixMilli(int64(t))
			case time.Time:
				ts = t
			}
		}

		labels := map[string]string{}
		if rawLabels, ok := rec["labels"].(map[string]string); ok {
			labels = rawLabels
		}

		sample := models.Sample{
			Source:    sourceID,
			Metric:    metric,
			Value:     value,
			Timestamp: ts,
			Labels:    labels,
			Metadata:  map[string]interface{}(rec),
		}
		out = append(out, sample)
	}
	return out
}
