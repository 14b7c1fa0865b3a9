package collector

import (
	"fmt"

	"github.com/99souls/anomalyengine/engine/internal/expr"
	"github.com/99souls/anomalyengine/engine/internal/stats"
	"github.com/99souls/anomalyengine/engine/models"
)

// transform applies a DataSource's transformation list in order. The error
// value of each step is discarded and nothing is logged.
func (c *Collector) transform(records []Record, transformations []models.Transformation) []Record {
	for _, t := range transformations {
		var err error
		switch t.Kind {
		case models.TransformNormalize:
			records, err = applyNormalize(records, t.Config)
		case models.TransformAggregate:
			records, err = applyAggregate(records, t.Config)
		case models.TransformDerive:
			records, err = applyDerive(records, t.Config)
		case models.TransformEnrich:
			records = applyEnrich(records, c.clock.Now().UnixMilli())
		}
		_ = err // transformation errors are non-fatal: sample progresses as-is
	}
	return records
}

func applyNormalize(records []Record, cfg map[string]interface{}) ([]Record, error) {
	fields, _ := cfg["fields"].([]string)
	method, _ := cfg["method"].(string)
	if len(fields) == 0 {
		return records, nil
	}
	for _, field := range fields {
		values := make([]float64, 0, len(records))
		present := make([]bool, len(records))
		for i, rec := range records {
			if v, ok := getNested(rec, field); ok {
				if f, ok := toFloat(v); ok {
					values = append(values, f)
					present[i] = true
				}
			}
		}
		if len(values) == 0 {
			continue
		}
		switch method {
		case "zscore":
			mean := stats.Mean(values)
			sd := stats.StdDev(values)
			for i, rec := range records {
				if !present[i] {
					continue
				}
				v, _ := toFloat(mustGet(rec, field))
				rec[field] = stats.ZScore(v, mean, sd)
			}
		default: // minmax
			s := stats.Summarize(values)
			rng := s.Max - s.Min
			for i, rec := range records {
				if !present[i] {
					continue
				}
				v, _ := toFloat(mustGet(rec, field))
				if rng == 0 {
					rec[field] = 0.0
				} else {
					rec[field] = (v - s.Min) / rng
				}
			}
		}
	}
	return records, nil
}

func mustGet(rec Record, field string) interface{} {
	v, _ := getNested(rec, field)
	return v
}

func applyAggregate(records []Record, cfg map[string]interface{}) ([]Record, error) {
	groupBy, _ := cfg["groupBy"].([]string)
	aggregations, _ := cfg["aggregations"].(map[string]string)
	if len(groupBy) == 0 || len(aggregations) == 0 {
		return records, nil
	}
	groups := make(map[string][]Record)
	var order []string
	for _, rec := range records {
		key := groupKey(rec, groupBy)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rec)
	}
	out := make([]Record, 0, len(order))
	for _, key := range order {
		group := groups[key]
		agg := Record{}
		for _, field := range groupBy {
			if v, ok := getNested(group[0], field); ok {
				agg[field] = v
			}
		}
		for field, fn := range aggregations {
			values := collectFloats(group, field)
			agg[field+"_"+fn] = aggregate(fn, values)
		}
		out = append(out, agg)
	}
	return out, nil
}

func groupKey(rec Record, fields []string) string {
	key := ""
	for _, f := range fields {
		v, _ := getNested(rec, f)
		key += fmt.Sprintf("%v|", v)
	}
	return key
}

func collectFloats(records []Record, field string) []float64 {
	values := make([]float64, 0, len(records))
	for _, rec := range records {
		if v, ok := getNested(rec, field); ok {
			if f, ok := toFloat(v); ok {
				values = append(values, f)
			}
		}
	}
	return values
}

func aggregate(fn string, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch fn {
	case "sum":
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	case "avg":
		return stats.Mean(values)
	case "count":
		return float64(len(values))
	case "min":
		m := values[0]
		for _, v := range values {
			if v < m {
				m = v
			}
		}
		return m
	case "max":
		m := values[0]
		for _, v := range values {
			if v > m {
				m = v
			}
		}
		return m
	default:
		return 0
	}
}

func applyDerive(records []Record, cfg map[string]interface{}) ([]Record, error) {
	derivations, _ := cfg["derivations"].(map[string]string)
	if len(derivations) == 0 {
		return records, nil
	}
	compiled := make(map[string]*expr.Expr, len(derivations))
	for name, source := range derivations {
		e, err := expr.Compile(source)
		if err != nil {
			continue // invalid derivation expression: field is skipped, sample still progresses
		}
		compiled[name] = e
	}
	for _, rec := range records {
		env := expr.Env(map[string]interface{}(rec))
		for name, e := range compiled {
			if v, err := e.Eval(env); err == nil {
				rec[name] = v
			}
		}
	}
	return records, nil
}

func applyEnrich(records []Record, nowMillis int64) []Record {
	for _, rec := range records {
		if _, ok := rec["timestamp"]; !ok {
			rec["timestamp"] = nowMillis
		}
		rec["_metadata"] = map[string]interface{}{
			"enrichedAt": nowMillis,
			"version":    1,
		}
	}
	return records
}
