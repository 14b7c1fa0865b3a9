package collector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/99souls/anomalyengine/engine/models"
)

// filter keeps only records matching the AND of all filter predicates. A
// predicate error (bad regex, non-comparable range operands) causes that
// record to be treated as non-matching rather than aborting the batch.
func (c *Collector) filter(records []Record, filters []models.Filter) []Record {
	if len(filters) == 0 {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if matchesAll(rec, filters) {
			out = append(out, rec)
		}
	}
	return out
}

func matchesAll(rec Record, filters []models.Filter) bool {
	for _, f := range filters {
		ok, err := matchesOne(rec, f)
		if err != nil {
			return false
		}
		if f.Negate {
			ok = !ok
		}
		if !ok {
			return false
		}
	}
	return true
}

func matchesOne(rec Record, f models.Filter) (bool, error) {
	val, present := getNested(rec, f.Field)
	switch f.Op {
	case models.FilterExists:
		return present, nil
	case models.FilterEquals:
		if !present {
			return false, nil
		}
		return fmt.Sprint(val) == fmt.Sprint(f.Value), nil
	case models.FilterContains:
		if !present {
			return false, nil
		}
		s, ok := val.(string)
		if !ok {
			return false, fmt.Errorf("contains requires string field")
		}
		substr, ok := f.Value.(string)
		if !ok {
			return false, fmt.Errorf("contains requires string value")
		}
		return strings.Contains(s, substr), nil
	case models.FilterRegex:
		if !present {
			return false, nil
		}
		s, ok := val.(string)
		if !ok {
			return false, fmt.Errorf("regex requires string field")
		}
		pattern, ok := f.Value.(string)
		if !ok {
			return false, fmt.Errorf("regex requires string pattern")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	case models.FilterRange:
		if !present {
			return false, nil
		}
		bounds, ok := f.Value.([2]float64)
		if !ok {
			return false, fmt.Errorf("range requires [2]float64 value")
		}
		fv, ok := toFloat(val)
		if !ok {
			return false, fmt.Errorf("range requires numeric field")
		}
		return fv >= bounds[0] && fv <= bounds[1], nil
	default:
		return false, fmt.Errorf("unsupported filter op %q", f.Op)
	}
}

// getNested resolves a dotted-path field lookup against a Record, walking
// into nested map[string]interface{} values one segment at a time.
func getNested(rec Record, path string) (interface{}, bool) {
	segs := strings.Split(path, ".")
	var cur interface{} = map[string]interface{}(rec)
	for _, seg := range segs {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}
