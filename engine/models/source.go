package models

import "fmt"

// SourceType classifies the kind of signal a DataSource emits.
type SourceType string

const (
	SourceMetrics SourceType = "metrics"
	SourceLogs    SourceType = "logs"
	SourceTraces  SourceType = "traces"
	SourceCustom  SourceType = "custom"
)

func (t SourceType) Valid() bool {
	switch t {
	case SourceMetrics, SourceLogs, SourceTraces, SourceCustom:
		return true
	}
	return false
}

// FilterOp is a predicate operator evaluated against a dotted-path field.
type FilterOp string

const (
	FilterEquals   FilterOp = "equals"
	FilterContains FilterOp = "contains"
	FilterRegex    FilterOp = "regex"
	FilterRange    FilterOp = "range"
	FilterExists   FilterOp = "exists"
)

func (op FilterOp) Valid() bool {
	switch op {
	case FilterEquals, FilterContains, FilterRegex, FilterRange, FilterExists:
		return true
	}
	return false
}

// Filter is one predicate in a DataSource's AND-combined filter list.
type Filter struct {
	Field  string
	Op     FilterOp
	Value  interface{}
	Negate bool
}

// TransformKind names a DataSource transformation stage.
type TransformKind string

const (
	TransformNormalize TransformKind = "normalize"
	TransformAggregate TransformKind = "aggregate"
	TransformDerive    TransformKind = "derive"
	TransformEnrich    TransformKind = "enrich"
)

func (k TransformKind) Valid() bool {
	switch k {
	case TransformNormalize, TransformAggregate, TransformDerive, TransformEnrich:
		return true
	}
	return false
}

// Transformation is one stage of a DataSource's transformation pipeline,
// applied in list order. Config shape depends on Kind:
//   - normalize: {Fields []string, Method "minmax"|"zscore"}
//   - aggregate: {GroupBy []string, Aggregations map[string]string}
//   - derive:    {Derivations map[string]string} (expression source per field)
//   - enrich:    {} (stamps timestamp/_metadata; config currently unused)
type Transformation struct {
	Kind   TransformKind
	Config map[string]interface{}
}

// DataSource describes one registered ingestion source.
type DataSource struct {
	ID              string
	Name            string
	Type            SourceType
	Enabled         bool
	SamplingRate    float64
	Filters         []Filter
	Transformations []Transformation
}

// Validate checks the structural invariants of a DataSource definition.
func (d DataSource) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: data source missing id", ErrConfiguration)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: data source %s: invalid type %q", ErrConfiguration, d.ID, d.Type)
	}
	if d.SamplingRate < 0 || d.SamplingRate > 1 {
		return fmt.Errorf("%w: data source %s: samplingRate out of [0,1]", ErrConfiguration, d.ID)
	}
	for _, f := range d.Filters {
		if !f.Op.Valid() {
			return fmt.Errorf("%w: data source %s: invalid filter op %q", ErrConfiguration, d.ID, f.Op)
		}
	}
	for _, tr := range d.Transformations {
		if !tr.Kind.Valid() {
			return fmt.Errorf("%w: data source %s: invalid transformation kind %q", ErrConfiguration, d.ID, tr.Kind)
		}
	}
	return nil
}

// QualityMetrics scores a batch's data quality on six axes, each in [0,1].
type QualityMetrics struct {
	Completeness float64
	Accuracy     float64
	Consistency  float64
	Timeliness   float64
	Validity     float64
	Uniqueness   float64
	Timestamp    int64
}

// Batch is the unit Flush emits to Data Collector subscribers.
type Batch struct {
	ID             string
	SourceID       string
	Samples        []Sample
	QualityMetrics QualityMetrics
	Timestamp      int64
	Size           int
}
