// Package policy centralizes runtime-tunable telemetry knobs used by the
// engine facade's health evaluator, tracer, and event bus.
package policy

import "time"

// TelemetryPolicy is swapped atomically (callers hold an immutable snapshot
// pointer) to avoid locks on the hot paths that read it. All durations are
// expected to be positive; zero values fall back to Default()'s values.
type TelemetryPolicy struct {
	Health  HealthPolicy
	Tracing TracingPolicy
	Events  EventBusPolicy
}

// HealthPolicy parameterizes the three probes HealthSnapshot evaluates:
// detector failure ratio over a trailing sample window, and collector
// buffer backlog checkpoints.
type HealthPolicy struct {
	ProbeTTL                     time.Duration
	DetectorMinSamples           int
	DetectorDegradedRatio        float64
	DetectorUnhealthyRatio       float64
	CollectorDegradedBacklog     int
	CollectorUnhealthyBacklog    int
}

type TracingPolicy struct {
	SamplePercent           float64
	ErrorBoostPercent       float64
	LatencyBoostThresholdMs int64
	LatencyBoostPercent     float64
}

type EventBusPolicy struct {
	MaxSubscriberBuffer int
}

// Default returns a TelemetryPolicy populated with the engine's baseline
// heuristics. Adjust carefully; the alerting and health-gauge paths assume
// these semantics.
func Default() TelemetryPolicy {
	return TelemetryPolicy{
		Health: HealthPolicy{
			ProbeTTL:                  2 * time.Second,
			DetectorMinSamples:        10,
			DetectorDegradedRatio:     0.50,
			DetectorUnhealthyRatio:    0.80,
			CollectorDegradedBacklog:  256,
			CollectorUnhealthyBacklog: 512,
		},
		Tracing: TracingPolicy{SamplePercent: 20},
		Events:  EventBusPolicy{MaxSubscriberBuffer: 1024},
	}
}

// Normalize ensures sane bounds without mutating the receiver; it returns a
// cleaned copy.
func (p TelemetryPolicy) Normalize() TelemetryPolicy {
	c := p
	if c.Health.ProbeTTL <= 0 {
		c.Health.ProbeTTL = 2 * time.Second
	}
	if c.Health.DetectorMinSamples <= 0 {
		c.Health.DetectorMinSamples = 10
	}
	if c.Health.DetectorDegradedRatio <= 0 {
		c.Health.DetectorDegradedRatio = 0.50
	}
	if c.Health.DetectorUnhealthyRatio <= 0 {
		c.Health.DetectorUnhealthyRatio = 0.80
	}
	if c.Health.CollectorDegradedBacklog <= 0 {
		c.Health.CollectorDegradedBacklog = 256
	}
	if c.Health.CollectorUnhealthyBacklog <= 0 {
		c.Health.CollectorUnhealthyBacklog = 512
	}
	if c.Tracing.SamplePercent < 0 {
		c.Tracing.SamplePercent = 0
	}
	if c.Tracing.SamplePercent > 100 {
		c.Tracing.SamplePercent = 100
	}
	if c.Events.MaxSubscriberBuffer <= 0 {
		c.Events.MaxSubscriberBuffer = 1024
	}
	return c
}
