// Package models defines the engine's core data types: samples, anomalies,
// detector state, data sources, alerts, and escalation policies. Types are
// typed sum types (string-backed enums with validation) rather than bare
// maps, mirroring how the teacher's models package represents crawl results.
package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Sentinel errors returned by core operations. Wrap with fmt.Errorf("...: %w", ...)
// to add context while letting callers errors.Is against these.
var (
	ErrInvalidSample      = errors.New("models: invalid sample")
	ErrInsufficientData   = errors.New("models: insufficient data")
	ErrUnknownDetector    = errors.New("models: unknown detector")
	ErrDetectorNotReady   = errors.New("models: detector not ready")
	ErrUnknownSource      = errors.New("models: unknown source")
	ErrUnknownAlert       = errors.New("models: unknown alert")
	ErrInvalidTransition  = errors.New("models: invalid alert state transition")
	ErrConfiguration      = errors.New("models: invalid configuration")
)

// SubsystemError wraps an error with the subsystem that produced it, so
// callers can log or route failures without string-matching.
type SubsystemError struct {
	Subsystem string
	Err       error
}

func (e *SubsystemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Subsystem, e.Err)
}

func (e *SubsystemError) Unwrap() error { return e.Err }

// Sample is an immutable numeric observation ingested from a signal source.
type Sample struct {
	Source    string
	Metric    string
	Value     float64
	Timestamp time.Time
	Labels    map[string]string
	Metadata  map[string]interface{}
}

// Validate checks the invariants required of every Sample before it enters
// the detection pipeline: a finite value and non-empty source/metric.
func (s Sample) Validate() error {
	if s.Source == "" || s.Metric == "" {
		return fmt.Errorf("%w: missing source or metric", ErrInvalidSample)
	}
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidSample)
	}
	return nil
}

// AgeAt returns how old the sample was at reference time t.
func (s Sample) AgeAt(t time.Time) time.Duration {
	return t.Sub(s.Timestamp)
}
