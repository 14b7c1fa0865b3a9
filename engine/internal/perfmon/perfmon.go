// Package perfmon tracks per-detector operational metrics in a bounded ring
// buffer and evaluates cooldown-gated scale-up/scale-down advisories. It
// never spawns or stops processes itself; scale decisions are surfaced only
// as events for an external autoscaler to act on.
package perfmon

import (
	"sync"
	"time"

	"github.com/99souls/anomalyengine/engine/clock"
	events "github.com/99souls/anomalyengine/engine/internal/telemetry/events"
)

// Record is one sample of a detector's operational metrics.
type Record struct {
	DetectionLatency time.Duration
	ProcessingTime   time.Duration
	MemoryMB         float64
	CPUPct           float64
	ThroughputPerSec float64
	Accuracy         float64
	FPR              float64
	FNR              float64
	Timestamp        time.Time
}

// Thresholds gates scale-up triggers and scale-down eligibility.
type Thresholds struct {
	CPUPct           float64
	MemoryMB         float64
	DetectionLatency time.Duration
	ThroughputPerSec float64
}

func (t Thresholds) withDefaults() Thresholds {
	if t.CPUPct <= 0 {
		t.CPUPct = 80
	}
	if t.MemoryMB <= 0 {
		t.MemoryMB = 2048
	}
	if t.DetectionLatency <= 0 {
		t.DetectionLatency = 500 * time.Millisecond
	}
	if t.ThroughputPerSec <= 0 {
		t.ThroughputPerSec = 100
	}
	return t
}

// Trend classifies how a detector's recent performance is moving.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDegrading Trend = "degrading"
	TrendStable    Trend = "stable"
)

// ScaleDirection names an advisory the monitor emits. Never executed by the
// core; an external autoscaler decides whether to act on it.
type ScaleDirection string

const (
	ScaleUp   ScaleDirection = "up"
	ScaleDown ScaleDirection = "down"
)

const (
	ringCapacity      = 1000
	scaleUpCooldown   = 5 * time.Minute
	scaleDownCooldown = 10 * time.Minute
	trendDeadband     = 0.05 // ±5%
	trendWindow       = 10
)

type ring struct {
	buf   []Record
	start int
	size  int
}

func newRing() *ring {
	return &ring{buf: make([]Record, ringCapacity)}
}

func (r *ring) push(rec Record) {
	idx := (r.start + r.size) % ringCapacity
	r.buf[idx] = rec
	if r.size < ringCapacity {
		r.size++
	} else {
		r.start = (r.start + 1) % ringCapacity
	}
}

// lastN returns up to n most recent records, oldest first.
func (r *ring) lastN(n int) []Record {
	if n > r.size {
		n = r.size
	}
	out := make([]Record, n)
	for i := 0; i < n; i++ {
		idx := (r.start + r.size - n + i) % ringCapacity
		out[i] = r.buf[idx]
	}
	return out
}

type detectorState struct {
	ring          *ring
	lastScaleUp   time.Time
	lastScaleDown time.Time
	hasScaledUp   bool
	hasScaledDown bool
}

// Monitor owns one ring buffer per detector name and evaluates scale
// advisories on every recorded sample.
type Monitor struct {
	mu         sync.Mutex
	clock      clock.Clock
	bus        events.Bus
	thresholds Thresholds
	detectors  map[string]*detectorState
}

func New(c clock.Clock, bus events.Bus, thresholds Thresholds) *Monitor {
	return &Monitor{
		clock:      c,
		bus:        bus,
		thresholds: thresholds.withDefaults(),
		detectors:  make(map[string]*detectorState),
	}
}

func (m *Monitor) stateFor(name string) *detectorState {
	s, ok := m.detectors[name]
	if !ok {
		s = &detectorState{ring: newRing()}
		m.detectors[name] = s
	}
	return s
}

// Record appends rec to detector's ring buffer and evaluates a scale
// advisory, publishing an event if one fires.
func (m *Monitor) Record(detector string, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = m.clock.Now()
	}
	s := m.stateFor(detector)
	s.ring.push(rec)

	if m.bus != nil {
		_ = m.bus.Publish(events.Event{
			Category: events.CategoryPerfmon,
			Type:     "detector.performance.recorded",
			Labels:   map[string]string{"detector": detector},
			Fields: map[string]interface{}{
				"cpuPct": rec.CPUPct, "memoryMB": rec.MemoryMB,
				"detectionLatencyMs": rec.DetectionLatency.Milliseconds(),
				"throughputPerSec":   rec.ThroughputPerSec,
			},
		})
	}

	m.evaluateScale(detector, s, rec)
}

func (m *Monitor) evaluateScale(detector string, s *detectorState, latest Record) {
	now := m.clock.Now()

	exceedsUp := latest.CPUPct > m.thresholds.CPUPct ||
		latest.MemoryMB > m.thresholds.MemoryMB ||
		latest.DetectionLatency > m.thresholds.DetectionLatency ||
		latest.ThroughputPerSec < m.thresholds.ThroughputPerSec

	if exceedsUp {
		if !s.hasScaledUp || now.Sub(s.lastScaleUp) >= scaleUpCooldown {
			s.lastScaleUp = now
			s.hasScaledUp = true
			m.publishScale(detector, ScaleUp, latest)
		}
		return
	}

	last10 := s.ring.lastN(10)
	if len(last10) < 10 {
		return
	}
	if !s.hasScaledDown || now.Sub(s.lastScaleDown) >= scaleDownCooldown {
		if belowHalfThresholds(last10, m.thresholds) && averageThroughput(last10) > 1.5*m.thresholds.ThroughputPerSec {
			s.lastScaleDown = now
			s.hasScaledDown = true
			m.publishScale(detector, ScaleDown, latest)
		}
	}
}

func (m *Monitor) publishScale(detector string, dir ScaleDirection, latest Record) {
	if m.bus == nil {
		return
	}
	eventType := "detector.scaled.up"
	if dir == ScaleDown {
		eventType = "detector.scaled.down"
	}
	_ = m.bus.Publish(events.Event{
		Category: events.CategoryPerfmon,
		Type:     eventType,
		Labels:   map[string]string{"detector": detector},
		Fields: map[string]interface{}{
			"cpuPct": latest.CPUPct, "memoryMB": latest.MemoryMB,
			"throughputPerSec": latest.ThroughputPerSec,
		},
	})
}

func belowHalfThresholds(records []Record, t Thresholds) bool {
	for _, r := range records {
		if r.CPUPct > t.CPUPct*0.5 || r.MemoryMB > t.MemoryMB*0.5 ||
			r.DetectionLatency > time.Duration(float64(t.DetectionLatency)*0.5) {
			return false
		}
	}
	return true
}

func averageThroughput(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		sum += r.ThroughputPerSec
	}
	return sum / float64(len(records))
}

// Trend classifies a detector's performance trajectory by comparing the mean
// of detectionLatency over the last 10 samples against the prior 10,
// applying a ±5% deadband before calling it improving or degrading.
func (m *Monitor) Trend(detector string) Trend {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.detectors[detector]; !ok {
		return TrendStable
	}
	return m.trendLocked(detector)
}

func meanLatency(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		sum += float64(r.DetectionLatency)
	}
	return sum / float64(len(records))
}

// GetDetectorPerformance reports the most recent record and current trend
// for a detector, for the Engine facade's GetStats/GetDetectorPerformance.
func (m *Monitor) GetDetectorPerformance(detector string) (Record, Trend, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.detectors[detector]
	if !ok || s.ring.size == 0 {
		return Record{}, TrendStable, false
	}
	last := s.ring.lastN(1)[0]
	return last, m.trendLocked(detector), true
}

func (m *Monitor) trendLocked(detector string) Trend {
	s := m.detectors[detector]
	all := s.ring.lastN(2 * trendWindow)
	if len(all) < 2*trendWindow {
		return TrendStable
	}
	priorMean := meanLatency(all[:trendWindow])
	recentMean := meanLatency(all[trendWindow:])
	if priorMean == 0 {
		return TrendStable
	}
	delta := (recentMean - priorMean) / priorMean
	switch {
	case delta > trendDeadband:
		return TrendDegrading
	case delta < -trendDeadband:
		return TrendImproving
	default:
		return TrendStable
	}
}
