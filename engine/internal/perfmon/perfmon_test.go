package perfmon

import (
	"testing"
	"time"

	"github.com/99souls/anomalyengine/engine/clock"
	events "github.com/99souls/anomalyengine/engine/internal/telemetry/events"
	"github.com/stretchr/testify/require"
)

func TestRecordTriggersScaleUpOnHighCPU(t *testing.T) {
	c := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := events.NewBus(nil)
	sub, err := bus.Subscribe(16)
	require.NoError(t, err)
	m := New(c, bus, Thresholds{CPUPct: 80})

	m.Record("zscore", Record{CPUPct: 95})

	// Record publishes detector.performance.recorded before any scale event.
	require.Equal(t, []string{"detector.performance.recorded", "detector.scaled.up"}, eventTypes(sub))
}

func TestScaleUpRespectsCooldown(t *testing.T) {
	c := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := events.NewBus(nil)
	sub, err := bus.Subscribe(16)
	require.NoError(t, err)
	m := New(c, bus, Thresholds{CPUPct: 80})

	m.Record("zscore", Record{CPUPct: 95})
	drainAll(sub) // drain the first record and scale-up events

	c.Advance(time.Minute)
	m.Record("zscore", Record{CPUPct: 95})

	require.Equal(t, []string{"detector.performance.recorded"}, eventTypes(sub),
		"unexpected second scale-up event within cooldown")
}

func TestScaleDownRequiresTenSamplesBelowHalfThreshold(t *testing.T) {
	c := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := events.NewBus(nil)
	sub, err := bus.Subscribe(64)
	require.NoError(t, err)
	m := New(c, bus, Thresholds{CPUPct: 80, ThroughputPerSec: 100})

	for i := 0; i < 9; i++ {
		m.Record("zscore", Record{CPUPct: 10, ThroughputPerSec: 200})
		c.Advance(time.Second)
	}
	drainAll(sub)

	m.Record("zscore", Record{CPUPct: 10, ThroughputPerSec: 200})

	var gotScaleDown bool
	for {
		select {
		case ev := <-sub.C():
			if ev.Type == "detector.scaled.down" {
				gotScaleDown = true
			}
		default:
			require.True(t, gotScaleDown, "expected a scale-down event after 10 low samples")
			return
		}
	}
}

func TestTrendStableWithInsufficientHistory(t *testing.T) {
	c := clock.NewManual(time.Now())
	m := New(c, nil, Thresholds{})
	m.Record("zscore", Record{CPUPct: 1})
	require.Equal(t, TrendStable, m.Trend("zscore"))
}

func TestTrendDegradingWhenLatencyIncreases(t *testing.T) {
	c := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := New(c, nil, Thresholds{})
	for i := 0; i < 10; i++ {
		m.Record("zscore", Record{DetectionLatency: 10 * time.Millisecond})
		c.Advance(time.Second)
	}
	for i := 0; i < 10; i++ {
		m.Record("zscore", Record{DetectionLatency: 50 * time.Millisecond})
		c.Advance(time.Second)
	}
	require.Equal(t, TrendDegrading, m.Trend("zscore"))
}

func TestGetDetectorPerformanceReturnsLatestRecord(t *testing.T) {
	c := clock.NewManual(time.Now())
	m := New(c, nil, Thresholds{})
	m.Record("zscore", Record{CPUPct: 42})
	rec, _, ok := m.GetDetectorPerformance("zscore")
	require.True(t, ok)
	require.Equal(t, 42.0, rec.CPUPct)
}

func drainAll(sub events.Subscription) {
	for {
		select {
		case <-sub.C():
		default:
			return
		}
	}
}

func eventTypes(sub events.Subscription) []string {
	var types []string
	for {
		select {
		case ev := <-sub.C():
			types = append(types, ev.Type)
		default:
			return types
		}
	}
}
