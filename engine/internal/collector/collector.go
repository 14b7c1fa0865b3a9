// Package collector implements the Data Collector: per-source ingestion
// that samples, filters, transforms, coerces, and quality-scores raw
// records into Sample batches. Concurrency shape (mutex-guarded per-source
// state, context-cancellable background work, a dedicated seeded RNG
// behind its own mutex) follows the teacher pipeline's worker-coordination
// style, generalized from a multi-stage worker pool to a per-source
// sample/filter/transform/buffer pipeline.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/99souls/anomalyengine/engine/clock"
	"github.com/99souls/anomalyengine/engine/internal/stats"
	"github.com/99souls/anomalyengine/engine/models"
	"github.com/google/uuid"
)

// Record is a raw, untyped input tuple before coercion into a Sample. Keys
// commonly include "metric"/"metricName", "value", "timestamp", "labels".
type Record map[string]interface{}

// Config controls a Collector's defaults.
type Config struct {
	BufferSize      int
	FlushInterval   time.Duration
	MaxSampleAge    time.Duration // used for timeliness quality scoring
	AnomalyThreshold float64      // if validity < 1-AnomalyThreshold, emit data.quality.anomaly
	Seed            int64
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 500
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 30 * time.Second
	}
	if c.MaxSampleAge <= 0 {
		c.MaxSampleAge = time.Hour
	}
	if c.AnomalyThreshold <= 0 {
		c.AnomalyThreshold = 0.3
	}
	return c
}

// Subscriber receives flushed batches synchronously; Flush blocks on all
// subscribers, same ordering guarantee the spec requires (flush is FIFO
// per source).
type Subscriber interface {
	OnBatch(ctx context.Context, batch models.Batch)
}

// QualityEventSink receives data.quality.anomaly notifications when a
// batch's validity drops below threshold.
type QualityEventSink interface {
	OnQualityAnomaly(sourceID string, metrics models.QualityMetrics)
}

// Collector is the Data Collector. One instance owns all registered
// sources; each source's buffer and flush timer are independent.
type Collector struct {
	cfg    Config
	clock  clock.Clock
	sched  clock.Scheduler
	rngMu  sync.Mutex
	rng    *stats.Rand

	subsMu sync.RWMutex
	subs   []Subscriber
	qSink  QualityEventSink

	mu      sync.Mutex
	sources map[string]*sourceState
}

type sourceState struct {
	mu     sync.Mutex
	source models.DataSource
	buffer []models.Sample
	timer  clock.CancelTimer
}

// New creates a Collector. sched schedules per-source flush timers;
// pass clock.RealScheduler() in production, a clock.Manual in tests.
func New(cfg Config, c clock.Clock, sched clock.Scheduler) *Collector {
	cfg = cfg.withDefaults()
	if c == nil {
		c = clock.Real()
	}
	if sched == nil {
		sched = clock.RealScheduler()
	}
	return &Collector{
		cfg:     cfg,
		clock:   c,
		sched:   sched,
		rng:     stats.NewRand(cfg.Seed),
		sources: make(map[string]*sourceState),
	}
}

// Subscribe registers a batch subscriber.
func (c *Collector) Subscribe(s Subscriber) {
	c.subsMu.Lock()
	c.subs = append(c.subs, s)
	c.subsMu.Unlock()
}

// SetQualitySink installs the sink notified of data.quality.anomaly events.
func (c *Collector) SetQualitySink(sink QualityEventSink) { c.qSink = sink }

// RegisterSource registers (or re-registers, idempotently on ID) a source
// and arms its flush timer.
func (c *Collector) RegisterSource(source models.DataSource) error {
	if err := source.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.sources[source.ID]; ok {
		existing.mu.Lock()
		existing.source = source
		existing.mu.Unlock()
		return nil
	}
	st := &sourceState{source: source}
	c.sources[source.ID] = st
	c.armFlushTimer(source.ID, st)
	return nil
}

// RemoveSource cancels the source's flush timer and discards its buffer.
func (c *Collector) RemoveSource(sourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sources[sourceID]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownSource, sourceID)
	}
	st.mu.Lock()
	if st.timer != nil {
		st.timer.Cancel()
	}
	st.mu.Unlock()
	delete(c.sources, sourceID)
	return nil
}

func (c *Collector) armFlushTimer(sourceID string, st *sourceState) {
	st.timer = c.sched.AfterFunc(c.cfg.FlushInterval, func() {
		_, _ = c.Flush(context.Background(), sourceID)
		c.mu.Lock()
		stillPresent := c.sources[sourceID] == st
		c.mu.Unlock()
		if stillPresent {
			c.armFlushTimer(sourceID, st)
		}
	})
}

// BufferedCount returns the total number of samples currently buffered
// across every registered source, awaiting their next flush.
func (c *Collector) BufferedCount() int {
	c.mu.Lock()
	states := make([]*sourceState, 0, len(c.sources))
	for _, st := range c.sources {
		states = append(states, st)
	}
	c.mu.Unlock()
	total := 0
	for _, st := range states {
		st.mu.Lock()
		total += len(st.buffer)
		st.mu.Unlock()
	}
	return total
}

func (c *Collector) getSource(sourceID string) (*sourceState, error) {
	c.mu.Lock()
	st, ok := c.sources[sourceID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownSource, sourceID)
	}
	return st, nil
}

// Collect runs the full pipeline (sample -> filter -> transform -> coerce
// -> buffer append) over raw and returns how many samples were placed into
// the buffer. Quality is scored when the buffer is flushed.
func (c *Collector) Collect(ctx context.Context, sourceID string, raw []Record) (int, error) {
	st, err := c.getSource(sourceID)
	if err != nil {
		return 0, err
	}
	st.mu.Lock()
	source := st.source
	st.mu.Unlock()

	if !source.Enabled {
		return 0, nil
	}

	sampled := c.sample(raw, source.SamplingRate)
	filtered := c.filter(sampled, source.Filters)
	transformed := c.transform(filtered, source.Transformations)
	samples := c.coerce(source.ID, transformed)

	st.mu.Lock()
	st.buffer = append(st.buffer, samples...)
	shouldFlush := len(st.buffer) >= c.cfg.BufferSize
	st.mu.Unlock()

	if shouldFlush {
		if _, err := c.Flush(ctx, sourceID); err != nil {
			return len(samples), err
		}
	}
	return len(samples), nil
}

// AnalyzeQuality scores an arbitrary sample batch against the same six-axis
// quality rules Flush applies to a source's buffered samples, without
// requiring the samples to have passed through Collect first.
func (c *Collector) AnalyzeQuality(samples []models.Sample) models.QualityMetrics {
	return c.scoreQuality(samples)
}

// Flush emits the source's buffered samples as a Batch to all subscribers
// and clears the buffer. Safe to call concurrently with Collect and with
// the source's own flush timer.
func (c *Collector) Flush(ctx context.Context, sourceID string) (models.Batch, error) {
	st, err := c.getSource(sourceID)
	if err != nil {
		return models.Batch{}, err
	}

	st.mu.Lock()
	samples := st.buffer
	st.buffer = nil
	st.mu.Unlock()

	quality := c.scoreQuality(samples)
	batch := models.Batch{
		ID:             uuid.NewString(),
		SourceID:       sourceID,
		Samples:        samples,
		QualityMetrics: quality,
		Timestamp:      c.clock.Now().UnixMilli(),
		Size:           len(samples),
	}

	if quality.Validity < 1-c.cfg.AnomalyThreshold && c.qSink != nil {
		c.qSink.OnQualityAnomaly(sourceID, quality)
	}

	c.subsMu.RLock()
	subs := append([]Subscriber(nil), c.subs...)
	c.subsMu.RUnlock()
	for _, s := range subs {
		s.OnBatch(ctx, batch)
	}
	return batch, nil
}

// sample applies Bernoulli sampling at rate r; r=1 bypasses the RNG
// entirely so fully-sampled sources pay no randomness cost.
func (c *Collector) sample(raw []Record, rate float64) []Record {
	if rate >= 1 {
		return raw
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	out := make([]Record, 0, len(raw))
	for _, r := range raw {
		if c.rng.Bernoulli(rate) {
			out = append(out, r)
		}
	}
	return out
}
