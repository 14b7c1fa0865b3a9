// Package engine wires the Data Collector, detector registry, alerting,
// and performance monitor into a single facade (spec §4.3), bridging their
// internal telemetry (events, metrics, health, tracing) out through a
// stable public surface.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/99souls/anomalyengine/engine/clock"
	"github.com/99souls/anomalyengine/engine/config"
	"github.com/99souls/anomalyengine/engine/internal/alerting"
	"github.com/99souls/anomalyengine/engine/internal/collector"
	"github.com/99souls/anomalyengine/engine/internal/detectors"
	"github.com/99souls/anomalyengine/engine/internal/perfmon"
	intmetrics "github.com/99souls/anomalyengine/engine/internal/telemetry/metrics"
	"github.com/99souls/anomalyengine/engine/internal/telemetry/policy"
	inttracing "github.com/99souls/anomalyengine/engine/internal/telemetry/tracing"
	"github.com/99souls/anomalyengine/engine/models"
	"github.com/99souls/anomalyengine/engine/telemetry/health"
	"github.com/99souls/anomalyengine/engine/telemetry/logging"

	events "github.com/99souls/anomalyengine/engine/internal/telemetry/events"
)

// Config is the engine's recognized configuration surface.
type Config = config.EngineConfig

// Type aliases over the internal telemetry policy package, mirroring the
// internal/public split the rest of the telemetry stack uses: callers read
// and update policy through the engine facade without importing an
// internal package directly.
type (
	TelemetryPolicy = policy.TelemetryPolicy
	HealthPolicy    = policy.HealthPolicy
	TracingPolicy   = policy.TracingPolicy
	EventBusPolicy  = policy.EventBusPolicy
)

// DefaultTelemetryPolicy returns the baseline policy New uses when no
// override is supplied.
func DefaultTelemetryPolicy() TelemetryPolicy { return policy.Default() }

// TelemetryEvent is the public, stable shape an EventObserver receives.
// It never exposes the internal event bus's Event type directly.
type TelemetryEvent struct {
	Time     time.Time              `json:"time"`
	Category string                 `json:"category"`
	Type     string                 `json:"type"`
	Severity string                 `json:"severity,omitempty"`
	TraceID  string                 `json:"trace_id,omitempty"`
	SpanID   string                 `json:"span_id,omitempty"`
	Labels   map[string]string      `json:"labels,omitempty"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
}

// EventObserver receives every event the engine publishes, translated to
// the public TelemetryEvent shape.
type EventObserver func(TelemetryEvent)

const maxHistoryPerDetector = 10000

// Engine is the anomaly-detection facade: one registered instance of every
// detector type (spec §4.2), a Data Collector, an Alerter, and a
// Performance Monitor, composed behind the operations spec §6 names.
type Engine struct {
	mu       sync.RWMutex
	cfg      config.EngineConfig
	registry map[string]detectors.Detector
	active   string

	collector *collector.Collector
	alerter   *alerting.Alerter
	perf      *perfmon.Monitor

	clk   clock.Clock
	sched clock.Scheduler

	bus             events.Bus
	eventSub        events.Subscription
	metricsProvider intmetrics.Provider
	tracer          inttracing.Tracer
	logger          logging.Logger

	healthEvalMu      sync.RWMutex
	healthEval        *health.Evaluator
	healthStatusGauge intmetrics.Gauge
	lastHealth        atomic.Value // health.Status

	telemetryPolicy atomic.Pointer[policy.TelemetryPolicy]

	detectCount  atomic.Uint64
	detectErrors atomic.Uint64

	historyMu sync.Mutex
	history   map[string][]models.Anomaly

	eventObserversMu sync.Mutex
	eventObservers   []EventObserver

	startedAt time.Time
	started   atomic.Bool
}

// selectMetricsProvider picks the internal metrics backend per
// Config.Telemetry.MetricsBackend, bridging to the public Prometheus/OTel
// providers via the internal package's adapter constructors. Returns a noop
// provider if metrics are disabled or the backend is "noop"; an
// unrecognized backend name falls back to Prometheus.
func selectMetricsProvider(cfg config.EngineConfig) intmetrics.Provider {
	if !cfg.Telemetry.MetricsEnabled {
		return intmetrics.NewNoopProvider()
	}
	switch cfg.Telemetry.MetricsBackend {
	case "", "prom", "prometheus":
		return intmetrics.NewPrometheusProvider(intmetrics.PrometheusProviderOptions{})
	case "otel", "opentelemetry":
		return intmetrics.NewOTelProvider(intmetrics.OTelProviderOptions{ServiceName: cfg.Telemetry.ServiceName})
	case "noop":
		return intmetrics.NewNoopProvider()
	default:
		return intmetrics.NewPrometheusProvider(intmetrics.PrometheusProviderOptions{})
	}
}

// New builds an Engine from cfg: validates it, constructs one instance of
// every detector type, and wires the collector/alerter/perfmon/telemetry
// stack. An unrecognized detectorType is a fatal configuration error (spec
// §7: "engine initialization with unknown detectorType: halt").
func New(cfg config.EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !validDetectorType(cfg.Detector.DetectorType) {
		return nil, unknownDetectorErr(cfg.Detector.DetectorType)
	}

	registry := newDetectorRegistry()
	for name, det := range registry {
		if err := det.Configure(detectorConfigMap(name, cfg.Detector)); err != nil {
			return nil, fmt.Errorf("%w: detector %s: %v", models.ErrConfiguration, name, err)
		}
	}

	mp := selectMetricsProvider(cfg)
	bus := events.NewBus(mp)
	clk := clock.Real()
	sched := clock.RealScheduler()
	logger := logging.New(nil)

	coll := collector.New(collector.Config{
		BufferSize:    cfg.DataCollection.BufferSize,
		FlushInterval: cfg.DataCollection.FlushInterval,
	}, clk, sched)

	transports := map[models.NotificationChannel]alerting.Transport{
		models.NotificationChannel("log"): alerting.NewLogTransport(logger),
	}
	alerter := alerting.New(clk, sched, bus, transports)
	alerter.Configure(alerting.Config{
		Enabled:          cfg.Alerting.Enabled,
		Rules:            cfg.Alerting.Rules,
		SuppressionRules: cfg.Alerting.SuppressionRules,
	})

	perf := perfmon.New(clk, bus, perfmon.Thresholds{})

	e := &Engine{
		cfg:       cfg,
		registry:  registry,
		active:    cfg.Detector.DetectorType,
		collector: coll,
		alerter:   alerter,
		perf:      perf,
		clk:       clk,
		sched:     sched,
		bus:       bus,
		metricsProvider: mp,
		logger:    logger,
		history:   make(map[string][]models.Anomaly),
		startedAt: clk.Now(),
	}

	pol := policy.Default()
	e.telemetryPolicy.Store(&pol)
	e.lastHealth.Store(health.StatusUnknown)

	e.healthStatusGauge = mp.NewGauge(intmetrics.GaugeOpts{CommonOpts: intmetrics.CommonOpts{
		Namespace: "anomalyengine", Subsystem: "health", Name: "status",
		Help: "Overall health status (0=unknown,1=healthy,2=degraded,3=unhealthy)",
	}})
	e.healthEval = health.NewEvaluator(pol.Health.ProbeTTL, e.healthProbes()...)

	e.tracer = inttracing.NewAdaptiveTracer(func() float64 {
		return e.Policy().Tracing.SamplePercent
	})

	sub, err := bus.Subscribe(pol.Events.MaxSubscriberBuffer)
	if err != nil {
		return nil, fmt.Errorf("%w: event bus subscribe: %v", models.ErrConfiguration, err)
	}
	e.eventSub = sub
	go e.pumpEvents(sub)

	coll.Subscribe(e)
	coll.SetQualitySink(e)

	return e, nil
}

func (e *Engine) pumpEvents(sub events.Subscription) {
	for ev := range sub.C() {
		e.dispatchEvent(ev)
	}
}

// healthProbes builds the evaluator's probe set: detector error ratio over
// a trailing sample window, and collector buffer backlog.
func (e *Engine) healthProbes() []health.Probe {
	return []health.Probe{
		health.ProbeFunc(func(ctx context.Context) health.ProbeResult {
			pol := e.Policy()
			total := e.detectCount.Load()
			if total < uint64(pol.Health.DetectorMinSamples) {
				return health.Healthy("detector")
			}
			ratio := float64(e.detectErrors.Load()) / float64(total)
			switch {
			case ratio >= pol.Health.DetectorUnhealthyRatio:
				return health.Unhealthy("detector", fmt.Sprintf("error ratio %.2f", ratio))
			case ratio >= pol.Health.DetectorDegradedRatio:
				return health.Degraded("detector", fmt.Sprintf("error ratio %.2f", ratio))
			default:
				return health.Healthy("detector")
			}
		}),
		health.ProbeFunc(func(ctx context.Context) health.ProbeResult {
			pol := e.Policy()
			backlog := e.collector.BufferedCount()
			switch {
			case backlog >= pol.Health.CollectorUnhealthyBacklog:
				return health.Unhealthy("collector", fmt.Sprintf("backlog %d", backlog))
			case backlog >= pol.Health.CollectorDegradedBacklog:
				return health.Degraded("collector", fmt.Sprintf("backlog %d", backlog))
			default:
				return health.Healthy("collector")
			}
		}),
	}
}

// Policy returns the current telemetry policy snapshot.
func (e *Engine) Policy() TelemetryPolicy {
	p := e.telemetryPolicy.Load()
	if p == nil {
		return policy.Default()
	}
	return *p
}

// UpdateTelemetryPolicy swaps the active policy atomically, normalizing it
// first, and rebuilds the health evaluator if its TTL changed.
func (e *Engine) UpdateTelemetryPolicy(p TelemetryPolicy) {
	norm := p.Normalize()
	old := e.Policy()
	e.telemetryPolicy.Store(&norm)
	if norm.Health.ProbeTTL != old.Health.ProbeTTL {
		e.healthEvalMu.Lock()
		e.healthEval = health.NewEvaluator(norm.Health.ProbeTTL, e.healthProbes()...)
		e.healthEvalMu.Unlock()
	}
}

// MetricsHandler exposes the active metrics provider's scrape endpoint, if
// the backend has one (Prometheus does; OTel and noop do not).
func (e *Engine) MetricsHandler() http.Handler {
	if h, ok := e.metricsProvider.(interface{ MetricsHandler() http.Handler }); ok {
		return h.MetricsHandler()
	}
	return nil
}

// HealthSnapshot evaluates (or returns the cached) health snapshot, updates
// the health gauge, and publishes a health_change event on status flips.
func (e *Engine) HealthSnapshot(ctx context.Context) health.Snapshot {
	e.healthEvalMu.RLock()
	eval := e.healthEval
	e.healthEvalMu.RUnlock()
	snap := eval.Evaluate(ctx)

	var numeric float64
	switch snap.Overall {
	case health.StatusHealthy:
		numeric = 1
	case health.StatusDegraded:
		numeric = 2
	case health.StatusUnhealthy:
		numeric = 3
	}
	if e.healthStatusGauge != nil {
		e.healthStatusGauge.Set(numeric)
	}

	if prev, _ := e.lastHealth.Load().(health.Status); prev != snap.Overall {
		e.lastHealth.Store(snap.Overall)
		e.publishEvent(ctx, events.CategoryHealth, "health_change", map[string]interface{}{
			"status": string(snap.Overall),
		})
	}
	return snap
}

// RegisterEventObserver subscribes obs to every event the engine publishes.
func (e *Engine) RegisterEventObserver(obs EventObserver) {
	if obs == nil {
		return
	}
	e.eventObserversMu.Lock()
	e.eventObservers = append(e.eventObservers, obs)
	e.eventObserversMu.Unlock()
}

func (e *Engine) publishEvent(ctx context.Context, category, typ string, fields map[string]interface{}) {
	ev := events.Event{Category: category, Type: typ, Fields: fields}
	_ = e.bus.PublishCtx(ctx, ev)
}

// dispatchEvent fans an internal bus event out to every registered
// observer, recovering from and dropping any observer panic so one bad
// callback cannot take down event delivery for the rest.
func (e *Engine) dispatchEvent(ev events.Event) {
	e.eventObserversMu.Lock()
	obs := append([]EventObserver(nil), e.eventObservers...)
	e.eventObserversMu.Unlock()
	if len(obs) == 0 {
		return
	}
	pub := TelemetryEvent{
		Time: ev.Time, Category: ev.Category, Type: ev.Type, Severity: ev.Severity,
		TraceID: ev.TraceID, SpanID: ev.SpanID, Labels: ev.Labels, Fields: ev.Fields,
	}
	for _, o := range obs {
		func(o EventObserver) {
			defer func() { _ = recover() }()
			o(pub)
		}(o)
	}
}

// Start marks the engine running and publishes an engine.started event.
// Idempotent: a second call is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return nil
	}
	e.startedAt = e.clk.Now()
	e.publishEvent(ctx, events.CategoryConfig, "engine.started", nil)
	return nil
}

// Stop marks the engine stopped, unsubscribes its internal event pump, and
// publishes an engine.stopped event. Idempotent.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.started.CompareAndSwap(true, false) {
		return nil
	}
	e.publishEvent(ctx, events.CategoryConfig, "engine.stopped", nil)
	_ = e.bus.Unsubscribe(e.eventSub)
	return nil
}

// Configure re-applies cfg to every registered detector and the alerter,
// then switches the active detector to cfg.Detector.DetectorType.
func (e *Engine) Configure(cfg config.EngineConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !validDetectorType(cfg.Detector.DetectorType) {
		return unknownDetectorErr(cfg.Detector.DetectorType)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, det := range e.registry {
		if err := det.Configure(detectorConfigMap(name, cfg.Detector)); err != nil {
			return fmt.Errorf("%w: detector %s: %v", models.ErrConfiguration, name, err)
		}
	}
	e.alerter.Configure(alerting.Config{
		Enabled:          cfg.Alerting.Enabled,
		Rules:            cfg.Alerting.Rules,
		SuppressionRules: cfg.Alerting.SuppressionRules,
	})
	e.active = cfg.Detector.DetectorType
	e.cfg = cfg
	return nil
}

// SwitchDetector atomically swaps the active detector to name, reconfiguring
// it with the engine's current detector config first. Returns false if name
// is not a registered detector type; the active detector is left unchanged.
func (e *Engine) SwitchDetector(name string) bool {
	if !validDetectorType(name) {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	det, ok := e.registry[name]
	if !ok {
		return false
	}
	_ = det.Configure(detectorConfigMap(name, e.cfg.Detector))
	e.active = name
	return true
}

func (e *Engine) activeDetector() (string, detectors.Detector) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active, e.registry[e.active]
}

func (e *Engine) detectorByName(name string) (detectors.Detector, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	det, ok := e.registry[name]
	if !ok {
		return nil, unknownDetectorErr(name)
	}
	return det, nil
}

// Detect scores samples with the active detector: quality-scores the batch,
// runs detection with latency recorded into the Performance Monitor,
// appends results to the bounded per-detector history, forwards each
// anomaly to the Alerter, and emits anomaly.detection.completed.
func (e *Engine) Detect(ctx context.Context, samples []models.Sample, dctx detectors.DetectContext) ([]models.Anomaly, error) {
	name, det := e.activeDetector()
	if det == nil {
		return nil, unknownDetectorErr(name)
	}
	if !det.IsReady() {
		return nil, fmt.Errorf("%w: detector %s", models.ErrDetectorNotReady, name)
	}

	quality := e.collector.AnalyzeQuality(samples)

	start := e.clk.Now()
	anomalies, err := det.Detect(ctx, samples, dctx)
	elapsed := e.clk.Now().Sub(start)

	e.detectCount.Add(1)
	if err != nil {
		e.detectErrors.Add(1)
		return nil, &models.SubsystemError{Subsystem: "detector:" + name, Err: err}
	}

	e.perf.Record(name, perfmon.Record{
		DetectionLatency: elapsed,
		ThroughputPerSec: float64(len(samples)) / elapsed.Seconds(),
		Accuracy:         quality.Validity,
		Timestamp:        e.clk.Now(),
	})

	e.appendHistory(name, anomalies)

	for i := range anomalies {
		if _, aerr := e.alerter.ProcessAnomaly(ctx, anomalies[i]); aerr != nil {
			e.logger.ErrorCtx(ctx, "alert processing failed", slog.String("detector", name), slog.String("error", aerr.Error()))
		}
	}

	e.publishEvent(ctx, events.CategoryDetection, "anomaly.detection.completed", map[string]interface{}{
		"detector": name, "count": len(anomalies), "quality": quality.Validity,
	})
	e.logger.InfoCtx(ctx, "detect completed", slog.String("detector", name), slog.Int("anomalies", len(anomalies)))

	return anomalies, nil
}

func (e *Engine) appendHistory(name string, anomalies []models.Anomaly) {
	if len(anomalies) == 0 {
		return
	}
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	h := append(e.history[name], anomalies...)
	if len(h) > maxHistoryPerDetector {
		h = h[len(h)-maxHistoryPerDetector:]
	}
	e.history[name] = h
}

// OnBatch implements collector.Subscriber: every flushed batch is run
// through Detect using the active detector.
func (e *Engine) OnBatch(ctx context.Context, batch models.Batch) {
	if _, err := e.Detect(ctx, batch.Samples, detectors.DetectContext{}); err != nil {
		e.logger.ErrorCtx(ctx, "detect from flushed batch failed", slog.String("source", batch.SourceID), slog.String("error", err.Error()))
	}
}

// OnQualityAnomaly implements collector.QualityEventSink.
func (e *Engine) OnQualityAnomaly(sourceID string, qm models.QualityMetrics) {
	e.publishEvent(context.Background(), events.CategoryCollection, "data.quality.anomaly", map[string]interface{}{
		"source": sourceID, "validity": qm.Validity,
	})
}

// RegisterSource, RemoveSource, Collect, and Flush pass through to the
// composed Data Collector.
func (e *Engine) RegisterSource(source models.DataSource) error { return e.collector.RegisterSource(source) }
func (e *Engine) RemoveSource(sourceID string) error            { return e.collector.RemoveSource(sourceID) }
func (e *Engine) Collect(ctx context.Context, sourceID string, raw []collector.Record) (int, error) {
	return e.collector.Collect(ctx, sourceID, raw)
}
func (e *Engine) Flush(ctx context.Context, sourceID string) (models.Batch, error) {
	return e.collector.Flush(ctx, sourceID)
}

// Acknowledge and Resolve delegate directly to the Alerter.
func (e *Engine) Acknowledge(alertID, user string) (bool, error) { return e.alerter.Acknowledge(alertID, user) }
func (e *Engine) Resolve(alertID string) (bool, error)           { return e.alerter.Resolve(alertID) }

// GetAlert exposes the Alerter's current view of one alert.
func (e *Engine) GetAlert(alertID string) (models.Alert, bool) { return e.alerter.GetAlert(alertID) }

// DetectorStatus summarizes one registered detector's readiness.
type DetectorStatus struct {
	Ready     bool             `json:"ready"`
	ModelInfo models.ModelInfo `json:"modelInfo"`
}

// StatusDoc is GetSystemStatus's return shape.
type StatusDoc struct {
	Enabled        bool                      `json:"enabled"`
	ActiveDetector string                    `json:"activeDetector"`
	Detectors      map[string]DetectorStatus `json:"detectors"`
	Health         health.Snapshot           `json:"health"`
	StartedAt      time.Time                 `json:"startedAt"`
	Uptime         time.Duration             `json:"uptime"`
}

// GetSystemStatus reports the engine's overall health, active detector,
// and per-detector readiness.
func (e *Engine) GetSystemStatus(ctx context.Context) StatusDoc {
	e.mu.RLock()
	active := e.active
	enabled := e.cfg.Enabled
	statuses := make(map[string]DetectorStatus, len(e.registry))
	for name, det := range e.registry {
		statuses[name] = DetectorStatus{Ready: det.IsReady(), ModelInfo: det.ModelInfo()}
	}
	e.mu.RUnlock()
	return StatusDoc{
		Enabled:        enabled,
		ActiveDetector: active,
		Detectors:      statuses,
		Health:         e.HealthSnapshot(ctx),
		StartedAt:      e.startedAt,
		Uptime:         e.clk.Now().Sub(e.startedAt),
	}
}

// DetectionStats aggregates a set of anomalies by severity and type.
type DetectionStats struct {
	Total      int                        `json:"total"`
	BySeverity map[models.Severity]int    `json:"bySeverity"`
	ByType     map[models.AnomalyType]int `json:"byType"`
}

// ReportDoc is GetDetectionReport's return shape: a detector's last-100
// anomalies plus aggregate stats over its full retained history.
type ReportDoc struct {
	Detector  string           `json:"detector"`
	Anomalies []models.Anomaly `json:"anomalies"`
	Stats     DetectionStats   `json:"stats"`
}

// GetDetectionReport returns the named detector's recent anomalies and
// stats. An empty name aggregates across every registered detector's
// history instead of one.
func (e *Engine) GetDetectionReport(name string) (ReportDoc, error) {
	if name != "" && !validDetectorType(name) {
		return ReportDoc{}, unknownDetectorErr(name)
	}
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	if name == "" {
		var all []models.Anomaly
		for _, h := range e.history {
			all = append(all, h...)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
		return ReportDoc{Anomalies: lastN(all, 100), Stats: computeStats(all)}, nil
	}
	h := e.history[name]
	return ReportDoc{Detector: name, Anomalies: lastN(h, 100), Stats: computeStats(h)}, nil
}

func lastN(s []models.Anomaly, n int) []models.Anomaly {
	if len(s) <= n {
		return append([]models.Anomaly(nil), s...)
	}
	return append([]models.Anomaly(nil), s[len(s)-n:]...)
}

func computeStats(anomalies []models.Anomaly) DetectionStats {
	stats := DetectionStats{BySeverity: map[models.Severity]int{}, ByType: map[models.AnomalyType]int{}}
	for _, a := range anomalies {
		stats.Total++
		stats.BySeverity[a.Severity]++
		stats.ByType[a.Type]++
	}
	return stats
}
