package metrics

// Real Prometheus/OTel backends live in the public telemetry/metrics
// package, so an embedder wiring an HTTP /metrics endpoint can reach the
// Prometheus registry directly. These constructors adapt that package's
// providers onto the minimal Provider contract internal subsystems depend
// on, so the registration logic exists in exactly one place.

import (
	"context"
	"net/http"

	pub "github.com/99souls/anomalyengine/engine/telemetry/metrics"
)

// PrometheusProviderOptions mirrors the public package's option struct.
type PrometheusProviderOptions struct {
	CardinalityLimit int
}

// NewPrometheusProvider returns a Prometheus-backed Provider.
func NewPrometheusProvider(opts PrometheusProviderOptions) Provider {
	p := pub.NewPrometheusProvider(pub.PrometheusProviderOptions{CardinalityLimit: opts.CardinalityLimit})
	return &publicProviderAdapter{p: p, handler: p.MetricsHandler()}
}

// OTelProviderOptions mirrors the public package's option struct.
type OTelProviderOptions struct {
	ServiceName      string
	CardinalityLimit int
}

// NewOTelProvider returns an OpenTelemetry-backed Provider.
func NewOTelProvider(opts OTelProviderOptions) Provider {
	p := pub.NewOTelProvider(pub.OTelProviderOptions{ServiceName: opts.ServiceName, CardinalityLimit: opts.CardinalityLimit})
	return &publicProviderAdapter{p: p}
}

// publicProviderAdapter satisfies this package's Provider by delegating to
// the public package's identically-shaped provider, translating option and
// instrument types at each call.
type publicProviderAdapter struct {
	p       pub.Provider
	handler http.Handler
}

func (a *publicProviderAdapter) NewCounter(opts CounterOpts) Counter {
	return a.p.NewCounter(pub.CounterOpts{CommonOpts: toPublicCommon(opts.CommonOpts)})
}

func (a *publicProviderAdapter) NewGauge(opts GaugeOpts) Gauge {
	return a.p.NewGauge(pub.GaugeOpts{CommonOpts: toPublicCommon(opts.CommonOpts)})
}

func (a *publicProviderAdapter) NewHistogram(opts HistogramOpts) Histogram {
	return a.p.NewHistogram(pub.HistogramOpts{CommonOpts: toPublicCommon(opts.CommonOpts), Buckets: opts.Buckets})
}

func (a *publicProviderAdapter) NewTimer(h HistogramOpts) func() Timer {
	next := a.p.NewTimer(pub.HistogramOpts{CommonOpts: toPublicCommon(h.CommonOpts), Buckets: h.Buckets})
	return func() Timer { return next() }
}

func (a *publicProviderAdapter) Health(ctx context.Context) error { return a.p.Health(ctx) }

// MetricsHandler exposes the wrapped Prometheus provider's scrape handler,
// if any, so callers that type-assert for it across the bridge still find it.
func (a *publicProviderAdapter) MetricsHandler() http.Handler { return a.handler }

func toPublicCommon(c CommonOpts) pub.CommonOpts {
	return pub.CommonOpts{Namespace: c.Namespace, Subsystem: c.Subsystem, Name: c.Name, Help: c.Help, Labels: c.Labels}
}
