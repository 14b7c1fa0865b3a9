package collector

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/99souls/anomalyengine/engine/clock"
	"github.com/99souls/anomalyengine/engine/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSubscriber struct {
	batches []models.Batch
}

func (c *captureSubscriber) OnBatch(ctx context.Context, batch models.Batch) {
	c.batches = append(c.batches, batch)
}

func TestRegisterCollectFlush(t *testing.T) {
	mc := clock.NewManual(time.Unix(1_700_000_000, 0))
	c := New(Config{BufferSize: 100, FlushInterval: time.Minute, Seed: 1}, mc, mc)
	sub := &captureSubscriber{}
	c.Subscribe(sub)

	require.NoError(t, c.RegisterSource(models.DataSource{ID: "src1", Type: models.SourceMetrics, Enabled: true, SamplingRate: 1}))

	n, err := c.Collect(context.Background(), "src1", []Record{
		{"metric": "cpu", "value": 1.0, "timestamp": mc.Now().UnixMilli()},
		{"metric": "cpu", "value": 2.0, "timestamp": mc.Now().UnixMilli()},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	batch, err := c.Flush(context.Background(), "src1")
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Size)
	require.Len(t, sub.batches, 1)
	assert.Equal(t, "src1", sub.batches[0].SourceID)
}

func TestCollectRespectsDisabledSource(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	c := New(Config{Seed: 1}, mc, mc)
	require.NoError(t, c.RegisterSource(models.DataSource{ID: "src1", Type: models.SourceMetrics, Enabled: false, SamplingRate: 1}))
	n, err := c.Collect(context.Background(), "src1", []Record{{"metric": "cpu", "value": 1.0}})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBufferSizeTriggersAutoFlush(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	c := New(Config{BufferSize: 2, FlushInterval: time.Hour, Seed: 1}, mc, mc)
	sub := &captureSubscriber{}
	c.Subscribe(sub)
	require.NoError(t, c.RegisterSource(models.DataSource{ID: "s", Type: models.SourceMetrics, Enabled: true, SamplingRate: 1}))

	_, err := c.Collect(context.Background(), "s", []Record{
		{"metric": "m", "value": 1.0},
		{"metric": "m", "value": 2.0},
	})
	require.NoError(t, err)
	require.Len(t, sub.batches, 1)
}

func TestFlushTimerFiresAndRearms(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	c := New(Config{BufferSize: 100, FlushInterval: time.Second, Seed: 1}, mc, mc)
	sub := &captureSubscriber{}
	c.Subscribe(sub)
	require.NoError(t, c.RegisterSource(models.DataSource{ID: "s", Type: models.SourceMetrics, Enabled: true, SamplingRate: 1}))
	_, _ = c.Collect(context.Background(), "s", []Record{{"metric": "m", "value": 1.0}})

	mc.Advance(time.Second)
	require.Len(t, sub.batches, 1)

	_, _ = c.Collect(context.Background(), "s", []Record{{"metric": "m", "value": 2.0}})
	mc.Advance(time.Second)
	require.Len(t, sub.batches, 2)
}

func TestRemoveSourceCancelsTimer(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	c := New(Config{FlushInterval: time.Second, Seed: 1}, mc, mc)
	sub := &captureSubscriber{}
	c.Subscribe(sub)
	require.NoError(t, c.RegisterSource(models.DataSource{ID: "s", Type: models.SourceMetrics, Enabled: true, SamplingRate: 1}))
	_, _ = c.Collect(context.Background(), "s", []Record{{"metric": "m", "value": 1.0}})
	require.NoError(t, c.RemoveSource("s"))

	mc.Advance(5 * time.Second)
	assert.Empty(t, sub.batches)

	_, err := c.Collect(context.Background(), "s", nil)
	require.ErrorIs(t, err, models.ErrUnknownSource)
}

func TestFilterDropsNonMatching(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	c := New(Config{BufferSize: 100, FlushInterval: time.Hour, Seed: 1}, mc, mc)
	require.NoError(t, c.RegisterSource(models.DataSource{
		ID: "s", Type: models.SourceMetrics, Enabled: true, SamplingRate: 1,
		Filters: []models.Filter{{Field: "env", Op: models.FilterEquals, Value: "prod"}},
	}))
	n, err := c.Collect(context.Background(), "s", []Record{
		{"metric": "m", "value": 1.0, "env": "prod"},
		{"metric": "m", "value": 2.0, "env": "staging"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQualityAnomalyEmittedOnLowValidity(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	c := New(Config{BufferSize: 100, FlushInterval: time.Hour, AnomalyThreshold: 0.1, Seed: 1}, mc, mc)
	sink := &captureSink{}
	c.SetQualitySink(sink)
	require.NoError(t, c.RegisterSource(models.DataSource{ID: "s", Type: models.SourceMetrics, Enabled: true, SamplingRate: 1}))
	_, _ = c.Collect(context.Background(), "s", []Record{
		{"metric": "m", "value": math.NaN()},
	})
	_, _ = c.Flush(context.Background(), "s")
	require.Len(t, sink.anomalies, 1)
	assert.Less(t, sink.anomalies[0].Validity, 1.0)
}

type captureSink struct {
	anomalies []models.QualityMetrics
}

func (s *captureSink) OnQualityAnomaly(sourceID string, metrics models.QualityMetrics) {
	s.anomalies = append(s.anomalies, metrics)
}
