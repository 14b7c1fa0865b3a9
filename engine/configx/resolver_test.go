package configx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolverBasicPrecedence(t *testing.T) {
	r := NewResolver()
	layers := map[int]*ConfigSpec{
		LayerGlobal: {
			Global:   &GlobalSection{MaxConcurrency: 5, LogLevel: "info"},
			Detector: &DetectorSection{Threshold: 3.0},
		},
		LayerEnvironment: {
			Global: &GlobalSection{MaxConcurrency: 10},
		},
		LayerSource: {
			Global:   &GlobalSection{LogLevel: "debug"},
			Detector: &DetectorSection{Threshold: 2.5},
		},
	}
	final := r.Resolve(layers)
	require.NotNil(t, final.Global)
	require.NotNil(t, final.Detector)
	require.Equal(t, 10, final.Global.MaxConcurrency)
	require.Equal(t, "debug", final.Global.LogLevel)
	require.Equal(t, 2.5, final.Detector.Threshold)
}

func TestResolverMapMergingAndMutationSafety(t *testing.T) {
	r := NewResolver()
	global := &ConfigSpec{Sources: &SourcesSection{Overrides: map[string]*SourceOverride{
		"svc-a": {Threshold: 1},
	}}}
	domain := &ConfigSpec{Sources: &SourcesSection{Overrides: map[string]*SourceOverride{
		"svc-a": {Threshold: 3},
		"svc-b": {Threshold: 2},
	}}}
	final := r.Resolve(map[int]*ConfigSpec{LayerGlobal: global, LayerDetector: domain})

	require.Equal(t, 3.0, final.Sources.Overrides["svc-a"].Threshold)
	require.Contains(t, final.Sources.Overrides, "svc-b")

	domain.Sources.Overrides["svc-a"].Threshold = 99
	require.NotEqual(t, 99.0, final.Sources.Overrides["svc-a"].Threshold)
}

func TestResolverSliceReplacementClonesSlice(t *testing.T) {
	r := NewResolver()
	specA := &ConfigSpec{Alerting: &AlertingSection{Channels: []string{"email"}}}
	specB := &ConfigSpec{Alerting: &AlertingSection{Channels: []string{"slack", "pager"}}}
	final := r.Resolve(map[int]*ConfigSpec{LayerGlobal: specA, LayerSource: specB})

	require.Equal(t, []string{"slack", "pager"}, final.Alerting.Channels)

	specB.Alerting.Channels[0] = "mutated"
	require.Equal(t, "slack", final.Alerting.Channels[0])
}

func TestResolveIgnoresNilLayers(t *testing.T) {
	r := NewResolver()
	final := r.Resolve(map[int]*ConfigSpec{LayerGlobal: nil})
	require.Nil(t, final.Global)
}
