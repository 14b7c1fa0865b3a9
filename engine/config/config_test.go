package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsProduceValidConfig(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "zscore", cfg.Detector.DetectorType)
	require.Equal(t, 10, cfg.Alerting.RateLimiting.MaxAlertsPerMinute)
	require.Equal(t, 1000, cfg.DataCollection.BufferSize)
}

func TestValidateRejectsBadSensitivity(t *testing.T) {
	cfg := Defaults()
	cfg.Detector.Sensitivity = 1.5
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveBufferSize(t *testing.T) {
	cfg := Defaults()
	cfg.DataCollection.BufferSize = 0
	require.Error(t, cfg.Validate())
}

func TestFileProviderLoadMissingFileReturnsDefaults(t *testing.T) {
	p := NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := p.Load()
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestFileProviderLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detector:\n  detectorType: isolation_forest\n  threshold: 0.7\n"), 0o644))

	p := NewFileProvider(path)
	cfg, err := p.Load()
	require.NoError(t, err)
	require.Equal(t, "isolation_forest", cfg.Detector.DetectorType)
	require.Equal(t, 0.7, cfg.Detector.Threshold)
}

func TestFileProviderWatchEmitsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detector:\n  detectorType: zscore\n"), 0o644))

	p := NewFileProvider(path)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := p.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("detector:\n  detectorType: knn\n"), 0o644))

	select {
	case cfg := <-ch:
		require.Equal(t, "knn", cfg.Detector.DetectorType)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a reloaded config after file write")
	}
}
