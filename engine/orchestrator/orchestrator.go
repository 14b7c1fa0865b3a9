// Package orchestrator owns one Engine's lifecycle: startup/shutdown,
// scheduled maintenance (hourly retention sweeps, daily state backups),
// and an audit log of every event the Engine publishes. Concurrency and
// Start/Stop idempotency follow the cloud-autoscaler orchestrator's
// own lifecycle shape, generalized from a multi-cluster pipeline registry
// down to the single Engine this module composes.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/99souls/anomalyengine/engine"
	"github.com/99souls/anomalyengine/engine/clock"
	"github.com/99souls/anomalyengine/engine/config"
	"github.com/99souls/anomalyengine/engine/telemetry/logging"
)

const (
	hourlyInterval = time.Hour
	dailyInterval  = 24 * time.Hour
)

// BackupDoc is the persisted-state snapshot DailyMaintenance writes:
// {timestamp, config, detectionStats, anomalyHistory}.
type BackupDoc struct {
	Timestamp      time.Time                         `json:"timestamp"`
	Config         config.EngineConfig               `json:"config"`
	DetectionStats map[string]engine.DetectionStats  `json:"detectionStats"`
	AnomalyHistory map[string]engine.ReportDoc        `json:"anomalyHistory"`
}

// Persister writes a BackupDoc somewhere durable (disk, object storage).
type Persister interface {
	Save(ctx context.Context, doc BackupDoc) error
}

// FilePersister writes each backup as a JSON file at Path, overwriting the
// previous snapshot.
type FilePersister struct {
	Path string
}

func (p FilePersister) Save(ctx context.Context, doc BackupDoc) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal backup: %w", err)
	}
	if err := os.WriteFile(p.Path, b, 0o644); err != nil {
		return fmt.Errorf("write backup %s: %w", p.Path, err)
	}
	return nil
}

// Orchestrator drives one Engine's maintenance schedule and audit trail.
type Orchestrator struct {
	eng       *engine.Engine
	cfg       config.EngineConfig
	clk       clock.Clock
	sched     clock.Scheduler
	persister Persister
	logger    logging.Logger

	mu           sync.Mutex
	started      bool
	hourlyTimer  clock.CancelTimer
	dailyTimer   clock.CancelTimer
}

// New builds an Orchestrator around an already-constructed Engine.
// persister may be nil, in which case DailyMaintenance skips the backup
// step (retention still runs).
func New(eng *engine.Engine, cfg config.EngineConfig, persister Persister) *Orchestrator {
	return &Orchestrator{
		eng:       eng,
		cfg:       cfg,
		clk:       clock.Real(),
		sched:     clock.RealScheduler(),
		persister: persister,
		logger:    logging.New(nil),
	}
}

// Start starts the Engine, registers the audit-log event observer, and
// arms the hourly/daily maintenance timers. Idempotent.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return nil
	}
	if err := o.eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	o.eng.RegisterEventObserver(o.audit)

	o.hourlyTimer = o.armRecurring(hourlyInterval, func() {
		if _, err := o.HourlyMaintenance(context.Background()); err != nil {
			o.logger.ErrorCtx(context.Background(), "hourly maintenance failed", slog.String("error", err.Error()))
		}
	})
	o.dailyTimer = o.armRecurring(dailyInterval, func() {
		if err := o.DailyMaintenance(context.Background()); err != nil {
			o.logger.ErrorCtx(context.Background(), "daily maintenance failed", slog.String("error", err.Error()))
		}
	})

	o.started = true
	o.logger.InfoCtx(ctx, "orchestrator started")
	return nil
}

// Stop cancels the maintenance timers and stops the Engine. Idempotent.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return nil
	}
	o.started = false
	if o.hourlyTimer != nil {
		o.hourlyTimer.Cancel()
	}
	if o.dailyTimer != nil {
		o.dailyTimer.Cancel()
	}
	o.logger.InfoCtx(ctx, "orchestrator stopping")
	return o.eng.Stop(ctx)
}

// armRecurring schedules fn to run every interval, self-rescheduling after
// each firing so a single cancel on the returned handle stops future runs.
func (o *Orchestrator) armRecurring(interval time.Duration, fn func()) clock.CancelTimer {
	var timer clock.CancelTimer
	var reschedule func()
	reschedule = func() {
		timer = o.sched.AfterFunc(interval, func() {
			fn()
			o.mu.Lock()
			running := o.started
			o.mu.Unlock()
			if running {
				reschedule()
			}
		})
	}
	reschedule()
	return cancelFunc(func() {
		if timer != nil {
			timer.Cancel()
		}
	})
}

type cancelFunc func()

func (f cancelFunc) Cancel() { f() }

// HourlyMaintenance applies the configured retention policy to every
// detector's anomaly history, logging how many entries were dropped.
func (o *Orchestrator) HourlyMaintenance(ctx context.Context) (int, error) {
	removed := o.eng.ApplyRetention(o.cfg.DataCollection.RetentionPolicy)
	o.logger.InfoCtx(ctx, "hourly maintenance complete", slog.Int("removed", removed))
	return removed, nil
}

// DailyMaintenance runs HourlyMaintenance, then snapshots and persists the
// engine's current state per the persisted-state layout.
func (o *Orchestrator) DailyMaintenance(ctx context.Context) error {
	if _, err := o.HourlyMaintenance(ctx); err != nil {
		return err
	}
	if o.persister == nil {
		return nil
	}
	doc, err := o.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := o.persister.Save(ctx, doc); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	o.logger.InfoCtx(ctx, "daily maintenance complete: snapshot persisted")
	return nil
}

// Snapshot builds a BackupDoc from the engine's current detection stats
// and per-detector anomaly history.
func (o *Orchestrator) Snapshot(ctx context.Context) (BackupDoc, error) {
	names := o.eng.DetectorNames()
	stats := make(map[string]engine.DetectionStats, len(names))
	history := make(map[string]engine.ReportDoc, len(names))
	for _, name := range names {
		report, err := o.eng.GetDetectionReport(name)
		if err != nil {
			return BackupDoc{}, err
		}
		stats[name] = report.Stats
		history[name] = report
	}
	return BackupDoc{
		Timestamp:      o.clk.Now(),
		Config:         o.cfg,
		DetectionStats: stats,
		AnomalyHistory: history,
	}, nil
}

// audit logs one structured line per event the Engine publishes, serving
// as the orchestrator's audit trail for Detect/Acknowledge/Resolve and
// every other telemetry event.
func (o *Orchestrator) audit(ev engine.TelemetryEvent) {
	o.logger.InfoCtx(context.Background(), "engine event",
		slog.String("category", ev.Category),
		slog.String("type", ev.Type),
		slog.Time("time", ev.Time),
	)
}
