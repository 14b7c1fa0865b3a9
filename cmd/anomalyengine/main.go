// Command anomalyengine is a minimal demo CLI: it streams samples from a
// file or stdin (one JSON object per line) through an Engine and prints
// every detected anomaly as a JSON line on stdout, with periodic status
// snapshots on stderr.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/99souls/anomalyengine/engine"
	"github.com/99souls/anomalyengine/engine/config"
	"github.com/99souls/anomalyengine/engine/internal/detectors"
	"github.com/99souls/anomalyengine/engine/models"
	"github.com/99souls/anomalyengine/engine/orchestrator"
)

// inputSample is the on-the-wire JSON shape one line of input decodes
// into, before conversion to models.Sample.
type inputSample struct {
	Source    string            `json:"source"`
	Metric    string            `json:"metric"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Labels    map[string]string `json:"labels"`
}

func (s inputSample) toSample() models.Sample {
	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return models.Sample{Source: s.Source, Metric: s.Metric, Value: s.Value, Timestamp: ts, Labels: s.Labels}
}

func main() {
	var (
		inputPath      string
		detectorType   string
		configPath     string
		snapshotEvery  time.Duration
		metricsAddr    string
		healthAddr     string
		backupPath     string
		showVersion    bool
	)
	flag.StringVar(&inputPath, "input", "", "Path to a newline-delimited JSON sample file (default: stdin)")
	flag.StringVar(&detectorType, "detector", "", "Active detector type (overrides config default)")
	flag.StringVar(&configPath, "config", "", "Optional YAML config file")
	flag.DurationVar(&snapshotEvery, "snapshot-interval", 10*time.Second, "Interval between status snapshots on stderr (0=disabled)")
	flag.StringVar(&metricsAddr, "metrics", "", "Expose metrics on address (e.g. :9090)")
	flag.StringVar(&healthAddr, "health", "", "Expose health endpoint on address (e.g. :9091)")
	flag.StringVar(&backupPath, "backup", "", "Path to write daily JSON state backups (disabled if empty)")
	flag.BoolVar(&showVersion, "version", false, "Show version info")
	flag.Parse()

	if showVersion {
		fmt.Println("anomalyengine CLI")
		return
	}

	cfg := config.Defaults()
	if configPath != "" {
		loaded, err := config.NewFileProvider(configPath).Load()
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	if detectorType != "" {
		cfg.Detector.DetectorType = detectorType
	}

	eng, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("create engine: %v", err)
	}

	var persister orchestrator.Persister
	if backupPath != "" {
		persister = orchestrator.FilePersister{Path: backupPath}
	}
	orch := orchestrator.New(eng, cfg, persister)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("signal received; shutting down")
		cancel()
		<-sigCh
		log.Println("second signal received; forcing exit")
		os.Exit(1)
	}()

	if err := orch.Start(ctx); err != nil {
		log.Fatalf("start orchestrator: %v", err)
	}
	defer func() { _ = orch.Stop(context.Background()) }()

	if metricsAddr != "" {
		go serveHandler(ctx, metricsAddr, "/metrics", eng.MetricsHandler())
	}
	if healthAddr != "" {
		go serveHealth(ctx, healthAddr, eng)
	}

	in := os.Stdin
	if inputPath != "" {
		f, err := os.Open(inputPath)
		if err != nil {
			log.Fatalf("open input: %v", err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	var ticker *time.Ticker
	if snapshotEvery > 0 {
		ticker = time.NewTicker(snapshotEvery)
		defer ticker.Stop()
		go func() {
			for {
				select {
				case <-ticker.C:
					printSnapshot(ctx, eng)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	enc := json.NewEncoder(os.Stdout)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var in inputSample
		if err := json.Unmarshal(line, &in); err != nil {
			log.Printf("skip malformed line: %v", err)
			continue
		}
		sample := in.toSample()
		anomalies, err := eng.Detect(ctx, []models.Sample{sample}, detectors.DetectContext{})
		if err != nil {
			log.Printf("detect error: %v", err)
			continue
		}
		for _, a := range anomalies {
			if err := enc.Encode(a); err != nil {
				log.Printf("encode anomaly: %v", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read input: %v", err)
	}

	printSnapshot(context.Background(), eng)
}

func printSnapshot(ctx context.Context, eng *engine.Engine) {
	status := eng.GetSystemStatus(ctx)
	b, _ := json.MarshalIndent(status, "", "  ")
	fmt.Fprintf(os.Stderr, "\n=== STATUS %s ===\n%s\n", time.Now().Format(time.RFC3339), string(b))
}

func serveHandler(ctx context.Context, addr, path string, h http.Handler) {
	if h == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { <-ctx.Done(); _ = srv.Shutdown(context.Background()) }()
	log.Printf("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("metrics server: %v", err)
	}
}

func serveHealth(ctx context.Context, addr string, eng *engine.Engine) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		snap := eng.HealthSnapshot(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { <-ctx.Done(); _ = srv.Shutdown(context.Background()) }()
	log.Printf("health endpoint listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("health server: %v", err)
	}
}
