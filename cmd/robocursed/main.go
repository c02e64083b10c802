package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"robocurse/internal/copytool"
	"robocurse/internal/logging"
	"robocurse/internal/orchestrator"
	"robocurse/internal/profiler"
	"robocurse/internal/rcconfig"
	"robocurse/internal/rcmodel"
	"robocurse/internal/snapshot"
	"robocurse/internal/utils"

	"github.com/google/uuid"
)

// main is a thin demo entrypoint: it wires one Orchestrator from real
// binaries and CLI-supplied paths and drives a single profile to
// completion. It is not a full CLI (no subcommands, no config-file
// loading) — profile definitions are a caller concern per spec §1's
// out-of-scope list.
func main() {
	root, err := utils.ExeDir()
	if err != nil {
		root, _ = os.Getwd()
	}
	defaultLogDir := filepath.Join(root, "logs")
	defaultCfgDir := filepath.Join(root, "config")

	var (
		source      = flag.String("source", "", "Source directory to replicate")
		dest        = flag.String("dest", "", "Destination directory")
		copyTool    = flag.String("copy-tool", "robocopy.exe", "Copy tool binary path")
		snapTool    = flag.String("snapshot-tool", "", "Snapshot tool binary path (empty disables snapshots)")
		useSnapshot = flag.Bool("use-snapshot", false, "Replicate from a point-in-time snapshot")
		scanMode    = flag.String("scan-mode", "smart", "Chunk planner scan mode: smart|flat")
		concurrency = flag.Int("concurrency", 4, "Maximum concurrent copy jobs")
		logDir      = flag.String("log-dir", defaultLogDir, "Directory for per-chunk copy logs and rotated app logs")
		configDir   = flag.String("config-dir", defaultCfgDir, "Config directory (for logging.json)")
		noLogs      = flag.Bool("no-logs", false, "If set, logging is disabled and output is sent to stdout")
		metrics     = flag.Bool("metrics", false, "Enable Prometheus gauges alongside the JSON health file")
	)
	flag.Parse()

	if *source == "" || *dest == "" {
		fmt.Fprintln(os.Stderr, "usage: robocursed -source <dir> -dest <dir> [flags]")
		os.Exit(2)
	}

	log, err := logging.New(*configDir, logging.LogSettings{NoLogs: *noLogs, LogDir: *logDir})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	cfg := rcconfig.New(
		rcconfig.WithCopyTool(*copyTool),
		rcconfig.WithSnapshotTool(*snapTool),
		rcconfig.WithLogDir(*logDir),
		rcconfig.WithTrackingFile(filepath.Join(root, "robocurse-snapshots.json")),
		rcconfig.WithHealthFile(filepath.Join(root, "robocurse-health.json")),
		rcconfig.WithMetrics(*metrics),
	)

	sessionID := uuid.NewString()

	deps := orchestrator.Deps{
		Lister:       &profiler.ExecLister{BinaryPath: cfg.CopyToolPath, ListArgs: []string{"/L", "/E", "/BYTES", "/NJH", "/NJS", "/FP"}},
		Launcher:     &copytool.ExecLauncher{BinaryPath: cfg.CopyToolPath, LogDir: cfg.LogDir, Log: log},
		LogParser:    copytool.DefaultLogParser{},
		SnapProvider: &snapshot.ExecProvider{BinaryPath: cfg.SnapshotToolPath},
		SessionID:    sessionID,
		BaseCopyArgs: []string{"/E", "/ZB", "/R:2", "/W:5", "/NP"},
		Concurrency:  *concurrency,
	}

	orch, err := orchestrator.New(cfg, log, deps)
	if err != nil {
		log.Fatalf("failed to construct orchestrator: %v", err)
	}

	mode := rcmodel.ScanSmart
	if *scanMode == "flat" {
		mode = rcmodel.ScanFlat
	}

	profile := &rcmodel.Profile{
		Name:          filepath.Base(*source),
		Source:        *source,
		Destination:   *dest,
		UseSnapshot:   *useSnapshot,
		ScanMode:      mode,
		ChunkMaxBytes: 10 << 30, // 10 GiB
		ChunkMaxFiles: 50000,
		ChunkMaxDepth: 8,
		ChunkMinBytes: 64 << 20, // 64 MiB
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	go func() {
		<-ctx.Done()
		log.Warn("received interrupt, requesting stop")
		orch.RequestStop()
	}()

	results, err := orch.StartReplicationRun(ctx, []*rcmodel.Profile{profile}, *concurrency)
	if err != nil {
		log.Fatalf("replication run failed: %v", err)
	}

	for _, r := range results {
		log.Successf("profile %q: status=%s chunksComplete=%d chunksFailed=%d bytesCopied=%d duration=%s",
			r.Name, r.Status, r.ChunksComplete, r.ChunksFailed, r.BytesCopied, r.Duration.Round(time.Second))
		for _, e := range r.Errors {
			log.Error(e)
		}
	}
}
