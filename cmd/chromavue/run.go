package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/modelbashir-create/ChromaVue-V1/internal/config"
	"github.com/modelbashir-create/ChromaVue-V1/internal/engine"
	"github.com/modelbashir-create/ChromaVue-V1/internal/export"
	"github.com/modelbashir-create/ChromaVue-V1/internal/ingest"
	"github.com/modelbashir-create/ChromaVue-V1/internal/kernel"
	"github.com/modelbashir-create/ChromaVue-V1/internal/pipeline"
	"github.com/modelbashir-create/ChromaVue-V1/internal/sampler"
	"github.com/modelbashir-create/ChromaVue-V1/internal/server"
	"github.com/modelbashir-create/ChromaVue-V1/internal/simulator"
)

var (
	runPort      int
	runEndpoint  string
	runSimulate  bool
	runNoExport  bool
	runExportDir string
	runGridSize  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the analysis pipeline",
	RunE:  runPipeline,
}

func init() {
	runCmd.Flags().IntVar(&runPort, "port", 0, "HTTP port for the live stream (overrides config)")
	runCmd.Flags().StringVar(&runEndpoint, "endpoint", "", "ZMQ endpoint of the capture producer (overrides config)")
	runCmd.Flags().BoolVar(&runSimulate, "simulate", false, "Run with a simulated capture producer")
	runCmd.Flags().BoolVar(&runNoExport, "no-export", false, "Disable session export")
	runCmd.Flags().StringVar(&runExportDir, "export-dir", "", "Session export root (overrides config)")
	runCmd.Flags().IntVar(&runGridSize, "grid-size", 0, "Analysis grid side length (overrides config)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if runPort > 0 {
		cfg.Port = runPort
	}
	if runEndpoint != "" {
		cfg.Endpoint = runEndpoint
	}
	if runSimulate {
		cfg.Simulate = true
	}
	if runNoExport {
		cfg.Export.Enabled = false
	}
	if runExportDir != "" {
		cfg.Export.RootDir = runExportDir
	}
	if runGridSize > 0 {
		cfg.GridSize = runGridSize
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	runID := uuid.NewString()
	log := logger.With(zap.String("run_id", runID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	selector := kernel.Select(cfg.KernelParallel, cfg.KernelWorkers, log)
	defer selector.Close()

	eng := engine.New(selector, log, engine.WithPairWindow(cfg.PairWindowMs))
	defer eng.Close()

	manager := export.NewManager(export.Config{
		Enabled:    cfg.Export.Enabled,
		AutoStart:  cfg.Export.AutoStart,
		RootDir:    cfg.Export.RootDir,
		CSVEnabled: cfg.Export.CSV,
		QC: export.QCWindows{
			DistanceMinMm: cfg.QC.DistanceMinMm,
			DistanceMaxMm: cfg.QC.DistanceMaxMm,
			TiltMaxDeg:    cfg.QC.TiltMaxDeg,
			SaturationMax: cfg.QC.SaturationMax,
		},
	}, log)
	if cfg.Export.Enabled && !cfg.Export.AutoStart {
		if _, err := manager.BeginSession(); err != nil {
			// Directory trouble disables export for this run; the
			// pipeline itself keeps going.
			log.Warn("begin session failed, export inactive", zap.Error(err))
		}
	}

	frames, sourceName := openSource(ctx, cfg, log)
	log.Info("pipeline starting",
		zap.String("source", sourceName),
		zap.Int("grid_size", cfg.GridSize),
		zap.String("kernel", selector.Name()))
	manager.AppendEvent(time.Now().UnixMilli(), "source_start", sourceName)

	var metrics pipeline.Metrics
	pipe := pipeline.New(eng, manager, &metrics, pipeline.Options{
		GridSize: cfg.GridSize,
		UIRate:   time.Duration(cfg.UIRateMs) * time.Millisecond,
	}, log)

	uiMessages := make(chan any, 16)
	statusFn := func() map[string]any {
		m := metrics.Snapshot()
		for k, v := range manager.Stats() {
			m[k] = v
		}
		m["kernel_fallbacks_total"] = selector.Fallbacks()
		m["ingest_decode_total"] = ingest.DecodeCount()
		m["ingest_decode_failures_total"] = ingest.DecodeFailures()
		payload := map[string]any{
			"run_id":  runID,
			"source":  sourceName,
			"kernel":  selector.Name(),
			"metrics": m,
		}
		if id, ok := manager.ActiveSession(); ok {
			payload["session"] = id
		}
		return payload
	}
	configFn := func() map[string]any {
		return map[string]any{
			"type":           "config",
			"grid_size":      cfg.GridSize,
			"port":           cfg.Port,
			"endpoint":       cfg.Endpoint,
			"pair_window_ms": cfg.PairWindowMs,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, server.Config{Port: cfg.Port}, log, uiMessages, statusFn, pipe.Snapshot, configFn)
	})
	g.Go(func() error {
		defer close(uiMessages)
		err := pipe.Run(gctx, frames, uiMessages)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	err = g.Wait()
	manager.EndSession()
	manager.Drain()
	if err != nil && err != context.Canceled {
		return err
	}
	log.Info("pipeline stopped")
	return nil
}

// openSource starts the configured frame source. A failed ingest start falls
// back to the simulator when allowed, mirroring the capture producer being
// optional during bring-up.
func openSource(ctx context.Context, cfg config.Config, log *zap.Logger) (<-chan sampler.RawFrame, string) {
	if cfg.Simulate {
		return simulator.Stream(ctx, cfg.SimWidth, cfg.SimHeight, cfg.SimRate), "simulator"
	}
	frames, err := ingest.Stream(ctx, cfg.Endpoint, cfg.IngestLogEvery, log)
	if err != nil {
		if cfg.IngestFallback {
			log.Warn("ingest start failed, falling back to simulator", zap.Error(err))
			return simulator.Stream(ctx, cfg.SimWidth, cfg.SimHeight, cfg.SimRate), "simulator"
		}
		log.Error("ingest start failed", zap.Error(err))
		closed := make(chan sampler.RawFrame)
		close(closed)
		return closed, "none"
	}
	return frames, cfg.Endpoint
}
