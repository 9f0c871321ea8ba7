// Command faasm-run executes an MPI-style wasm program on one host: it
// spawns one sandboxed instance per rank, links the MPI import surface to an
// in-process coordination engine and waits for every rank to finish.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joshuafried/faasm/coord"
	"github.com/joshuafried/faasm/coord/local"
	"github.com/joshuafried/faasm/mpi"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the runner config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadRunConfig(configPath)
	if err != nil {
		return err
	}

	logCfg := zap.NewProductionConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	var metrics mpi.MetricHook = mpi.NopMetrics{}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		pm, err := mpi.NewPrometheusMetrics(mpi.PrometheusMetricsOptions{Registerer: reg})
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		metrics = pm

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			log.Infow("metrics listening", "addr", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Errorw("metrics server stopped", "error", err)
			}
		}()
	}

	wasmBytes, err := os.ReadFile(cfg.WasmPath)
	if err != nil {
		return fmt.Errorf("read wasm module: %w", err)
	}

	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	wasi_snapshot_preview1.MustInstantiate(ctx, rt)
	builder := rt.NewHostModuleBuilder("env")
	mpi.ExportHostFunctions(builder)
	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiate host module: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return fmt.Errorf("compile wasm module: %w", err)
	}

	engine := local.NewEngine(local.WithLogger(log))
	defer engine.Close()

	log.Infow("starting world", "wasm", cfg.WasmPath, "size", cfg.WorldSize)

	// Rank zero creates the world during its guest's init call; the
	// generated id is fanned out so the remaining ranks can join.
	worldID := make(chan int32, cfg.WorldSize)
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < cfg.WorldSize; rank++ {
		rank := rank
		g.Go(func() error {
			return runInstance(gctx, rt, compiled, engine, cfg, log, metrics, rank, worldID)
		})
	}
	return g.Wait()
}

func runInstance(ctx context.Context, rt wazero.Runtime, compiled wazero.CompiledModule,
	engine coord.Engine, cfg runConfig, log *zap.SugaredLogger, metrics mpi.MetricHook,
	rank int, worldID chan int32) error {

	placement := &coord.Placement{Rank: int32(rank), WorldSize: int32(cfg.WorldSize)}
	sessionCfg := mpi.Config{
		ProcessorName: cfg.ProcessorName,
		Logger:        log.With("rank", rank),
		Metrics:       metrics,
	}
	if rank == 0 {
		sessionCfg.OnWorldCreated = func(id int32) {
			for i := 1; i < cfg.WorldSize; i++ {
				worldID <- id
			}
		}
	} else {
		select {
		case placement.WorldID = <-worldID:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	session := mpi.NewSession(engine, placement, sessionCfg)
	ctx = mpi.WithSession(ctx, session)

	modCfg := wazero.NewModuleConfig().
		WithName(fmt.Sprintf("rank-%d", rank)).
		WithStdout(os.Stdout).
		WithStderr(os.Stderr).
		WithStartFunctions()
	mod, err := rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return fmt.Errorf("rank %d: instantiate: %w", rank, err)
	}
	defer mod.Close(ctx)

	entry := mod.ExportedFunction(cfg.Entrypoint)
	if entry == nil {
		return fmt.Errorf("rank %d: module exports no %q", rank, cfg.Entrypoint)
	}
	if _, err := entry.Call(ctx); err != nil {
		return fmt.Errorf("rank %d: %w", rank, err)
	}
	log.Debugw("rank finished", "rank", rank)
	return nil
}
