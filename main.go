package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/VladMinzatu/zkvm-profiler/internal/exporter"
	"github.com/VladMinzatu/zkvm-profiler/internal/pctrace"
	"github.com/VladMinzatu/zkvm-profiler/internal/pprof"
	"github.com/VladMinzatu/zkvm-profiler/internal/profiler"
	"github.com/VladMinzatu/zkvm-profiler/internal/symbolizer"
)

func main() {
	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		slog.Error("Invalid arguments", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.VerboseMode {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// stop feeding PCs on interrupt; whatever was sampled still gets exported
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Profiling failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config) error {
	start := time.Now()

	elfBytes, err := os.ReadFile(cfg.ElfPath)
	if err != nil {
		return fmt.Errorf("read ELF: %w", err)
	}
	table, err := symbolizer.BuildSymbolTable(elfBytes, symbolizer.WithInstructionWidth(cfg.InstructionWidth))
	if err != nil {
		return err
	}

	p, err := profiler.NewProfiler(table, cfg.SampleRate)
	if err != nil {
		return err
	}

	trace, err := pctrace.Open(cfg.TracePath)
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	err = trace.Each(ctx, p.Record)
	trace.Close()
	switch {
	case errors.Is(err, context.Canceled):
		slog.Warn("Interrupted, exporting the partial profile", "pcs", trace.Count())
	case err != nil:
		return fmt.Errorf("read trace: %w", err)
	}
	slog.Info("Trace replayed", "pcs", trace.Count(), "elapsed", time.Since(start))

	samples := p.Finish()
	profiler.NewSanityChecker(cfg.RootFrame).Check(samples)

	// the auxiliary exporters only read the samples, so they run side by side
	// before the Gecko export drains them
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	if cfg.PprofOutput != "" {
		g.Go(func() error {
			prof, err := pprof.BuildPprofProfile(samples.All(), table, cfg.SampleRate, start)
			if err != nil {
				return err
			}
			return pprof.WriteProfileToFile(prof, cfg.PprofOutput)
		})
	}
	if cfg.FoldedOutput != "" {
		g.Go(func() error {
			return exporter.WriteFoldedStacksToFile(exporter.BuildFoldedStacks(samples.All()), cfg.FoldedOutput)
		})
	}
	if cfg.OltpOutput != "" || cfg.OltpEndpoint != "" {
		g.Go(func() error {
			return exportOltp(gctx, cfg, table, samples)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out, err := exporter.CreateOutput(cfg.Output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	err = exporter.WriteGecko(out, samples, exporter.GeckoOptions{
		SampleRate:  cfg.SampleRate,
		Product:     cfg.Product,
		Fingerprint: table.Fingerprint(),
		StartTime:   start,
		Progress:    exporter.NewLogProgress("Creating profile"),
	})
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: %w", exporter.ErrSerialization, closeErr)
	}
	if err != nil {
		return err
	}
	slog.Info("Profile written successfully", "path", cfg.Output, "elapsed", time.Since(start))
	return nil
}

func exportOltp(ctx context.Context, cfg *Config, table *symbolizer.SymbolTable, samples *profiler.Samples) error {
	data := exporter.BuildOltpProfile(samples.All(), table, exporter.OltpInfo{
		ServiceName: cfg.Product,
		Fingerprint: table.Fingerprint(),
		SampleRate:  cfg.SampleRate,
	}, func() uint64 { return uint64(time.Now().UnixNano()) })

	if cfg.OltpOutput != "" {
		if err := exporter.WriteOltpProfile(data, cfg.OltpOutput); err != nil {
			return err
		}
	}
	if cfg.OltpEndpoint == "" {
		return nil
	}

	client, err := exporter.NewOltpClient(cfg.OltpEndpoint, cfg.DisableTLS)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return client.Export(ctx, data)
}
