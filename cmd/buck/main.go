package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Vishwajeet-Mishra/buck/internal/android"
	"github.com/Vishwajeet-Mishra/buck/internal/build"
	"github.com/Vishwajeet-Mishra/buck/internal/buildinfo"
	"github.com/Vishwajeet-Mishra/buck/internal/config"
	"github.com/Vishwajeet-Mishra/buck/internal/graph"
	"github.com/Vishwajeet-Mishra/buck/internal/metrics"
	"github.com/Vishwajeet-Mishra/buck/internal/model"
	"github.com/Vishwajeet-Mishra/buck/internal/rulekey"
	"github.com/Vishwajeet-Mishra/buck/internal/step"
	"github.com/Vishwajeet-Mishra/buck/internal/watch"
)

var CLI struct {
	Config  string `short:"c" help:"Build file path" default:"buck.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Targets     []string `arg:"" optional:"" help:"Targets to build (defaults to all android_binary targets)"`
		Report      string   `help:"Write a JSON build report to this path"`
		MetricsAddr string   `help:"Serve Prometheus metrics on this address during the build"`
	} `cmd:"" help:"Build the given targets and their dependencies"`

	Targets struct {
	} `cmd:"" help:"List the declared targets"`

	Watch struct {
		Targets []string `arg:"" optional:"" help:"Targets to rebuild on input changes"`
	} `cmd:"" help:"Build, then rebuild whenever a declared input file changes"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	var err error
	switch ctx.Command() {
	case "build", "build <targets>":
		err = runBuild(CLI.Build.Targets, CLI.Build.Report, CLI.Build.MetricsAddr, logger)
	case "targets":
		err = runTargets()
	case "watch", "watch <targets>":
		err = runWatch(CLI.Watch.Targets, logger)
	}
	if err != nil {
		logger.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// setup loads the build file, registers its rules, and applies the
// pre-dex graph rewrite to every packaging rule.
func setup(logger *slog.Logger) (*config.Config, *graph.Resolver, []model.Target, string, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, nil, nil, "", err
	}

	projectRoot := cfg.ProjectRoot
	if projectRoot == "" {
		projectRoot = filepath.Dir(CLI.Config)
	}
	projectRoot, err = filepath.Abs(projectRoot)
	if err != nil {
		return nil, nil, nil, "", err
	}

	resolver := graph.NewResolver()
	if err := cfg.Register(resolver); err != nil {
		return nil, nil, nil, "", err
	}

	for _, binTarget := range cfg.BinaryTargets() {
		rule, _ := resolver.Get(binTarget)
		bin, ok := rule.(*android.BinaryRule)
		if !ok {
			continue
		}
		preDexed, err := android.EnhanceForPreDexing(resolver, bin)
		if err != nil {
			return nil, nil, nil, "", err
		}
		if len(preDexed) > 0 {
			logger.Debug("pre-dexing enabled",
				slog.String("target", binTarget.String()),
				slog.Int("libraries", len(preDexed)))
		}
	}

	return cfg, resolver, cfg.BinaryTargets(), projectRoot, nil
}

func resolveRoots(args []string, defaults []model.Target) ([]model.Target, error) {
	if len(args) == 0 {
		if len(defaults) == 0 {
			return nil, fmt.Errorf("no targets given and no android_binary targets declared")
		}
		return defaults, nil
	}
	roots := make([]model.Target, 0, len(args))
	for _, a := range args {
		t, err := model.ParseTarget(a)
		if err != nil {
			return nil, err
		}
		roots = append(roots, t)
	}
	return roots, nil
}

func newExecutor(cfg *config.Config, resolver *graph.Resolver, projectRoot string, recorder metrics.Recorder, logger *slog.Logger) (*build.Executor, *rulekey.Factory, func(), error) {
	keys := rulekey.NewFactory(projectRoot)
	env := step.NewExecEnv(projectRoot, &step.ExecInvoker{}, logger)

	store, err := buildinfo.NewStore(filepath.Join(projectRoot, cfg.Database))
	if err != nil {
		return nil, nil, nil, err
	}

	exec := build.NewExecutor(resolver, keys, env).
		WithStore(store).
		WithRecorder(recorder)
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close buildinfo store", slog.String("error", err.Error()))
		}
	}
	return exec, keys, cleanup, nil
}

func runBuild(targetArgs []string, reportPath, metricsAddr string, logger *slog.Logger) error {
	cfg, resolver, defaults, projectRoot, err := setup(logger)
	if err != nil {
		return err
	}
	roots, err := resolveRoots(targetArgs, defaults)
	if err != nil {
		return err
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if metricsAddr != "" {
		registry := prometheus.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(registry)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Warn("metrics server stopped", slog.String("error", err.Error()))
			}
		}()
	}

	exec, _, cleanup, err := newExecutor(cfg, resolver, projectRoot, recorder, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := exec.Run(ctx, roots)
	logBuildReport(logger, report)
	if reportPath != "" {
		if werr := report.WriteJSON(reportPath); werr != nil {
			logger.Warn("failed to write build report", slog.String("error", werr.Error()))
		}
	}
	return err
}

func runTargets() error {
	_, resolver, _, _, err := setup(slog.Default())
	if err != nil {
		return err
	}
	for _, t := range resolver.Targets() {
		rule, _ := resolver.Get(t)
		fmt.Printf("%s\t%s\n", t, rule.TypeName())
	}
	return nil
}

func runWatch(targetArgs []string, logger *slog.Logger) error {
	cfg, resolver, defaults, projectRoot, err := setup(logger)
	if err != nil {
		return err
	}
	roots, err := resolveRoots(targetArgs, defaults)
	if err != nil {
		return err
	}

	exec, keys, cleanup, err := newExecutor(cfg, resolver, projectRoot, metrics.NoopRecorder{}, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rebuild := func(ctx context.Context, _ []model.Target) error {
		report, err := exec.Run(ctx, roots)
		logBuildReport(logger, report)
		return err
	}

	// Initial build before entering the loop; a failure here is worth
	// reporting but should not stop watching.
	if err := rebuild(ctx, nil); err != nil {
		logger.Error("initial build failed", slog.String("error", err.Error()))
	}

	watcher, err := watch.New(projectRoot, resolver, keys, rebuild, logger)
	if err != nil {
		return err
	}
	defer watcher.Stop()
	watcher.Start(ctx)

	logger.Info("watching for changes, press ctrl-c to stop")
	<-ctx.Done()
	return nil
}

func logBuildReport(logger *slog.Logger, report *build.Report) {
	if report == nil {
		return
	}
	logger.Info("build finished",
		slog.String("run_id", report.RunID),
		slog.String("status", string(report.Status)),
		slog.Int("rules", len(report.Rules)),
		slog.Int("cache_hits", report.CacheHits()),
		slog.Duration("duration", report.Duration))
}
