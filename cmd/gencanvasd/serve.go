package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/gencanvas/gencanvas/pkg/gencanvas"
	"github.com/gencanvas/gencanvas/pkg/gencanvas/assets"
	"github.com/gencanvas/gencanvas/pkg/gencanvas/config"
	"github.com/gencanvas/gencanvas/pkg/gencanvas/event"
	"github.com/gencanvas/gencanvas/pkg/gencanvas/frames"
	"github.com/gencanvas/gencanvas/pkg/gencanvas/localmodels"
	"github.com/gencanvas/gencanvas/pkg/gencanvas/observability"
	"github.com/gencanvas/gencanvas/pkg/gencanvas/provider"
	"github.com/gencanvas/gencanvas/pkg/gencanvas/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the canvas HTTP server",
	Long: `Starts the canvas backend: the node graph API, the generation
dispatcher with all configured providers, and the recovery monitor that
re-attaches to in-flight jobs.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8787", "Address to listen on")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.New(nil)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		cfg, err = config.FromFile(path)
		if err != nil {
			return err
		}
	}

	logger := newLogger(cfg.Sub("log"))
	slog.SetDefault(logger)

	addr, _ := cmd.Flags().GetString("addr")
	if a := cfg.Sub("server").String("addr", ""); a != "" && !cmd.Flags().Changed("addr") {
		addr = a
	}

	// Metrics: export the otel instruments through a Prometheus reader.
	exporter, err := otelprom.New()
	if err != nil {
		return fmt.Errorf("init prometheus exporter: %w", err)
	}
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)))

	metrics := observability.NewMetricsRecorder()
	spans := observability.NewSpanManager()

	bus := event.NewBus()
	defer bus.Close()
	store := gencanvas.NewStore(gencanvas.WithBus(bus))

	extractor := frames.NewFFmpeg(
		frames.WithPath(cfg.Sub("frames").String("ffmpeg", "ffmpeg")),
		frames.WithTimeout(cfg.Sub("frames").Duration("timeout", frames.DefaultTimeout)),
	)

	tracker := provider.NewTracker()
	providers := buildProviders(cfg, tracker, logger)

	dispatcher := gencanvas.NewDispatcher(store, providers,
		gencanvas.WithDispatchLogger(logger),
		gencanvas.WithDispatchMetrics(metrics),
		gencanvas.WithDispatchTracing(spans),
		gencanvas.WithDispatchExtractor(extractor),
		gencanvas.WithDispatchReset(tracker),
	)

	mcfg := cfg.Sub("monitor")
	checker := buildChecker(mcfg, tracker)
	monitor := gencanvas.NewMonitor(store, checker,
		gencanvas.WithPollInterval(mcfg.Duration("interval", gencanvas.DefaultPollInterval)),
		gencanvas.WithMaxWait(mcfg.Duration("max_wait", gencanvas.DefaultMaxWait)),
		gencanvas.WithChangeFeed(bus),
		gencanvas.WithMonitorExtractor(extractor),
		gencanvas.WithMonitorLogger(logger),
		gencanvas.WithMonitorMetrics(metrics),
		gencanvas.WithMonitorTracing(spans),
	)

	serverOpts := []server.Option{
		server.WithEventBus(bus),
		server.WithLogger(logger),
	}

	dataDir := cfg.String("data_dir", "./data")
	library, err := assets.OpenLibrary(cfg.Sub("library").String("path", dataDir+"/library.db"))
	if err != nil {
		return fmt.Errorf("open library: %w", err)
	}
	defer library.Close()
	serverOpts = append(serverOpts, server.WithLibrary(library))

	uploads, err := assets.NewUploads(cfg.Sub("uploads").String("dir", dataDir+"/files"), "/files")
	if err != nil {
		return fmt.Errorf("init uploads: %w", err)
	}
	serverOpts = append(serverOpts, server.WithUploads(uploads))

	if dir := cfg.Sub("local").String("models_dir", ""); dir != "" {
		serverOpts = append(serverOpts, server.WithScanner(localmodels.NewScanner(dir)))
	}

	api := server.New(store, dispatcher, checker, serverOpts...)

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	if err := monitor.Start(monitorCtx); err != nil {
		return fmt.Errorf("start recovery monitor: %w", err)
	}
	defer monitor.Stop()

	mux := http.NewServeMux()
	mux.Handle("/", api.Router())
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("canvas server listening", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown did not complete", "error", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("force close: %w", err)
			}
		}
		logger.Info("canvas server stopped")
	}
	return nil
}

// newLogger builds the process logger from the log config section.
func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.String("level", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.String("format", "text") == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// buildProviders registers every provider that has configuration.
// Missing API keys simply leave a node type unroutable; the dispatcher
// reports that per node instead of failing startup.
func buildProviders(cfg config.Config, tracker *provider.Tracker, logger *slog.Logger) *gencanvas.Set {
	set := gencanvas.NewSet()

	if key := cfg.Sub("gemini").String("api_key", os.Getenv("GEMINI_API_KEY")); key != "" {
		set.Register(gencanvas.TypeImage, provider.NewGemini(key,
			provider.WithGeminiModel(cfg.Sub("gemini").String("model", "")),
		))
		set.Register(gencanvas.TypeVideo, provider.NewVeo(key, tracker,
			provider.WithVeoModel(cfg.Sub("veo").String("model", "")),
		))
	}

	if key := cfg.Sub("fal").String("api_key", os.Getenv("FAL_KEY")); key != "" {
		set.Register(gencanvas.TypeKlingVideo, provider.NewKling(key, tracker,
			provider.WithKlingModel(cfg.Sub("fal").String("model", "")),
		))
	}

	if script := cfg.Sub("local").String("inference_script", ""); script != "" {
		set.Register(gencanvas.TypeLocalImage, provider.NewLocal(script,
			provider.WithLocalPython(cfg.Sub("local").String("python", "")),
			provider.WithLocalTimeout(cfg.Sub("local").Duration("timeout", 0)),
		))
	}

	if url := cfg.Sub("camera").String("url", ""); url != "" {
		set.Register(gencanvas.TypeCameraAngle, provider.NewCamera(url,
			provider.WithCameraSteps(cfg.Sub("camera").Int("steps", 0)),
			provider.WithCameraLogger(logger),
		))
	}

	logger.Info("providers registered", "types", set.Types())
	return set
}

// buildChecker picks the status source the monitor polls: a remote
// canvas instance when monitor.status_url is set, the in-process
// tracker otherwise.
func buildChecker(mcfg config.Config, tracker *provider.Tracker) gencanvas.StatusChecker {
	if url := mcfg.String("status_url", ""); url != "" {
		return server.NewStatusClient(url, nil)
	}
	return tracker
}
