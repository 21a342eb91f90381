package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ahrav/specter/internal/api"
	"github.com/ahrav/specter/internal/api/debug"
	"github.com/ahrav/specter/internal/api/mux"
	"github.com/ahrav/specter/internal/api/routes"
	"github.com/ahrav/specter/internal/app/retention"
	"github.com/ahrav/specter/internal/app/session"
	"github.com/ahrav/specter/internal/config"
	"github.com/ahrav/specter/internal/config/fileloader"
	"github.com/ahrav/specter/internal/infra/process"
	"github.com/ahrav/specter/internal/infra/storage/artifact"
	"github.com/ahrav/specter/pkg/common"
	"github.com/ahrav/specter/pkg/common/logger"
	"github.com/ahrav/specter/pkg/common/otel"
)

var build = "develop"

const serviceType = "specter"

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	ctx := context.Background()

	var loaders []config.Loader
	if path := os.Getenv("SPECTER_CONFIG"); path != "" {
		loaders = append(loaders, fileloader.NewFileLoader(path))
	}

	cfg, err := config.Load(ctx, loaders...)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}

			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("SPECTER-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	var log *logger.Logger
	log = logger.NewWithMetadata(os.Stdout, logger.ParseLevel(cfg.Log.Level), svcName, traceIDFn, logEvents, metadata)

	if err := run(ctx, log, cfg, hostname); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, cfg *config.Config, hostname string) error {
	// -------------------------------------------------------------------------
	// GOMAXPROCS
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	// -------------------------------------------------------------------------
	// Tool discovery
	toolPath := config.FindTool(cfg.Tool.Path, cfg.Tool.Name)
	if toolPath == "" {
		log.Warn(ctx, "startup", "status", "tool not found, searches will fail", "tool", cfg.Tool.Name)
	} else {
		log.Info(ctx, "startup", "status", "tool found", "path", toolPath)
	}

	// -------------------------------------------------------------------------
	// Start Tracing Support
	log.Info(ctx, "startup", "status", "initializing tracing support")

	traceProvider, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      cfg.Telemetry.ServiceName,
		ExporterEndpoint: cfg.Telemetry.Endpoint,
		ExcludedRoutes: map[string]struct{}{
			"/v1/readiness": {},
			"/v1/liveness":  {},
			"/debug":        {},
			"/metrics":      {},
		},
		Probability: cfg.Telemetry.Probability,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"host.name":        hostname,
		},
		InsecureExporter: cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer teardown(context.WithoutCancel(ctx))

	tracer := traceProvider.Tracer(cfg.Telemetry.ServiceName)

	// -------------------------------------------------------------------------
	// Start Debug Service
	if cfg.Web.DebugHost != "" {
		go func() {
			log.Info(ctx, "startup", "status", "debug router started", "host", cfg.Web.DebugHost)

			if err := http.ListenAndServe(cfg.Web.DebugHost, debug.Mux()); err != nil {
				log.Error(ctx, "shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "msg", err)
			}
		}()
	}

	// -------------------------------------------------------------------------
	// Session Support
	log.Info(ctx, "startup", "status", "initializing session support")

	mp := otel.GetMeterProvider()
	sessionMetrics, err := session.NewMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating session metrics: %w", err)
	}

	store, err := artifact.NewStore(cfg.Results.Dir, log, tracer)
	if err != nil {
		return fmt.Errorf("creating results store: %w", err)
	}

	gate, err := session.NewGate(cfg.Search.MaxConcurrent)
	if err != nil {
		return fmt.Errorf("creating admission gate: %w", err)
	}

	supervisor := session.NewSupervisor(
		process.NewSpawner(cfg.Tool.WorkDir),
		session.SupervisorConfig{
			ToolPath:   toolPath,
			Args:       cfg.Tool.Args,
			Timeout:    cfg.Search.Timeout,
			KillGrace:  cfg.Search.KillGrace,
			TotalSites: cfg.Tool.TotalSites,
		},
		sessionMetrics,
		tracer,
		log,
	)

	orchestrator := session.NewOrchestrator(
		gate,
		session.NewRegistry(),
		supervisor,
		store,
		session.OrchestratorConfig{
			EventBuffer: cfg.Search.EventBuffer,
			KeepEmpty:   cfg.Results.KeepEmpty,
		},
		sessionMetrics,
		tracer,
		log,
	)

	// -------------------------------------------------------------------------
	// Background Maintenance
	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	sweeper := retention.NewSweeper(store, cfg.Results.SweepInterval, cfg.Results.Retention, sessionMetrics, tracer, log)
	sweeper.Start(bgCtx)

	limiter := common.NewKeyedRateLimiter(cfg.Limits.SearchesPerMinute, time.Minute, cfg.Limits.Burst)
	go func() {
		ticker := time.NewTicker(cfg.Limits.IdleTTL)
		defer ticker.Stop()
		for {
			select {
			case <-bgCtx.Done():
				return
			case <-ticker.C:
				if n := limiter.Prune(cfg.Limits.IdleTTL); n > 0 {
					log.Debug(bgCtx, "pruned idle rate limiters", "count", n)
				}
			}
		}
	}()

	// -------------------------------------------------------------------------
	// Start API Service
	log.Info(ctx, "startup", "status", "initializing API support")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	metricCollector, err := api.NewAPIMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating metrics collector: %w", err)
	}

	cfgMux := mux.Config{
		Build:      build,
		Log:        log,
		Tracer:     tracer,
		Sessions:   orchestrator,
		Artifacts:  store,
		Limiter:    limiter,
		ToolPath:   toolPath,
		TrustProxy: cfg.Web.TrustProxy,
		Metrics:    metricCollector,
	}

	options := []func(*mux.Options){mux.WithCORS(cfg.Web.AllowedOrigins)}
	if cfg.Web.StaticDir != "" {
		if _, err := os.Stat(filepath.Join(cfg.Web.StaticDir, "index.html")); err == nil {
			options = append(options, mux.WithFileServer(os.DirFS(cfg.Web.StaticDir), "."))
		} else {
			log.Warn(ctx, "startup", "status", "static dir has no index.html, frontend disabled", "dir", cfg.Web.StaticDir)
		}
	}

	webAPI := mux.WebAPI(cfgMux, routes.Routes(), options...)

	api := http.Server{
		Addr:         cfg.Web.APIHost,
		Handler:      webAPI,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     logger.NewStdLogger(log, logger.LevelError),
	}

	serverErrors := make(chan error, 1)

	go func() {
		log.Info(ctx, "startup", "status", "api router started", "host", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	// -------------------------------------------------------------------------
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info(ctx, "shutdown", "status", "shutdown started", "signal", sig)
		defer log.Info(ctx, "shutdown", "status", "shutdown complete", "signal", sig)

		ctx, cancel := context.WithTimeout(ctx, cfg.Web.ShutdownTimeout)
		defer cancel()

		// Shutdown waits on open streams; they end once their sessions are
		// cancelled.
		var errs []error
		serverDone := make(chan error, 1)
		go func() { serverDone <- api.Shutdown(ctx) }()

		if err := orchestrator.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping sessions: %w", err))
		}
		if err := <-serverDone; err != nil {
			_ = api.Close()
			errs = append(errs, fmt.Errorf("could not stop server gracefully: %w", err))
		}

		stopBackground()
		sweeper.Wait()

		return errors.Join(errs...)
	}
}
