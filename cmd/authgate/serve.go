package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authgate/internal/config"
	"authgate/internal/database"
	"authgate/internal/http/handler"
	"authgate/internal/observability/logger"
	"authgate/internal/telemetry"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the authgate HTTP server with the admission gate, diagnostics and observability`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info(ctx, "starting authgate",
		logger.Module("server"),
		logger.Action("start"),
		zap.String("version", telemetry.Version),
		zap.String("app_env", cfg.AppEnv),
	)

	var metrics *telemetry.Metrics
	if cfg.TelemetryEnabled() {
		var shutdownTelemetry func()
		metrics, shutdownTelemetry = initTelemetry(ctx, cfg, log)
		defer shutdownTelemetry()
	} else {
		log.Info(ctx, "telemetry disabled (opt-in only or missing endpoint)", logger.Module("telemetry"), logger.Action("init"))
	}

	diagnostics, closeBackends, err := connectBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBackends()

	registry := telemetry.NewRegistry()
	var otelAdmission metric.Int64Counter
	if metrics != nil {
		otelAdmission = metrics.AdmissionDecisions
	}
	admissionMetrics, err := telemetry.NewAdmissionMetrics(registry, otelAdmission)
	if err != nil {
		return err
	}

	logAdmissionMode(ctx, log, cfg.Admission)

	r := buildRouter(RouterDeps{
		Cfg:         cfg,
		Log:         log,
		Admission:   config.EnvAdmission(),
		Recorder:    admissionMetrics,
		Metrics:     metrics,
		Registry:    registry,
		Diagnostics: diagnostics,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting http server", logger.Module("server"), logger.Action("listen"), zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info(context.Background(), "shutdown signal received, starting graceful shutdown", logger.Module("server"), logger.Action("shutdown"))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown error", logger.Module("server"), logger.Action("shutdown"), zap.Error(err))
	}

	log.Info(shutdownCtx, "shutdown complete", logger.Module("server"), logger.Action("shutdown"))
	return nil
}

// initTelemetry starts the OTLP tracer and meter providers. Failures are
// logged and the service keeps running without them. The returned func
// flushes whatever was started.
func initTelemetry(ctx context.Context, cfg *config.Config, log *logger.Logger) (*telemetry.Metrics, func()) {
	log.Info(ctx, "initializing telemetry",
		logger.Module("telemetry"),
		logger.Action("init"),
		zap.String("endpoint", cfg.OTELExporterEndpoint),
	)

	var shutdowns []func(context.Context) error

	tp, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.OTELExporterEndpoint, cfg.OTELSamplingRatio)
	if err != nil {
		log.Warn(ctx, "failed to initialize tracer, continuing without tracing", logger.Module("telemetry"), zap.Error(err))
	} else {
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	mp, metrics, err := telemetry.InitMetrics(ctx, cfg.ServiceName, cfg.OTELExporterEndpoint)
	if err != nil {
		log.Warn(ctx, "failed to initialize metrics, continuing without metrics", logger.Module("telemetry"), zap.Error(err))
	} else {
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	log.Info(ctx, "telemetry initialized",
		logger.Module("telemetry"),
		logger.Action("init"),
		zap.Bool("tracing", tp != nil),
		zap.Bool("metrics", metrics != nil),
	)

	return metrics, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, shutdown := range shutdowns {
			if err := shutdown(shutdownCtx); err != nil {
				log.Error(shutdownCtx, "failed to shutdown telemetry provider", logger.Module("telemetry"), logger.Action("shutdown"), zap.Error(err))
			}
		}
	}
}

// connectBackends opens the optional Postgres pool and Redis client used by
// /ready and /api/test-db. A configured backend that cannot be reached is fatal.
func connectBackends(ctx context.Context, cfg *config.Config, log *logger.Logger) (*handler.DiagnosticsHandler, func(), error) {
	var (
		pool    handler.DBPool
		pinger  handler.RedisPinger
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DatabaseURL != "" {
		log.Info(ctx, "connecting to database", logger.Module("database"), logger.Action("connect"))
		p, err := database.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		pool = p
		closers = append(closers, p.Close)
		log.Info(ctx, "database connected", logger.Module("database"), logger.Action("connect"))
	}

	if cfg.RedisURL != "" {
		log.Info(ctx, "connecting to redis", logger.Module("redis"), logger.Action("connect"))
		c, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		pinger = c
		closers = append(closers, func() { _ = c.Close() })
		log.Info(ctx, "redis connected", logger.Module("redis"), logger.Action("connect"))
	}

	return handler.NewDiagnosticsHandler(pool, pinger), closeAll, nil
}

func logAdmissionMode(ctx context.Context, log *logger.Logger, a config.Admission) {
	if !a.Enabled() {
		log.Warn(ctx, "token verification disabled by AUTH_ACCESS, every request is admitted",
			logger.Module("auth"),
			logger.Action("init"),
		)
		return
	}
	log.Info(ctx, "token verification enabled",
		logger.Module("auth"),
		logger.Action("init"),
		zap.Strings("bypass_paths", a.BypassPaths),
	)
}
