package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/trialstats/internal/adapters/http/api"
	"github.com/okian/trialstats/internal/adapters/http/swagger"
	"github.com/okian/trialstats/internal/adapters/repository"
	"github.com/okian/trialstats/internal/adapters/repository/mirror"
	app "github.com/okian/trialstats/internal/app"
	"github.com/okian/trialstats/internal/config"
	"github.com/okian/trialstats/internal/domain/aggregate"
	"github.com/okian/trialstats/pkg/logger"
	"github.com/okian/trialstats/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, handler, err := build(ctx, cfg, loggerInstance)
	if err != nil {
		loggerInstance.Error(ctx, "failed to start service", logger.Error(err))
		os.Exit(1)
	}
	defer svc.Stop()

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx, metrics.Default().RefreshInterval())
	go startServiceMetricsUpdater(ctx, svc, serviceMetricsInterval)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// build wires store, mirrors, engine, service and routes from cfg.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, http.Handler, error) {
	store, err := repository.Open(ctx, cfg.StoreDriver,
		repository.WithPath(cfg.StorePath),
		repository.WithDSN(cfg.PostgresDSN),
		repository.WithTimeout(cfg.StoreTimeout()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	var mirrors []mirror.Mirror
	if cfg.MirrorEnabled() {
		m, err := mirror.NewS3(ctx, mirror.Config{
			Bucket:          cfg.MirrorS3Bucket,
			Region:          cfg.MirrorS3Region,
			Endpoint:        cfg.MirrorS3Endpoint,
			Prefix:          cfg.MirrorS3Prefix,
			PathStyle:       cfg.MirrorS3PathStyle,
			AccessKeyID:     cfg.MirrorS3AccessKeyID,
			SecretAccessKey: cfg.MirrorS3SecretAccessKey,
			Timeout:         cfg.StoreTimeout(),
		})
		if err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("open s3 mirror: %w", err)
		}
		mirrors = append(mirrors, m)
	}

	def, perFamily, err := cfg.Policies()
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	engineOpts := []aggregate.Option{
		aggregate.WithEntity(cfg.EntityKey),
		aggregate.WithDefaultPolicy(def),
	}
	for f, p := range perFamily {
		engineOpts = append(engineOpts, aggregate.WithPolicy(f, p))
	}

	svc := app.New(
		app.WithLogger(log),
		app.WithStore(store),
		app.WithMirrors(mirrors...),
		app.WithEngine(aggregate.New(engineOpts...)),
		app.WithDedupeSize(cfg.DedupeSize),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	// HTTP mux and routes.
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
		api.WithLogger(log.Named("http")),
	).Register(ctx, mux)

	return svc, mux, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// dedupeSizer reports how many idempotency keys the service remembers.
type dedupeSizer interface {
	Size() int64
}

// startServiceMetricsUpdater periodically publishes service gauges.
func startServiceMetricsUpdater(ctx context.Context, svc dedupeSizer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(svc dedupeSizer) {
	metrics.UpdateDedupeKeys(svc.Size())
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		// Average GC pause since start
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
