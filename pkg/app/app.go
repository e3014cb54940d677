package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harryosmar/log-visibility/pkg/config"
	"github.com/harryosmar/log-visibility/pkg/control"
	"github.com/harryosmar/log-visibility/pkg/docker"
	"github.com/harryosmar/log-visibility/pkg/filter"
	"github.com/harryosmar/log-visibility/pkg/logging"
	"github.com/harryosmar/log-visibility/pkg/metrics"
	"github.com/harryosmar/log-visibility/pkg/processor"
	"github.com/harryosmar/log-visibility/pkg/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// shutdownTimeout bounds the graceful stop of the HTTP server
const shutdownTimeout = 5 * time.Second

// App represents the main application
type App struct {
	config       *config.AppConfig
	logger       *zap.Logger
	metrics      *metrics.Metrics
	dispatcher   *processor.Dispatcher
	logProcessor *processor.LogProcessor
	containerMgr *docker.ContainerManager
	watcher      *control.Watcher
}

// NewApp wires the application from a loaded config. A nil reg uses the
// default Prometheus registry.
func NewApp(cfg *config.AppConfig, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	// Initialize metrics
	metricsService := metrics.NewMetrics(logger, reg)

	// Initialize visibility filter with the configured policy
	h, err := filter.CreateHandler(filter.TypeVisibility, cfg.Policy, logger)
	if err != nil {
		return nil, err
	}
	visibility, ok := h.(*filter.VisibilityFilter)
	if !ok {
		return nil, fmt.Errorf("unexpected handler %T for %s", h, filter.TypeVisibility)
	}
	metricsService.SetPolicy(visibility.Snapshot())

	dispatcher := processor.NewDispatcher(logger, visibility, metricsService, logging.NewSink(logger))
	logProcessor := processor.NewLogProcessor(logger, metricsService, dispatcher, cfg.ForceChannels)

	// Mount the control API next to /metrics
	metricsService.SetControlHandler(web.NewControlHandler(logger, dispatcher).Handler())

	a := &App{
		config:       cfg,
		logger:       logger,
		metrics:      metricsService,
		dispatcher:   dispatcher,
		logProcessor: logProcessor,
	}

	if cfg.Docker.Enabled {
		a.containerMgr, err = docker.NewContainerManager(
			logger,
			metricsService,
			docker.Options{
				MaxStreams:    cfg.Docker.MaxStreams,
				SinceWindow:   cfg.GetSinceWindow(),
				BufferSize:    cfg.Docker.TailBufferSize,
				DropOnFull:    cfg.Docker.DropOnFull,
				FilterLabels:  cfg.Docker.FilterLabels,
				AllContainers: cfg.Docker.AllContainers,
			},
			logProcessor.ProcessLine,
		)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Redis.Enabled {
		a.watcher = control.NewWatcher(
			&redis.Options{
				Addr:     cfg.Redis.Address,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			},
			cfg.Redis.Channel,
			cfg.Redis.Key,
			dispatcher,
			logger,
		)
	}

	return a, nil
}

// Dispatcher returns the dispatcher driving the visibility policy
func (a *App) Dispatcher() *processor.Dispatcher {
	return a.dispatcher
}

// Start runs the application until ctx is done or a shutdown signal arrives
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start metrics and control server
	a.metrics.ServeMetrics(a.config.MetricsAddr)

	if a.containerMgr != nil {
		if err := a.containerMgr.StartMonitoring(ctx); err != nil {
			a.Shutdown()
			return err
		}
	}

	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			a.logger.Warn("Redis control watcher unavailable", zap.Error(err))
		}
	}

	// Watch for configuration changes
	if a.config.ConfigPath != "" {
		go config.WatchConfig(ctx, a.config.ConfigPath, a.logger, a.reloadPolicy)
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		a.logger.Info("Received shutdown signal")
	case <-ctx.Done():
		a.logger.Info("Shutdown requested")
	}
	cancel()
	a.Shutdown()
	return nil
}

// reloadPolicy applies the policy of a changed config file
func (a *App) reloadPolicy(newConfig *config.AppConfig) {
	if err := a.dispatcher.ApplyPolicy(newConfig.Policy); err != nil {
		a.logger.Warn("Ignoring policy from config", zap.Error(err))
		return
	}
	a.logger.Info("Configuration updated", zap.Stringer("policy", a.dispatcher.Snapshot()))
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() {
	a.logger.Info("Shutting down application")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.metrics.Shutdown(ctx); err != nil {
		a.logger.Warn("Metrics server shutdown failed", zap.Error(err))
	}

	if a.containerMgr != nil {
		a.containerMgr.Close()
	}
	if a.watcher != nil {
		a.watcher.Close()
	}

	a.logger.Sync()
}
