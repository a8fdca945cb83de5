package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/target/jobstream/config"
	"github.com/target/jobstream/internal/data"
	domainjob "github.com/target/jobstream/internal/domain/job"
	"github.com/target/jobstream/internal/domain/model"
	httpx "github.com/target/jobstream/internal/http"
	"github.com/target/jobstream/internal/observability/metrics"
	"github.com/target/jobstream/internal/observability/notify/pagerduty"
	"github.com/target/jobstream/internal/observability/notify/slack"
	"github.com/target/jobstream/internal/observability/statsd"
	"github.com/target/jobstream/internal/service"
	"github.com/target/jobstream/internal/service/catalog"
	"github.com/target/jobstream/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Store           *data.JobStore
	ValidationCache *data.ValidationCache
	Messages        *data.MessageRepo
	GRNs            *data.GRNRepo
	Producer        *service.ProducerService
	Delivery        *service.DeliveryService
	Validation      *service.ValidationService
	Webhook         *service.WebhookService
	ChunkNotifier   *domainjob.DefaultNotifier // nil when streams only poll
	Observability   ObservabilityContainer

	redis *data.RedisStore
	db    *sql.DB
}

// HealthChecks returns the readiness probes for the backing stores.
func (c *ServiceContainer) HealthChecks() map[string]httpx.HealthCheck {
	checks := make(map[string]httpx.HealthCheck, 2)
	if c == nil {
		return checks
	}
	if c.redis != nil {
		checks["redis"] = c.redis.Health
	}
	if c.db != nil {
		checks["postgres"] = c.db.PingContext
	}
	return checks
}

// Close releases resources owned by the container.
func (c *ServiceContainer) Close() {
	if c == nil {
		return
	}
	if c.ChunkNotifier != nil {
		c.ChunkNotifier.StopAll()
	}
	if c.Observability.Statsd != nil {
		_ = c.Observability.Statsd.Close()
	}
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink fans out to statsd and Prometheus; nil when both are off.
	MetricsSink     statsd.Sink
	Statsd          *statsd.Client
	Registry        *prometheus.Registry
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var statsdClient *statsd.Client
	if cfg.Metrics.StatsdActive() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:       true,
			Address:       cfg.Metrics.StatsdAddress,
			Prefix:        cfg.Metrics.Prefix,
			FlushInterval: cfg.Metrics.StatsdFlushInterval,
			Logger:        obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			statsdClient = client
		}
	}

	var (
		registry *prometheus.Registry
		promSink statsd.Sink
	)
	if cfg.Metrics.PrometheusEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		promSink = metrics.NewPrometheusSink(cfg.Metrics.Prefix, registry)
	}

	var statsdSink statsd.Sink
	if statsdClient != nil {
		statsdSink = statsdClient
	}

	sink := metrics.NewMultiSink(statsdSink, promSink)
	return ObservabilityContainer{
		MetricsSink:     sink,
		Statsd:          statsdClient,
		Registry:        registry,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, sink, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

// NewServices wires the stores and services shared by every service mode.
func NewServices(deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service dependencies are required")
	}
	if deps.RedisClient == nil {
		return nil, errors.New("redis client is required")
	}
	if deps.DB == nil {
		return nil, errors.New("postgres connection is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	observability := buildObservability(logger, cfg.Observability)
	sink := observability.MetricsSink

	redisStore := data.NewRedisStore(deps.RedisClient, data.RetryPolicy{
		Attempts:  cfg.Store.RetryAttempts,
		BaseDelay: cfg.Store.RetryBaseDelay,
		MaxDelay:  cfg.Store.RetryMaxDelay,
	})
	store, err := data.NewJobStore(data.JobStoreOptions{
		Store:     redisStore,
		Namespace: domainjob.Namespace{Entity: cfg.Store.Entity},
		TTL:       cfg.Store.StateTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create job store: %w", err)
	}
	validationCache, err := data.NewValidationCache(data.ValidationCacheOptions{
		Store:     redisStore,
		InputTTL:  cfg.Validation.InputTTL,
		ResultTTL: cfg.Validation.ResultTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create validation cache: %w", err)
	}

	producer, err := service.NewProducerService(service.ProducerServiceOptions{
		Queue:         store,
		MaxQueueDepth: cfg.Dispatcher.MaxQueueDepth,
		Logger:        logger,
		Metrics:       sink,
	})
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}

	var (
		waiter        service.ChunkWaiter
		chunkNotifier *domainjob.DefaultNotifier
	)
	if cfg.Stream.Notify {
		chunkNotifier, err = domainjob.NewNotifier(domainjob.NotifierOptions{
			Listener: store,
			Linger:   cfg.Stream.NotifyLinger,
		})
		if err != nil {
			return nil, fmt.Errorf("create chunk notifier: %w", err)
		}
		waiter = service.NewNotifyingChunkWaiter(service.NotifyingChunkWaiterOptions{
			Chunks:   store,
			Channels: store,
			Notifier: chunkNotifier,
			Fallback: cfg.Stream.NotifyFallback,
		})
	}
	delivery, err := service.NewDeliveryService(service.DeliveryServiceOptions{
		Store:          store,
		Waiter:         waiter,
		PollInterval:   cfg.Stream.PollInterval,
		WaitTimeout:    cfg.Stream.WaitTimeout,
		AttachGrace:    cfg.Stream.AttachGrace,
		MaxStoreErrors: cfg.Stream.MaxStoreErrors,
		Logger:         logger,
		Metrics:        sink,
	})
	if err != nil {
		return nil, fmt.Errorf("create delivery: %w", err)
	}

	catalogCache, err := catalog.New(catalog.Options{
		Repo:          data.NewItemCatalogRepo(deps.DB),
		Shared:        redisStore,
		LocalCapacity: cfg.Validation.CatalogCacheSize,
		TTL:           catalog.TTL{Local: cfg.Validation.CatalogLocalTTL, Shared: cfg.Validation.CatalogSharedTTL},
		Logger:        logger,
		Metrics:       sink,
	})
	if err != nil {
		return nil, fmt.Errorf("create catalog cache: %w", err)
	}

	validation, err := service.NewValidationService(service.ValidationServiceOptions{
		Queue:           validationCache,
		Results:         data.NewValidationResultRepo(deps.DB),
		Catalog:         catalogCache,
		Reasoner:        buildReasoner(cfg, logger),
		RequestPrefix:   cfg.Validation.RequestPrefix,
		ItemConcurrency: cfg.Validation.ItemConcurrency,
		Logger:          logger,
		Metrics:         sink,
	})
	if err != nil {
		return nil, fmt.Errorf("create validation service: %w", err)
	}

	webhook, err := service.NewWebhookService(service.WebhookServiceOptions{
		Producer: producer,
		Config:   cfg.Webhook,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create webhook service: %w", err)
	}

	return &ServiceContainer{
		Store:           store,
		ValidationCache: validationCache,
		Messages:        data.NewMessageRepo(deps.DB),
		GRNs:            data.NewGRNRepo(deps.DB),
		Producer:        producer,
		Delivery:        delivery,
		Validation:      validation,
		Webhook:         webhook,
		ChunkNotifier:   chunkNotifier,
		Observability:   observability,
		redis:           redisStore,
		db:              deps.DB,
	}, nil
}

func buildFailureNotifier(logger *slog.Logger, sink statsd.Sink, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	jobTypes := make([]model.JobType, 0, len(cfg.JobTypes))
	for _, t := range cfg.JobTypes {
		jobTypes = append(jobTypes, model.JobType(t))
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{Logger: baseLogger})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
			APIBaseURL: cfg.Slack.APIBaseURL,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:         baseLogger,
		Metrics:        sink,
		Sinks:          sinks,
		JobTypes:       jobTypes,
		Timeout:        cfg.Timeout,
		SuppressWindow: cfg.SuppressWindow,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) (*http.Server, error) {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil, nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Context:  deps.ctx,
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newDispatcherBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeDispatcher,
		name: "dispatcher",
		start: func(ctx context.Context) error {
			svcs := deps.cfg.Services
			return RunDispatcher(ctx, DispatcherRunConfig{
				Store:    svcs.Store,
				Messages: svcs.Messages,
				GRNs:     svcs.GRNs,
				Config:   deps.cfg.Config,
				Notifier: svcs.Observability.FailureNotifier,
				Logger:   deps.logger,
				Metrics:  svcs.Observability.MetricsSink,
			})
		},
	}
}

func newValidationRunnerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeValidationRunner,
		name: "validation runner",
		start: func(ctx context.Context) error {
			svcs := deps.cfg.Services
			return RunValidationRunner(ctx, ValidationRunnerConfig{
				Queue:     svcs.ValidationCache,
				Processor: svcs.Validation,
				Config:    deps.cfg.Config.Validation,
				Logger:    deps.logger,
				Metrics:   svcs.Observability.MetricsSink,
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			svcs := deps.cfg.Services
			return RunReaper(ctx, ReaperConfig{
				Store:    svcs.Store,
				Config:   deps.cfg.Config.Reaper,
				Notifier: svcs.Observability.FailureNotifier,
				Logger:   deps.logger,
				Metrics:  svcs.Observability.MetricsSink,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil || deps.cfg == nil || deps.cfg.Services == nil {
		return nil
	}
	return []backgroundService{
		newDispatcherBackgroundService(deps),
		newValidationRunnerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) (ServiceStartupResult, error) {
	server, err := startHTTPServerIfEnabled(deps)
	if err != nil {
		return ServiceStartupResult{}, fmt.Errorf("start http server: %w", err)
	}
	return ServiceStartupResult{
		HTTPServer: server,
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}, nil
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	if cfg.Services == nil {
		return errors.New("service orchestration config missing services")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result, err := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})
	if err != nil {
		return err
	}

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		services:    cfg.Services,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	services    *ServiceContainer
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	defer cfg.services.Close()

	if cfg.httpServer != nil {
		// The service context is already cancelled; shutdown needs its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cfg.ctx), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
