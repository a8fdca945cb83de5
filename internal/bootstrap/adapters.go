package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/jobstream/config"
	"github.com/target/jobstream/internal/adapters/jobrunner"
	"github.com/target/jobstream/internal/adapters/reaper"
	"github.com/target/jobstream/internal/adapters/upstream"
	"github.com/target/jobstream/internal/core"
	"github.com/target/jobstream/internal/domain/model"
	"github.com/target/jobstream/internal/observability/statsd"
	"github.com/target/jobstream/internal/service"
)

// DispatcherRunConfig contains configuration for the streaming job dispatcher.
type DispatcherRunConfig struct {
	Store    core.JobStore
	Messages core.MessageRepository
	GRNs     core.GRNRepository
	Config   *config.AppConfig
	Notifier core.FailureNotifier
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// RunDispatcher starts the dispatcher service.
func RunDispatcher(ctx context.Context, cfg DispatcherRunConfig) error {
	if cfg.Config == nil {
		return errors.New("dispatcher requires AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := buildRegistry(cfg.Config, cfg.Messages, cfg.GRNs, logger)
	if err != nil {
		return err
	}

	dispatcher, err := jobrunner.NewDispatcher(jobrunner.DispatcherOptions{
		Store:    cfg.Store,
		Registry: registry,
		Config:   cfg.Config.Dispatcher,
		Notifier: cfg.Notifier,
		Logger:   logger,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	return dispatcher.Run(ctx)
}

// buildRegistry registers one strategy per job type.
func buildRegistry(
	cfg *config.AppConfig,
	messages core.MessageRepository,
	grns core.GRNRepository,
	logger *slog.Logger,
) (*jobrunner.Registry, error) {
	if messages == nil {
		return nil, errors.New("message repository is required")
	}
	if grns == nil {
		return nil, service.ErrGRNRepositoryRequired
	}
	executor, err := buildExecutor(cfg, logger)
	if err != nil {
		return nil, err
	}

	whatsapp := service.WhatsAppPersister{Messages: messages, Logger: logger}
	if cfg.Gateway.Enabled() {
		gateway, gwErr := upstream.NewGatewayClient(upstream.GatewayOptions{
			URL:        cfg.Gateway.URL,
			Token:      cfg.Gateway.Token,
			Timeout:    cfg.Gateway.Timeout,
			RetryLimit: cfg.Gateway.RetryLimit,
		})
		if gwErr != nil {
			return nil, fmt.Errorf("create gateway client: %w", gwErr)
		}
		whatsapp.Gateway = gateway
	} else {
		logger.Warn("no messaging gateway configured; whatsapp replies are stored but not sent")
	}

	chat := service.ChatPersister{Messages: messages}

	registry := jobrunner.NewRegistry()
	registry.MustRegister(model.JobTypeChat, jobrunner.Strategy{
		Executor:       executor,
		Persist:        chat.Persist,
		PersistFailure: chat.PersistFailure,
	})
	registry.MustRegister(model.JobTypeWhatsAppChat, jobrunner.Strategy{
		Executor:       executor,
		Persist:        whatsapp.Persist,
		PersistFailure: whatsapp.PersistFailure,
	})
	// Reports live only in the job stream; nothing is written back.
	registry.MustRegister(model.JobTypePerformanceReport, jobrunner.Strategy{
		Executor: service.PerformanceReporter{GRNs: grns},
	})
	return registry, nil
}

//nolint:ireturn // the executor is chosen at startup from config.
func buildExecutor(cfg *config.AppConfig, logger *slog.Logger) (core.Executor, error) {
	if !cfg.Executor.Enabled() {
		if !cfg.IsDev {
			return nil, errors.New("executor upstream url is required outside dev mode")
		}
		logger.Warn("no executor upstream configured; using echo executor")
		return upstream.EchoExecutor{Delay: cfg.Executor.EchoDelay}, nil
	}
	executor, err := upstream.NewStreamExecutor(upstream.StreamExecutorOptions{
		URL:   cfg.Executor.UpstreamURL,
		Token: cfg.Executor.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream executor: %w", err)
	}
	return executor, nil
}

// buildReasoner falls back to the echo reasoner when no completion endpoint is
// configured. Startup validation rejects that combination for the validation
// runner outside dev mode.
//
//nolint:ireturn // the reasoner is chosen at startup from config.
func buildReasoner(cfg *config.AppConfig, logger *slog.Logger) core.Reasoner {
	if cfg.Executor.CompleteURL == "" {
		if !cfg.IsDev {
			logger.Warn("no completion endpoint configured; validation batches will use the echo reasoner")
		}
		return upstream.EchoReasoner{}
	}
	reasoner, err := upstream.NewReasoner(upstream.ReasonerOptions{
		URL:     cfg.Executor.CompleteURL,
		Token:   cfg.Executor.Token,
		Timeout: cfg.Executor.Timeout,
	})
	if err != nil {
		logger.Error("failed to create reasoner; using echo reasoner", "error", err)
		return upstream.EchoReasoner{}
	}
	return reasoner
}

// ValidationRunnerConfig contains configuration for the batch validation runner.
type ValidationRunnerConfig struct {
	Queue     core.ValidationQueue
	Processor jobrunner.BatchProcessor
	Config    config.ValidationConfig
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// RunValidationRunner starts the validation runner service.
func RunValidationRunner(ctx context.Context, cfg ValidationRunnerConfig) error {
	runner, err := jobrunner.NewValidationRunner(jobrunner.ValidationRunnerOptions{
		Queue:     cfg.Queue,
		Processor: cfg.Processor,
		Config:    cfg.Config,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create validation runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	Store    service.ReclaimStore
	Config   config.ReaperConfig
	Notifier core.FailureNotifier
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		Store:    cfg.Store,
		Config:   cfg.Config,
		Notifier: cfg.Notifier,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
