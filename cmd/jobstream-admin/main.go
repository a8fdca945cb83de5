package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/target/jobstream/config"
	"github.com/target/jobstream/internal/bootstrap"
)

// app carries what every subcommand needs. The connect hooks are swapped in tests.
type app struct {
	logger     *slog.Logger
	cfg        config.AppConfig
	loadConfig func() (config.AppConfig, error)
	services   func(*slog.Logger, *config.AppConfig) (*bootstrap.ServiceContainer, func() error, error)
}

func main() {
	logger := bootstrap.InitLogger(false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(&app{
		logger:     logger,
		loadConfig: bootstrap.LoadConfig,
		services:   connectServices,
	})
	if err := root.ExecuteContext(ctx); err != nil {
		logger.ErrorContext(ctx, "command failed", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "jobstream-admin",
		Short:         "Operate the jobstream queue, streams and validation batches",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	root.AddCommand(
		newMigrateCommand(a),
		newEnqueueCommand(a),
		newStatusCommand(a),
		newTailCommand(a),
		newReclaimCommand(a),
		newResultsCommand(a),
	)
	return root
}

// withServices runs fn against a freshly wired container and releases it afterwards.
func (a *app) withServices(fn func(*bootstrap.ServiceContainer) error) (err error) {
	svcs, closeFn, err := a.services(a.logger, &a.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeFn(); closeErr != nil {
			a.logger.Warn("close infrastructure failed", "error", closeErr)
		}
	}()
	return fn(svcs)
}
