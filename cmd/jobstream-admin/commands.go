package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/target/jobstream/internal/adapters/reaper"
	"github.com/target/jobstream/internal/bootstrap"
	"github.com/target/jobstream/internal/domain/model"
	"github.com/target/jobstream/internal/service"
	"github.com/target/jobstream/internal/util"
)

const defaultMigrateTimeout = 5 * time.Minute

func newMigrateCommand(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: a.cfg.Postgres, Logger: a.logger})
			if err != nil {
				return fmt.Errorf("connect db: %w", err)
			}
			defer func() {
				if cerr := db.Close(); cerr != nil {
					a.logger.Warn("close database failed", "error", cerr)
				}
			}()

			if err := bootstrap.RunMigrations(ctx, db, a.logger); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultMigrateTimeout, "maximum time to wait for migrations")
	return cmd
}

func newEnqueueCommand(a *app) *cobra.Command {
	var (
		jobType string
		jobID   string
		payload string
		file    string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a job and print its envelope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := readPayload(cmd.InOrStdin(), payload, file)
			if err != nil {
				return err
			}
			return a.withServices(func(svcs *bootstrap.ServiceContainer) error {
				env, err := svcs.Producer.Enqueue(cmd.Context(), service.EnqueueRequest{
					JobType: model.JobType(jobType),
					JobID:   jobID,
					Payload: body,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), env)
			})
		},
	}
	cmd.Flags().StringVar(&jobType, "type", string(model.JobTypeChat), "job type")
	cmd.Flags().StringVar(&jobID, "id", "", "job id (generated when empty)")
	cmd.Flags().StringVar(&payload, "payload", "", "inline JSON payload")
	cmd.Flags().StringVar(&file, "file", "", "read the JSON payload from a file, or - for stdin")
	cmd.MarkFlagsMutuallyExclusive("payload", "file")
	return cmd
}

func readPayload(stdin io.Reader, inline, file string) (json.RawMessage, error) {
	var raw []byte
	switch {
	case inline != "":
		raw = []byte(inline)
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		raw = b
	default:
		return nil, errors.New("one of --payload or --file is required")
	}
	if !json.Valid(raw) {
		return nil, errors.New("payload is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

func newStatusCommand(a *app) *cobra.Command {
	var jobType string

	cmd := &cobra.Command{
		Use:   "status [job_id]",
		Short: "Show queue depths, or the state of a single job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(func(svcs *bootstrap.ServiceContainer) error {
				if len(args) == 0 {
					return printQueueStatus(cmd.Context(), cmd.OutOrStdout(), svcs)
				}
				ref := model.JobRef{Type: model.JobType(jobType), ID: args[0]}
				return printJobStatus(cmd.Context(), cmd.OutOrStdout(), svcs, ref)
			})
		},
	}
	cmd.Flags().StringVar(&jobType, "type", string(model.JobTypeChat), "job type of the job id")
	return cmd
}

func printQueueStatus(ctx context.Context, out io.Writer, svcs *bootstrap.ServiceContainer) error {
	pending, err := svcs.Store.QueueDepth(ctx)
	if err != nil {
		return fmt.Errorf("queue depth: %w", err)
	}
	processing, err := svcs.Store.ProcessingCount(ctx)
	if err != nil {
		return fmt.Errorf("processing count: %w", err)
	}
	batches, err := svcs.ValidationCache.QueueDepth(ctx)
	if err != nil {
		return fmt.Errorf("validation queue depth: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "pending\t%d\n", pending)
	fmt.Fprintf(tw, "processing\t%d\n", processing)
	fmt.Fprintf(tw, "validation_batches\t%d\n", batches)
	return tw.Flush()
}

func printJobStatus(ctx context.Context, out io.Writer, svcs *bootstrap.ServiceContainer, ref model.JobRef) error {
	state, err := svcs.Delivery.Lookup(ctx, ref)
	if err != nil {
		return err
	}
	chunks, err := svcs.Store.ChunkCount(ctx, ref)
	if err != nil {
		return fmt.Errorf("chunk count: %w", err)
	}
	leased, err := svcs.Store.LeaseHeld(ctx, ref)
	if err != nil {
		return fmt.Errorf("lease: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "job\t%s\n", ref)
	fmt.Fprintf(tw, "status\t%s\n", state.Status)
	if state.MessageType != "" {
		fmt.Fprintf(tw, "message_type\t%s\n", state.MessageType)
	}
	fmt.Fprintf(tw, "created_at\t%s\n", state.CreatedAt.Format(time.RFC3339))
	if !state.UpdatedAt.IsZero() {
		fmt.Fprintf(tw, "updated_at\t%s\n", state.UpdatedAt.Format(time.RFC3339))
		fmt.Fprintf(tw, "elapsed\t%s\n", util.FormatElapsed(state.UpdatedAt.Sub(state.CreatedAt)))
	}
	if state.WorkerID != "" {
		fmt.Fprintf(tw, "worker\t%s\n", state.WorkerID)
	}
	if state.Error != "" {
		fmt.Fprintf(tw, "error\t%s\n", state.Error)
	}
	fmt.Fprintf(tw, "chunks\t%d\n", chunks)
	fmt.Fprintf(tw, "lease_held\t%t\n", leased)
	return tw.Flush()
}

func newTailCommand(a *app) *cobra.Command {
	var (
		jobType string
		cursor  int64
	)

	cmd := &cobra.Command{
		Use:   "tail <job_id>",
		Short: "Stream a job's chunks as JSON lines until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := model.JobRef{Type: model.JobType(jobType), ID: args[0]}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return a.withServices(func(svcs *bootstrap.ServiceContainer) error {
				return svcs.Delivery.Stream(cmd.Context(), ref, cursor, func(ev service.DeliveryEvent) error {
					return enc.Encode(ev)
				})
			})
		},
	}
	cmd.Flags().StringVar(&jobType, "type", string(model.JobTypeChat), "job type of the job id")
	cmd.Flags().Int64Var(&cursor, "cursor", 0, "first chunk index to emit")
	return cmd
}

func newReclaimCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim",
		Short: "Run one reaper sweep over orphaned processing jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(func(svcs *bootstrap.ServiceContainer) error {
				runner, err := reaper.NewRunner(reaper.RunnerOptions{
					Store:    svcs.Store,
					Config:   a.cfg.Reaper,
					Notifier: svcs.Observability.FailureNotifier,
					Logger:   a.logger,
					Metrics:  svcs.Observability.MetricsSink,
				})
				if err != nil {
					return err
				}
				n, err := runner.ReclaimOnce(cmd.Context())
				if err != nil {
					return fmt.Errorf("reclaim: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %d job(s)\n", n)
				return err
			})
		},
	}
}

func newResultsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "results <request_id>",
		Short: "Print the results of a validation batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(func(svcs *bootstrap.ServiceContainer) error {
				res, err := svcs.Validation.Results(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
