package cli

import (
	"os"
	"os/signal"
	"syscall"

	"BucketDash/internal/mq"
	"BucketDash/internal/task"
	"BucketDash/internal/worker"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWorkerCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued folder deletes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			client, err := mq.Dial(cfg.RabbitMQURL)
			if err != nil {
				return err
			}
			defer client.Close()

			manager := task.NewManager(a.tasks, client, a.services.Folders, a.mailer, cfg.FolderDeleteReportAddress)
			w := worker.New(worker.Config{
				Prefetch:    cfg.RabbitMQPrefetch,
				Concurrency: cfg.FolderWorkerConcurrency,
				Rate:        cfg.FolderWorkerRate,
				Burst:       cfg.FolderWorkerBurst,
				RetryMax:    cfg.FolderDeleteRetryMax,
				RetryDelays: cfg.FolderDeleteRetryDelays,
			}, manager)
			if err := w.Run(ctx, client); err != nil {
				return err
			}
			log.Info().Msg("folder delete worker stopped")
			return nil
		},
	}
}
