package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"BucketDash/internal/handler"
	"BucketDash/internal/mq"
	"BucketDash/internal/task"
	"BucketDash/router"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) error {
	cfg := opts.cfg
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	publisher := mq.NewPublisher(cfg.RabbitMQURL)
	defer publisher.Close()
	tasks := task.NewManager(a.tasks, publisher, a.services.Folders, a.mailer, cfg.FolderDeleteReportAddress)

	h := handler.New(a.services, tasks, handler.Options{
		MaxUploadBytes:    cfg.MaxUploadBytes,
		AsyncFolderDelete: cfg.FolderDeleteAsync,
	})
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: router.InitRouter(router.Deps{
			Handler:     h,
			Metrics:     a.metrics,
			JWTSecret:   cfg.JWTSecret,
			CORSOrigins: cfg.CORSOrigins,
			Checks:      a.checks,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("backend", cfg.StorageBackend).Bool("async_folder_delete", cfg.FolderDeleteAsync).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
