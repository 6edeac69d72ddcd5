// Package cli is the bucketdash command line: the HTTP server, the folder
// delete worker and a token helper for local use.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"BucketDash/config"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	cfg        *config.Config
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "bucketdash",
		Short:         "Bucket object store dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if err := setupLogging(os.Stderr, cfg.LogLevel, cfg.LogFormat); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	cmd.AddCommand(
		newServeCommand(opts),
		newWorkerCommand(opts),
		newTokenCommand(opts),
	)
	return cmd
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("bucketdash failed")
		os.Exit(1)
	}
}

func setupLogging(out io.Writer, level, format string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	w := out
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return nil
}
