package cli

import (
	"fmt"
	"time"

	"BucketDash/utils"

	"github.com/spf13/cobra"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		user string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for a user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := utils.GenerateToken(opts.cfg.JWTSecret, user, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id placed in the sub claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
