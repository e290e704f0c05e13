package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	jwtmw "stock_timeframes/internal/platform/jwt"
)

// newTokenCmd は読み取りAPI用のサービストークンを JWT_SECRET で発行します。
func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a read-only API token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := jwtmw.NewGenerator(os.Getenv(jwtmw.EnvKeyJWTSecret), ttl)
			if err != nil {
				return err
			}
			token, err := gen.GenerateToken(subject, jwtmw.ScopeRead)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "client name stored in the sub claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
