package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/memohai/shopchat/internal/auth"
)

func newTokenCommand(source func() configSource) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development token signed with auth.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := provideConfig(source())
			if err != nil {
				return err
			}
			if strings.TrimSpace(userID) == "" {
				userID = cfg.Auth.UserID
			}
			if strings.TrimSpace(userID) == "" {
				return errors.New("--user or auth.user_id is required")
			}
			if ttl <= 0 {
				ttl = cfg.Sandbox.TokenTTL.Std()
			}
			token, expiresAt, err := auth.GenerateToken(userID, cfg.Auth.JWTSecret, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, token)
			fmt.Fprintf(cmd.ErrOrStderr(), "user %s, expires %s\n", userID, expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id to embed (defaults to auth.user_id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to sandbox.token_ttl)")
	return cmd
}
