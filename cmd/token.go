package main

import (
	"fmt"
	"time"

	"munda-checkout/pkg/auth"

	"github.com/spf13/cobra"
)

var (
	tokenRole string
	tokenTTL  time.Duration
)

// tokenCmd signs a token with the shared secret for local development.
var tokenCmd = &cobra.Command{
	Use:   "token <buyer-id>",
	Short: "Print a development bearer token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := auth.NewJWTManager(cfg.JWT.SecretKey).GenerateToken(args[0], tokenRole, tokenTTL)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleBuyer, "role claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
