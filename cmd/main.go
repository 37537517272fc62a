package main

import (
	"fmt"
	"os"

	"munda-checkout/configs"
	"munda-checkout/pkg/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg    *configs.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "checkoutd",
	Short: "Munda buyer cart and checkout service",
	Long: `checkoutd keeps each buyer's cart, prices it against the marketplace
orders API while it changes, and walks the buyer through delivery, payment
and order submission.

Configuration comes from CONFIG_FILE (YAML) and environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = configs.LoadConfig()
		if err != nil {
			return err
		}
		logger, err = logging.NewLogger(cfg.Log.Level)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
