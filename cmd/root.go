package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ridgeline-roofing/conversions-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "upload-offline-conversions",
	Short: "Reconcile inbound calls against tracked leads and upload the gap as offline conversions",
	Long: "Fetches completed inbound calls from the telephony provider and phone leads from the " +
		"call-tracking provider for a date range, matches them by caller number and time proximity, " +
		"and uploads the unmatched calls (typically cookie-decline visitors) to the ad platforms as " +
		"offline conversions.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	RunE: runUpload,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errPartialUpload) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
