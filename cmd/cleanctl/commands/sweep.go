package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JonMunkholm/filecleaner/internal/core"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired files from the storage directory",
	Long: `Delete cleaned outputs, staged inputs and partial files older than
--max-age (default: the retention window). This is the same sweep the
server runs every few hours.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().Duration("max-age", 0, "delete files older than this (default: --retention)")
	_ = viper.BindPFlag("max_age", sweepCmd.Flags().Lookup("max-age"))
}

func runSweep(cmd *cobra.Command, _ []string) error {
	setupLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore()
	if err != nil {
		return err
	}
	maxAge := viper.GetDuration("max_age")
	if maxAge <= 0 {
		maxAge = store.Retention()
	}

	service := core.NewService(store, core.Options{})
	res, err := service.Sweep(ctx, maxAge)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), viper.GetString("output"), newSweepSummary(maxAge, res))
}
