package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "List the files in the storage directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		setupLogging()

		store, err := openStore()
		if err != nil {
			return err
		}
		u, err := store.Usage()
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), viper.GetString("output"), newUsageSummary(store.Root(), store.Retention(), u))
	},
}

func init() {
	rootCmd.AddCommand(usageCmd)
}
