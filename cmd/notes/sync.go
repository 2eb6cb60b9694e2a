package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending notes to the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.Sync(cmd.Context()); err != nil {
			return fmt.Errorf("sync: %w", err)
		}

		stats := a.Reconciler.Stats()
		remaining, err := a.Store.CountPending(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "synced %d, failed %d, pending %d\n", stats.Synced, stats.Failed, remaining)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
