package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show notes that have not reached the server yet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		pending, err := a.Store.FindPending(cmd.Context())
		if err != nil {
			return err
		}
		for _, n := range pending {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", n.CreatedAt.Local().Format(time.DateTime), n.ID, n.Title)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pendingCmd)
}
