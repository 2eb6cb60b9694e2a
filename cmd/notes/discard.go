package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var discardCmd = &cobra.Command{
	Use:   "discard <id>",
	Short: "Drop a pending note that should never reach the server",
	Long:  `Remove a note from the local replica. Only notes that are still pending can be discarded.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !n.PendingSync {
			return fmt.Errorf("note %s is already on the server", n.ID)
		}
		if err := a.Store.DeleteByID(cmd.Context(), n.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "discarded %s %s\n", n.ID, n.Title)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discardCmd)
}
