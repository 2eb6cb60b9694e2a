package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <title> <content>",
	Short: "Create a note",
	Long:  `Create a note locally and push it to the server. If the server cannot be reached the note stays pending until the next sync.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.List.AddNote(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("add note: %w", err)
		}

		state := "synced"
		if n.PendingSync {
			state = "pending"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", n.ID, n.Title, state)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
}
