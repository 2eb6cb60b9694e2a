package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Stay running and sync whenever the server becomes reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Run(ctx); err != nil {
			return err
		}

		// final component state on the way out
		for _, c := range a.Components() {
			data, _ := json.Marshal(c.State())
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
