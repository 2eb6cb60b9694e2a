package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"notesync/internal/notelist"
)

var (
	listPages int
	listJSON  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, newest first",
	Long:  `List notes from the server page by page. When the server cannot be reached the local replica is shown instead.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listPages < 1 {
			return fmt.Errorf("%s: must be GT 0", "--pages")
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.List.LoadPage(cmd.Context(), 1); err != nil {
			return fmt.Errorf("load notes: %w", err)
		}
		for i := 1; i < listPages && a.List.Snapshot().HasMore; i++ {
			if err := a.List.LoadMore(cmd.Context()); err != nil {
				return fmt.Errorf("load notes: %w", err)
			}
		}

		s := a.List.Snapshot()
		out := cmd.OutOrStdout()
		if listJSON {
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(s)
		}

		if s.Status == notelist.StatusFailed {
			fmt.Fprintf(out, "offline, showing local notes: %s\n", s.Error)
		}
		for _, n := range s.Notes {
			marker := " "
			if n.PendingSync {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s  %s  %s\n", marker, n.CreatedAt.Local().Format(time.DateTime), n.ID, n.Title)
		}
		if s.HasMore {
			fmt.Fprintf(out, "page %d of %d, use --pages for more\n", s.CurrentPage, s.TotalPages)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVarP(&listPages, "pages", "p", 1, "Number of pages to load")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
}
