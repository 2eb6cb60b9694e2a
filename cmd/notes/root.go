package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"notesync/internal/app"
	"notesync/internal/config"
)

var (
	verbose    bool
	configPath string
	serverURL  string
	ownerID    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "notes",
	Short: "Offline-first notes client",
	Long: `notes keeps a local replica of your notes and syncs it with the notes server.
Notes written while offline are kept locally and pushed on the next sync.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultClientPath(), "Path to the client config file")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Override server_url from the config file")
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", "", "Override owner_id from the config file")
}

// openApp loads the config, applies flag overrides and opens the client.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadClient(configPath)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if ownerID != "" {
		cfg.OwnerID = ownerID
	}
	return app.Open(ctx, cfg, slog.Default())
}
