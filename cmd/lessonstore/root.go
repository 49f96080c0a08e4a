// ABOUTME: Root Cobra command and global flags
// ABOUTME: Sets up CLI structure and opens the application context

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sabeel/lessonstore/internal/app"
	"github.com/sabeel/lessonstore/internal/config"
)

var (
	dataDir     string
	backendFlag string
	verbose     bool
	appCtx      *app.App
)

var rootCmd = &cobra.Command{
	Use:   "lessonstore",
	Short: "Local storage maintenance for the lessons app",
	Long: `Maintenance tooling for the lessons app's local storage: the key/value
engine, the bounded response caches, user activity records, and downloaded
media. Inspect, sweep, migrate, or wipe local state from the command line.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if backendFlag != "" {
			cfg.Backend = backendFlag
		}

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		appCtx, err = app.New(cmd.Context(), cfg, log)
		if err != nil {
			return fmt.Errorf("open application: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if appCtx != nil {
			if err := appCtx.Close(); err != nil {
				return fmt.Errorf("close application: %w", err)
			}
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default: ~/.local/share/lessonstore)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "storage backend: badger or sqlite (default: auto)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
