// ABOUTME: Migration command moving legacy fallback data into the primary store
// ABOUTME: Runs the startup migration on demand and prints a summary

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate legacy fallback data into the primary store",
	Long: `Move data out of the legacy sqlite fallback database into the active
primary store. Runs automatically at startup; this command exists to retry
after a partial migration and to see what moved.

Requires the badger backend: on the sqlite backend the fallback database is
the live store and there is nothing to migrate out of.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := appCtx.MigrateLegacy(cmd.Context())
		if err != nil {
			return fmt.Errorf("migrate legacy data: %w", err)
		}

		fmt.Printf("cache entries:   %d\n", summary.Cache)
		fmt.Printf("offline entries: %d\n", summary.Offline)
		fmt.Printf("user records:    %d\n", summary.User)
		if summary.Failed > 0 {
			color.Yellow("%d keys failed and remain in the legacy store; re-run to retry.", summary.Failed)
		}
		color.Green("Migrated %d keys.", summary.Total())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
