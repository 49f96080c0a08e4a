// ABOUTME: Clean command removing expired entries from the response caches
// ABOUTME: Runs the same sweep the background maintenance task performs

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sabeel/lessonstore/internal/cache"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove expired cache entries",
	Long:  "Sweep the API and offline caches, deleting every entry past its TTL.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		total := 0
		for _, c := range []*cache.Cache{appCtx.APICache, appCtx.OfflineCache} {
			removed, err := c.CleanExpired(ctx)
			if err != nil {
				return fmt.Errorf("sweep %s cache: %w", c.Name(), err)
			}
			fmt.Printf("%s cache: removed %d expired entries\n", c.Name(), removed)
			total += removed
		}

		color.Green("Done. %d entries removed.", total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
