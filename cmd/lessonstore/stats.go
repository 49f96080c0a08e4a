// ABOUTME: Stats command showing cache occupancy and user activity totals
// ABOUTME: Prints per-namespace cache figures and domain record counts

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sabeel/lessonstore/internal/cache"
	"github.com/sabeel/lessonstore/internal/config"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache and activity statistics",
	Long:  "Show per-namespace cache occupancy and the user's local activity totals.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		header := color.New(color.FgCyan, color.Bold)
		header.Printf("Storage backend: %s\n\n", appCtx.Stores.Backend)

		for _, c := range []*cache.Cache{appCtx.APICache, appCtx.OfflineCache} {
			stats, err := c.Stats(ctx)
			if err != nil {
				return fmt.Errorf("read %s cache stats: %w", c.Name(), err)
			}
			header.Printf("%s cache\n", c.Name())
			fmt.Printf("  items:   %d\n", stats.TotalItems)
			fmt.Printf("  size:    %s\n", humanBytes(stats.TotalSize))
			fmt.Printf("  expired: %d\n\n", stats.ExpiredItems)
		}

		activity, err := appCtx.Activity.Statistics(ctx)
		if err != nil {
			return fmt.Errorf("read activity stats: %w", err)
		}
		header.Println("User activity")
		fmt.Printf("  completed:  %d\n", activity.CompletedCount)
		fmt.Printf("  favorites:  %d\n", activity.FavoriteCount)
		fmt.Printf("  downloads:  %d (%s)\n", activity.DownloadCount, humanBytes(activity.TotalDownloadedBytes))

		if len(activity.RecentActivities) > 0 {
			fmt.Println("\n  recent:")
			for _, rec := range activity.RecentActivities {
				fmt.Printf("    %-10s %s (%s)\n", rec.Type, rec.LessonTitle,
					rec.Timestamp.Format(config.DateFormatShort))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
