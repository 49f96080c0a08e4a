// ABOUTME: Clear command wiping a cache namespace or all user data
// ABOUTME: Destructive operations gated behind a --force flag

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var clearForce bool

var clearCmd = &cobra.Command{
	Use:   "clear [api|offline|user|all]",
	Short: "Wipe a storage namespace",
	Long: `Wipe the selected namespace:

  api      the API response cache
  offline  the offline content cache
  user     completion/favorite/download records and the activity log
  all      everything above

Clearing user data or all data requires --force.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"api", "offline", "user", "all"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		target := args[0]

		if (target == "user" || target == "all") && !clearForce {
			return fmt.Errorf("clearing %s data is destructive; re-run with --force", target)
		}

		switch target {
		case "api":
			if err := appCtx.APICache.Clear(ctx); err != nil {
				return fmt.Errorf("clear api cache: %w", err)
			}
		case "offline":
			if err := appCtx.OfflineCache.Clear(ctx); err != nil {
				return fmt.Errorf("clear offline cache: %w", err)
			}
		case "user":
			if err := clearUserData(cmd); err != nil {
				return err
			}
		case "all":
			if err := appCtx.APICache.Clear(ctx); err != nil {
				return fmt.Errorf("clear api cache: %w", err)
			}
			if err := appCtx.OfflineCache.Clear(ctx); err != nil {
				return fmt.Errorf("clear offline cache: %w", err)
			}
			if err := clearUserData(cmd); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown namespace %q", target)
		}

		color.Green("Cleared %s.", target)
		return nil
	},
}

func clearUserData(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if err := appCtx.Downloads.Clear(ctx); err != nil {
		return fmt.Errorf("clear downloads: %w", err)
	}
	if err := appCtx.Activity.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear activity records: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(clearCmd)
	clearCmd.Flags().BoolVar(&clearForce, "force", false, "confirm destructive clear")
}
