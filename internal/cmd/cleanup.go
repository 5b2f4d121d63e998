package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiratut/v4/internal/app"
)

var (
	cleanupType   string
	cleanupDays   int
	cleanupDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete terminal tasks older than N days and vacuum the database",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().StringVar(&cleanupType, "type", "all", "files|logs|archives|all; only echoed in the dry-run report, no files, logs or archives are removed")
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "retention window in days")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "report what would be deleted without deleting")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.Bootstrap(ctx, configPath, app.Overrides{})
	if err != nil {
		return withExitCode(exitError, err)
	}
	defer a.Close()

	cutoff := time.Now().Add(-time.Duration(cleanupDays) * 24 * time.Hour).Unix()

	if cleanupDryRun {
		rows, err := a.Store.GetTasks(ctx, nil, 100000, 0)
		if err != nil {
			return withExitCode(exitError, err)
		}
		var candidates int
		for _, t := range rows {
			if t.FinishedAt != nil && *t.FinishedAt < cutoff {
				candidates++
			}
		}
		fmt.Printf("dry-run: %d task(s) would be deleted (type=%s, days=%d)\n", candidates, cleanupType, cleanupDays)
		return nil
	}

	deleted, err := a.Store.DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		return withExitCode(exitError, err)
	}
	if err := a.Store.Vacuum(ctx); err != nil {
		a.Log.Warn("cleanup: vacuum failed")
	}
	fmt.Printf("deleted %d task(s) older than %d day(s)\n", deleted, cleanupDays)
	return nil
}
