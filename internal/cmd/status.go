package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiratut/v4/internal/app"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a one-line daemon status summary",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.Bootstrap(ctx, configPath, app.Overrides{})
	if err != nil {
		return withExitCode(exitError, err)
	}
	defer a.Close()

	proc, err := a.Store.GetProcess(ctx, "scheduler_daemon")
	if err != nil {
		return withExitCode(exitError, err)
	}
	if proc == nil {
		fmt.Println("daemon: not running")
		return nil
	}
	fmt.Printf("daemon: %s pid=%d host=%s port=%d\n", proc.Status, proc.PID, proc.Host, proc.Port)
	return nil
}
