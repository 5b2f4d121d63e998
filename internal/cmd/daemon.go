package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kiratut/v4/internal/app"
)

var daemonBackground bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Control the background scheduler_daemon process",
}

var daemonStartCmd = &cobra.Command{Use: "start", Short: "Start the daemon", RunE: runDaemonStart}
var daemonStopCmd = &cobra.Command{Use: "stop", Short: "Stop the daemon", RunE: runDaemonStop}
var daemonStatusCmd = &cobra.Command{Use: "status", Short: "Show daemon status", RunE: runStatus}
var daemonRestartCmd = &cobra.Command{Use: "restart", Short: "Restart the daemon", RunE: runDaemonRestart}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonStatusCmd, daemonRestartCmd)
	for _, c := range []*cobra.Command{daemonStartCmd, daemonRestartCmd} {
		c.Flags().BoolVar(&daemonBackground, "background", false, "re-exec detached and return immediately")
	}
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	if daemonBackground {
		return spawnBackground()
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Bootstrap(ctx, configPath, app.Overrides{})
	if err != nil {
		return withExitCode(exitError, err)
	}
	defer a.Close()

	if err := a.WritePIDFile(ctx); err != nil {
		return withExitCode(exitError, err)
	}
	a.Log.Info("daemon: starting")
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		return withExitCode(exitError, err)
	}
	return nil
}

// spawnBackground re-execs the current binary's "start" command as a child
// process with no stdio attached, then returns without waiting for it. The
// child is not moved into a new session or process group.
func spawnBackground() error {
	self, err := os.Executable()
	if err != nil {
		return withExitCode(exitError, err)
	}
	c := exec.Command(self, "start", "--config", configPath)
	if err := c.Start(); err != nil {
		return withExitCode(exitError, err)
	}
	fmt.Printf("daemon: started pid=%d\n", c.Process.Pid)
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.Bootstrap(ctx, configPath, app.Overrides{})
	if err != nil {
		return withExitCode(exitError, err)
	}
	defer a.Close()

	if err := a.Store.KillProcess(ctx, "scheduler_daemon"); err != nil {
		return withExitCode(exitError, err)
	}
	fmt.Println("daemon: stop signal sent")
	return nil
}

func runDaemonRestart(cmd *cobra.Command, args []string) error {
	// Stopping an already-stopped daemon is not fatal to a restart.
	_ = runDaemonStop(cmd, args)
	return runDaemonStart(cmd, args)
}
