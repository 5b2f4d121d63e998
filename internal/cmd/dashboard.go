package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kiratut/v4/internal/app"
)

var (
	dashboardHost string
	dashboardPort int
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Launch the control-surface web panel",
	RunE:  runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	dashboardCmd.Flags().StringVar(&dashboardHost, "host", "", "override web_interface.host")
	dashboardCmd.Flags().IntVar(&dashboardPort, "port", 0, "override web_interface.port")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Bootstrap(ctx, configPath, app.Overrides{Host: dashboardHost, Port: dashboardPort})
	if err != nil {
		return withExitCode(exitError, err)
	}
	defer a.Close()

	fmt.Printf("dashboard: listening on %s:%d\n", a.Config.WebInterface.Host, a.Config.WebInterface.Port)
	if err := a.Server.Run(ctx); err != nil && ctx.Err() == nil {
		return withExitCode(exitError, err)
	}
	return nil
}
