package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiratut/v4/internal/app"
	"github.com/kiratut/v4/internal/sysmetrics"
)

var (
	systemDetailed    bool
	systemAlertsOnly  bool
	systemJSONFormat  bool
)

var systemCmd = &cobra.Command{
	Use:   "system",
	Short: "Sample and report current CPU/memory/disk health",
	RunE:  runSystem,
}

func init() {
	rootCmd.AddCommand(systemCmd)
	systemCmd.Flags().BoolVar(&systemDetailed, "detailed", false, "include DB size and raw sample")
	systemCmd.Flags().BoolVar(&systemAlertsOnly, "alerts-only", false, "print only threshold breaches")
	systemCmd.Flags().BoolVar(&systemJSONFormat, "json-format", false, "emit JSON instead of text")
}

func runSystem(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.Bootstrap(ctx, configPath, app.Overrides{})
	if err != nil {
		return withExitCode(exitError, err)
	}
	defer a.Close()

	sample, err := sysmetrics.Collect(a.Config.Database.Path)
	if err != nil {
		return withExitCode(exitError, err)
	}
	thresholds := sysmetrics.Thresholds{
		CPUPercent:  float64(a.Config.SystemMonitoring.CPUThreshold),
		MemPercent:  float64(a.Config.SystemMonitoring.MemThreshold),
		DiskPercent: float64(a.Config.SystemMonitoring.DiskThreshold),
	}
	alerts := sysmetrics.CheckThresholds(sample, thresholds)

	if systemJSONFormat {
		out := map[string]any{"alerts": alerts}
		if systemDetailed || !systemAlertsOnly {
			out["sample"] = sample
		}
		b, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(b))
		return exitIfAlerts(alerts)
	}

	if !systemAlertsOnly {
		fmt.Printf("cpu=%.1f%% mem=%.1f%% disk=%.1f%%", sample.CPUPercent, sample.MemPercent, sample.DiskPercent)
		if systemDetailed {
			fmt.Printf(" db_size_mb=%.1f", sample.DBSizeMB)
		}
		fmt.Println()
	}
	for _, al := range alerts {
		fmt.Printf("ALERT %s=%.1f%% (limit %.1f%%)\n", al.Metric, al.Percent, al.Limit)
	}
	return exitIfAlerts(alerts)
}

func exitIfAlerts(alerts []sysmetrics.Alert) error {
	if len(alerts) > 0 {
		return withExitCode(exitWarnings, fmt.Errorf("%d threshold(s) exceeded", len(alerts)))
	}
	return nil
}
