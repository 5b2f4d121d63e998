package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiratut/v4/internal/app"
	"github.com/kiratut/v4/internal/store"
)

var (
	exportFormat    string
	exportLimit     int
	exportDateFrom  string
	exportMinSalary int64
	exportArea      string
)

// export is an external concern (Excel rendering is explicitly out of
// scope); this command only covers the part the core owns: reading
// filtered vacancy rows from Store and writing them out as JSON, brief
// or full projected by --format.
var exportCmd = &cobra.Command{
	Use:   "export OUTPUT",
	Short: "Export persisted vacancies to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", "brief", "brief|full|analytical")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "max rows")
	exportCmd.Flags().StringVar(&exportDateFrom, "date-from", "", "YYYY-MM-DD; only rows created on/after this date")
	exportCmd.Flags().Int64Var(&exportMinSalary, "min-salary", 0, "reserved; not applied (row projection carries no salary field)")
	exportCmd.Flags().StringVar(&exportArea, "area", "", "only rows matching this area name")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.Bootstrap(ctx, configPath, app.Overrides{})
	if err != nil {
		return withExitCode(exitError, err)
	}
	defer a.Close()

	var sinceUnix int64
	if exportDateFrom != "" {
		t, err := time.Parse("2006-01-02", exportDateFrom)
		if err != nil {
			return withExitCode(exitError, fmt.Errorf("invalid --date-from: %w", err))
		}
		sinceUnix = t.Unix()
	}

	rows, err := a.Store.GetRecentVacancies(ctx, exportLimit)
	if err != nil {
		return withExitCode(exitError, err)
	}

	filtered := make([]store.VacancyRow, 0, len(rows))
	for _, r := range rows {
		if sinceUnix > 0 && r.CreatedAt < sinceUnix {
			continue
		}
		if exportArea != "" && r.Area != exportArea {
			continue
		}
		filtered = append(filtered, r)
	}

	out, err := projectExport(filtered, exportFormat)
	if err != nil {
		return withExitCode(exitError, err)
	}

	if err := os.WriteFile(args[0], out, 0o644); err != nil {
		return withExitCode(exitError, err)
	}
	fmt.Printf("exported %d row(s) to %s\n", len(filtered), args[0])
	return nil
}

func projectExport(rows []store.VacancyRow, format string) ([]byte, error) {
	switch format {
	case "full", "analytical":
		return json.MarshalIndent(rows, "", "  ")
	default: // brief
		type brief struct {
			ID    int64  `json:"id"`
			Title string `json:"title"`
			Area  string `json:"area"`
			URL   string `json:"url"`
		}
		out := make([]brief, 0, len(rows))
		for _, r := range rows {
			out = append(out, brief{ID: r.ID, Title: r.Title, Area: r.Area, URL: r.URL})
		}
		return json.MarshalIndent(out, "", "  ")
	}
}
