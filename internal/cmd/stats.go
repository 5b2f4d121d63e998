package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiratut/v4/internal/app"
)

var (
	statsDays   int
	statsFormat string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task/vacancy statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "days of change-history to include")
	statsCmd.Flags().StringVar(&statsFormat, "format", "table", "table|json")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.Bootstrap(ctx, configPath, app.Overrides{})
	if err != nil {
		return withExitCode(exitError, err)
	}
	defer a.Close()

	now := time.Now().Unix()
	s, err := a.Store.GetStats(ctx, now)
	if err != nil {
		return withExitCode(exitError, err)
	}
	changes, err := a.Store.GetCombinedChangesStats(ctx, now, statsDays)
	if err != nil {
		return withExitCode(exitError, err)
	}

	if statsFormat == "json" {
		b, _ := json.MarshalIndent(map[string]any{"stats": s, "changes": changes}, "", "  ")
		fmt.Println(string(b))
		return nil
	}

	fmt.Printf("vacancies: total=%d today=%d done=%d added_last_load=%d\n",
		s.VacanciesTotal, s.VacanciesToday, s.VacanciesDone, s.AddedLastLoad)
	for status, n := range s.TasksByStatus24h {
		fmt.Printf("tasks[%s]=%d\n", status, n)
	}
	for _, c := range changes {
		fmt.Printf("%s new=%d changed=%d\n", time.Unix(c.DayStart, 0).Format("2006-01-02"), c.New, c.Changed)
	}
	return nil
}
