package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kiratut/v4/internal/app"
)

var (
	loadFilterID    string
	loadMaxPages    int
	loadScheduleAt  int64
)

var loadVacanciesCmd = &cobra.Command{
	Use:   "load-vacancies",
	Short: "Enqueue one or more load_vacancies tasks",
	RunE:  runLoadVacancies,
}

func init() {
	rootCmd.AddCommand(loadVacanciesCmd)
	loadVacanciesCmd.Flags().StringVar(&loadFilterID, "filter-id", "", "limit to a single filter id (default: all active filters)")
	loadVacanciesCmd.Flags().IntVar(&loadMaxPages, "max-pages", 200, "upper bound on pages fetched")
	loadVacanciesCmd.Flags().Int64Var(&loadScheduleAt, "schedule-at", 0, "unix timestamp to defer the run until (default: immediate)")
}

func runLoadVacancies(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.Bootstrap(ctx, configPath, app.Overrides{})
	if err != nil {
		return withExitCode(exitError, err)
	}
	defer a.Close()

	all, err := a.Filters.Load()
	if err != nil {
		return withExitCode(exitError, err)
	}

	var scheduleAt *int64
	if loadScheduleAt > 0 {
		scheduleAt = &loadScheduleAt
	}

	var created []string
	for _, f := range all {
		if loadFilterID != "" && f.ID != loadFilterID {
			continue
		}
		if loadFilterID == "" && !f.Active {
			continue
		}

		params, _ := json.Marshal(map[string]any{"filter_id": f.ID, "filter": f, "max_pages": loadMaxPages})
		id, err := a.Dispatcher.AddTask(ctx, uuid.NewString(), "load_vacancies", params, scheduleAt, 1800)
		if err != nil {
			return withExitCode(exitError, err)
		}
		created = append(created, id)
	}

	if len(created) == 0 {
		fmt.Println("no matching filters; nothing enqueued")
		return withExitCode(exitWarnings, fmt.Errorf("no filters matched"))
	}

	for _, id := range created {
		fmt.Println(id)
	}
	return nil
}
