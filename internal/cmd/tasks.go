package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"os"

	"github.com/spf13/cobra"

	"github.com/kiratut/v4/internal/app"
	"github.com/kiratut/v4/internal/store"
)

var (
	tasksStatus string
	tasksLimit  int
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks in the queue",
	RunE:  runTasks,
}

var taskInfoCmd = &cobra.Command{
	Use:   "task-info ID",
	Short: "Show full detail for one task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskInfo,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(taskInfoCmd)
	tasksCmd.Flags().StringVar(&tasksStatus, "status", "", "comma-separated status filter")
	tasksCmd.Flags().IntVar(&tasksLimit, "limit", 50, "max rows")
}

func runTasks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.Bootstrap(ctx, configPath, app.Overrides{})
	if err != nil {
		return withExitCode(exitError, err)
	}
	defer a.Close()

	var statuses []store.TaskStatus
	if tasksStatus != "" {
		for _, s := range strings.Split(tasksStatus, ",") {
			statuses = append(statuses, store.TaskStatus(strings.TrimSpace(s)))
		}
	}

	rows, err := a.Store.GetTasks(ctx, statuses, tasksLimit, 0)
	if err != nil {
		return withExitCode(exitError, err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tCREATED_AT")
	for _, t := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", t.ID, t.Type, t.Status, t.CreatedAt)
	}
	return tw.Flush()
}

func runTaskInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.Bootstrap(ctx, configPath, app.Overrides{})
	if err != nil {
		return withExitCode(exitError, err)
	}
	defer a.Close()

	task, err := a.Store.GetTask(ctx, args[0])
	if err != nil {
		return withExitCode(exitError, err)
	}
	if task == nil {
		return withExitCode(exitError, fmt.Errorf("task %s not found", args[0]))
	}

	b, _ := json.MarshalIndent(task, "", "  ")
	fmt.Println(string(b))
	return nil
}
