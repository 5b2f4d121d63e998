package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kiratut/v4/internal/app"
)

var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "List configured search filters",
	RunE:  runFilters,
}

func init() {
	rootCmd.AddCommand(filtersCmd)
}

func runFilters(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.Bootstrap(ctx, configPath, app.Overrides{})
	if err != nil {
		return withExitCode(exitError, err)
	}
	defer a.Close()

	list, err := a.Filters.Load()
	if err != nil {
		return withExitCode(exitError, err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tTYPE")
	for _, f := range list {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n", f.ID, f.Name, f.Active, f.Type)
	}
	return tw.Flush()
}
