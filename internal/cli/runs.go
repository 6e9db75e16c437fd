package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chartdrill/internal/store"
)

func newRunsCmd(app *App) *cobra.Command {
	var filter store.RunFilter

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List saved scans",
		Long:  "List scans saved to the journal with scan --save, newest first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app.Config.UI.ColorEnabled)

			journal, err := app.openJournal()
			if err != nil {
				return err
			}
			defer journal.Close()

			runs, err := journal.ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if runs == nil {
				runs = []store.Run{}
			}

			if output.IsStructured() {
				return output.Structured(runs)
			}

			if len(runs) == 0 {
				output.Info("No saved scans.")
				output.Dim("Tip: chartdrill scan <file> --save records a scan.")
				return nil
			}

			table := NewTable(output, "ID", "Time", "Symbol", "Candles", "Patterns", "Detectors")
			for _, r := range runs {
				table.AddRow(
					r.ID,
					r.CreatedAt.Local().Format(app.Config.UI.TimeFormat),
					r.Symbol,
					fmt.Sprintf("%d", r.Candles),
					fmt.Sprintf("%d", r.Patterns),
					TruncateString(strings.Join(r.Detectors, ","), 30),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.Symbol, "symbol", "", "only runs for this symbol")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "maximum runs to list (0 for all)")
	cmd.Flags().Bool("yaml", false, "output in YAML format")

	cmd.AddCommand(newRunsShowCmd(app))
	return cmd
}

func newRunsShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the patterns and retest signals of a saved scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app.Config.UI.ColorEnabled)
			ctx := cmd.Context()

			journal, err := app.openJournal()
			if err != nil {
				return err
			}
			defer journal.Close()

			run, err := journal.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			list, err := journal.GetPatterns(ctx, run.ID)
			if err != nil {
				return err
			}
			signals, err := journal.GetSignals(ctx, run.ID)
			if err != nil {
				return err
			}

			if output.IsStructured() {
				return output.Structured(map[string]interface{}{
					"run":      run,
					"patterns": list,
					"signals":  signals,
				})
			}

			output.Bold("%s  %s  %d candles", run.Symbol, run.Source, run.Candles)
			output.Dim("  %s  %s", run.ID, run.CreatedAt.Local().Format(app.Config.UI.TimeFormat))
			output.Println()
			if len(list) == 0 {
				output.Info("No patterns.")
			} else {
				renderPatterns(output, nil, list, app.Config.UI.TimeFormat)
			}
			if len(signals) > 0 {
				output.Println()
				output.Dim("%d retest signals saved; use --json to see them.", len(signals))
			}
			return nil
		},
	}
	cmd.Flags().Bool("yaml", false, "output in YAML format")
	return cmd
}
