package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chartdrill/internal/analysis/patterns"
	"chartdrill/internal/feed"
	"chartdrill/internal/logging"
)

// retestReport is the structured output of the retest command.
type retestReport struct {
	Symbol  string                  `json:"symbol" yaml:"symbol"`
	Candles int                     `json:"candles" yaml:"candles"`
	Counts  map[string]int          `json:"counts" yaml:"counts"`
	Signals []patterns.RetestSignal `json:"signals" yaml:"signals"`
}

func newRetestCmd(app *App) *cobra.Command {
	var kinds []string

	cmd := &cobra.Command{
		Use:   "retest <candles.csv>",
		Short: "Show every retest outcome, including rejections",
		Long: `Run the pivot breakout-retest detector and list every tracked breakout with
its terminal state: CONFIRMED, REJECTED_INVALIDATION or REJECTED_TIMEOUT.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app.Config.UI.ColorEnabled)

			candles, err := feed.LoadFile(args[0])
			if err != nil {
				return err
			}
			symbol := feed.SymbolFromPath(args[0])

			cfg, err := app.Config.RetestConfig()
			if err != nil {
				return err
			}
			det, err := patterns.NewRetestDetector(cfg,
				patterns.WithObserver(patterns.NewLogObserver(logging.WithSymbol(app.Logger, symbol))))
			if err != nil {
				return err
			}

			signals := filterSignals(det.Signals(candles), kinds)
			report := retestReport{
				Symbol:  symbol,
				Candles: len(candles),
				Counts:  map[string]int{},
				Signals: signals,
			}
			for _, s := range signals {
				report.Counts[string(s.Kind)]++
			}

			if output.IsStructured() {
				return output.Structured(report)
			}

			output.Bold("%s  %d candles  %d tracked breakouts", symbol, len(candles), len(signals))
			if len(signals) == 0 {
				output.Info("No retest setups found.")
				return nil
			}

			table := NewTable(output, "Kind", "Side", "Level", "Pivot", "Breakout", "Retest", "Confirm", "Reject", "Touch", "Rev")
			for _, s := range signals {
				table.AddRow(
					kindLabel(output, s.Kind),
					string(s.Side),
					FormatPrice(s.Level),
					fmt.Sprintf("%d", s.PivotIndex),
					fmt.Sprintf("%d", s.BreakoutIndex),
					FormatOptionalIndex(s.RetestIndex),
					FormatOptionalIndex(s.ConfirmIndex),
					FormatOptionalIndex(s.RejectIndex),
					string(s.TouchType),
					yesNo(s.IsReversal),
				)
			}
			table.Render()

			output.Println()
			output.Dim("confirmed %d  invalidated %d  timed out %d",
				report.Counts[string(patterns.StateConfirmed)],
				report.Counts[string(patterns.StateRejectedInvalidation)],
				report.Counts[string(patterns.StateRejectedTimeout)])
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "only show these outcomes (confirmed, invalidation, timeout)")
	cmd.Flags().Bool("yaml", false, "output in YAML format")

	return cmd
}

func filterSignals(signals []patterns.RetestSignal, kinds []string) []patterns.RetestSignal {
	if len(kinds) == 0 {
		return signals
	}
	out := []patterns.RetestSignal{}
	for _, s := range signals {
		for _, k := range kinds {
			if strings.Contains(strings.ToUpper(string(s.Kind)), strings.ToUpper(k)) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func kindLabel(output *Output, kind patterns.RetestState) string {
	switch kind {
	case patterns.StateConfirmed:
		return output.ColoredString(ColorGreen, string(kind))
	case patterns.StateRejectedInvalidation:
		return output.ColoredString(ColorRed, string(kind))
	default:
		return output.ColoredString(ColorDim, string(kind))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
