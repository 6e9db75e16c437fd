package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"chartdrill/internal/analysis/patterns"
	"chartdrill/internal/feed"
	"chartdrill/internal/logging"
)

// zonesReport is the structured output of the zones command.
type zonesReport struct {
	Symbol    string              `json:"symbol" yaml:"symbol"`
	Detector  string              `json:"detector" yaml:"detector"`
	Candles   int                 `json:"candles" yaml:"candles"`
	Found     int                 `json:"found" yaml:"found"`
	Zones     []patterns.Zone     `json:"zones" yaml:"zones"`
	Breakouts []patterns.Breakout `json:"breakouts" yaml:"breakouts"`
}

func newZonesCmd(app *App) *cobra.Command {
	var (
		preset string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "zones <candles.csv>",
		Short: "List consolidation zones and breakouts before gap filtering",
		Long: `Run one breakout detector in diagnostic mode: list the highest-pressure
windows that pass the zone tests and every confirmed breakout, including the
ones the minimum gap would drop from a scan.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app.Config.UI.ColorEnabled)

			if preset == "" && len(app.Config.Scan.Presets) > 0 {
				preset = app.Config.Scan.Presets[0]
			}
			cfg, err := app.Config.Detector(preset)
			if err != nil {
				return err
			}

			candles, err := feed.LoadFile(args[0])
			if err != nil {
				return err
			}
			symbol := feed.SymbolFromPath(args[0])

			det, err := patterns.NewBreakoutDetector(cfg,
				patterns.WithObserver(patterns.NewLogObserver(logging.WithSymbol(app.Logger, symbol))))
			if err != nil {
				return err
			}

			zones := det.Zones(candles)
			report := zonesReport{
				Symbol:    symbol,
				Detector:  cfg.Name,
				Candles:   len(candles),
				Found:     len(zones),
				Zones:     topZones(zones, limit),
				Breakouts: det.Breakouts(candles),
			}

			if output.IsStructured() {
				return output.Structured(report)
			}

			output.Bold("%s  %s  %d candles  %d zones", symbol, cfg.Name, len(candles), len(zones))
			if len(report.Zones) == 0 {
				output.Info("No zones found.")
				return nil
			}

			table := NewTable(output, "Start", "End", "Bars", "High", "Low", "Range %", "Touches", "Pressure")
			for _, z := range report.Zones {
				table.AddRow(
					fmt.Sprintf("%d", z.StartIndex),
					fmt.Sprintf("%d", z.EndIndex),
					fmt.Sprintf("%d", z.Len()),
					FormatPrice(z.High),
					FormatPrice(z.Low),
					fmt.Sprintf("%.2f", z.RangePct*100),
					fmt.Sprintf("%d/%d", z.HighTouches, z.LowTouches),
					fmt.Sprintf("%.1f", z.Pressure),
				)
			}
			table.Render()

			output.Println()
			if len(report.Breakouts) == 0 {
				output.Dim("no confirmed breakouts")
				return nil
			}
			bt := NewTable(output, "Bar", "Dir", "Zone", "Close", "Level", "Quality", "Flag")
			for _, b := range report.Breakouts {
				bt.AddRow(
					fmt.Sprintf("%d", b.Index),
					output.Direction(b.Direction),
					fmt.Sprintf("%d-%d", b.Zone.StartIndex, b.Zone.EndIndex),
					FormatPrice(b.Close),
					FormatPrice(b.Level),
					output.Quality(b.Quality),
					yesNo(b.IsFlag),
				)
			}
			bt.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&preset, "preset", "p", "", "breakout preset or configured detector (default: first scan preset)")
	cmd.Flags().IntVar(&limit, "limit", 20, "zones to list, highest pressure first (0 for all)")
	cmd.Flags().Bool("yaml", false, "output in YAML format")

	return cmd
}

// topZones orders zones by pressure, then by end index, and keeps the
// first limit of them.
func topZones(zones []patterns.Zone, limit int) []patterns.Zone {
	out := make([]patterns.Zone, len(zones))
	copy(out, zones)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pressure != out[j].Pressure {
			return out[i].Pressure > out[j].Pressure
		}
		return out[i].EndIndex < out[j].EndIndex
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
