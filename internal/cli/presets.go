package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"chartdrill/internal/config"
)

func newPresetsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets [name]",
		Short: "List detector presets or show one in full",
		Long: `Without arguments, list the breakout presets and configured detectors with
their main thresholds. With a name, print that detector's full configuration
using the same keys as config.toml. The name "retest" shows the retest detector.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app.Config.UI.ColorEnabled)

			if len(args) == 1 {
				return showPreset(output, app, args[0])
			}

			names := app.Config.DetectorNames()
			if output.IsStructured() {
				all := make(map[string]interface{}, len(names))
				for _, name := range names {
					cfg, err := app.Config.Detector(name)
					if err != nil {
						return err
					}
					table, err := config.ToTable(cfg)
					if err != nil {
						return err
					}
					all[name] = table
				}
				return output.Structured(all)
			}

			table := NewTable(output, "Name", "Window", "Range %", "Pressure", "Volume x", "Move x", "Flags", "Gap")
			for _, name := range names {
				cfg, err := app.Config.Detector(name)
				if err != nil {
					return err
				}
				volume := fmt.Sprintf("%.2f", cfg.Confirm.VolumeMult)
				if cfg.Confirm.SkipVolume {
					volume = "off"
				}
				table.AddRow(
					name,
					fmt.Sprintf("%d-%d", cfg.Zone.MinWindow, cfg.Zone.MaxWindow),
					fmt.Sprintf("%.2f", cfg.Zone.MaxRangePct*100),
					fmt.Sprintf("%.0f", cfg.Zone.MinPressure),
					volume,
					fmt.Sprintf("%.1f", cfg.Confirm.MeasuredMove),
					yesNo(cfg.Flag.DetectFlags),
					fmt.Sprintf("%d", cfg.Assembler.MinGap),
				)
			}
			table.Render()
			output.Println()
			output.Dim("chartdrill presets <name> shows every field; retest shows the retest detector.")
			return nil
		},
	}

	cmd.Flags().Bool("yaml", false, "output in YAML format")
	return cmd
}

func showPreset(output *Output, app *App, name string) error {
	var cfg interface{}
	var err error
	if name == "retest" {
		cfg, err = app.Config.RetestConfig()
	} else {
		cfg, err = app.Config.Detector(name)
	}
	if err != nil {
		return err
	}

	table, err := config.ToTable(cfg)
	if err != nil {
		return err
	}
	if output.IsJSON() {
		return output.JSON(table)
	}
	return output.YAML(table)
}
