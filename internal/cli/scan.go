package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chartdrill/internal/analysis"
	"chartdrill/internal/analysis/patterns"
	"chartdrill/internal/analysis/scan"
	"chartdrill/internal/feed"
	"chartdrill/internal/logging"
	"chartdrill/internal/metrics"
	"chartdrill/internal/models"
	"chartdrill/internal/store"
)

// scanReport is the structured output of the scan command.
type scanReport struct {
	Symbol   string             `json:"symbol" yaml:"symbol"`
	Source   string             `json:"source" yaml:"source"`
	Candles  int                `json:"candles" yaml:"candles"`
	RunID    string             `json:"runId,omitempty" yaml:"run_id,omitempty"`
	Results  []scan.Result      `json:"results" yaml:"results"`
	Patterns []analysis.Pattern `json:"patterns" yaml:"patterns"`
	Stats    []metrics.Sample   `json:"stats,omitempty" yaml:"stats,omitempty"`
}

type scanOptions struct {
	presets []string
	retest  bool
	save    bool
	stats   bool
	symbol  string
	workers int
}

func newScanCmd(app *App) *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan <candles.csv>",
		Short: "Scan a candle file for patterns",
		Long: `Run breakout presets and optionally the retest detector over one candle file.
Detectors run concurrently; patterns are listed in bar order.`,
		Example: `  chartdrill scan btc.csv
  chartdrill scan btc.csv -p strict -p flag --retest
  chartdrill scan btc.csv --retest --save --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("preset") {
				opts.presets = app.Config.Scan.Presets
			}
			if !cmd.Flags().Changed("retest") {
				opts.retest = app.Config.Scan.Retest
			}
			if !cmd.Flags().Changed("workers") {
				opts.workers = app.Config.Scan.Workers
			}
			opts.save = opts.save || app.Config.Journal.AutoSave
			return runScan(cmd.Context(), cmd, app, args[0], opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.presets, "preset", "p", nil, "breakout preset or configured detector (repeatable)")
	cmd.Flags().BoolVar(&opts.retest, "retest", false, "also run the breakout-retest detector")
	cmd.Flags().BoolVar(&opts.save, "save", false, "save the results to the journal")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "print detector counters")
	cmd.Flags().StringVar(&opts.symbol, "symbol", "", "symbol label (default: file name)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "detectors run at once")
	cmd.Flags().Bool("yaml", false, "output in YAML format")

	return cmd
}

func runScan(ctx context.Context, cmd *cobra.Command, app *App, path string, opts *scanOptions) error {
	output := NewOutput(cmd, app.Config.UI.ColorEnabled)

	candles, err := feed.LoadFile(path)
	if err != nil {
		return err
	}

	symbol := opts.symbol
	if symbol == "" {
		symbol = feed.SymbolFromPath(path)
	}
	logger := logging.WithSymbol(app.Logger, symbol)

	recorder := metrics.New()
	observer := patterns.MultiObserver{patterns.NewLogObserver(logger), recorder}

	runner := scan.NewRunner(opts.workers, logger)
	for _, name := range opts.presets {
		cfg, err := app.Config.Detector(name)
		if err != nil {
			return err
		}
		det, err := patterns.NewBreakoutDetector(cfg, patterns.WithObserver(observer))
		if err != nil {
			return err
		}
		runner.Register(det)
	}

	var retest *patterns.RetestDetector
	if opts.retest {
		cfg, err := app.Config.RetestConfig()
		if err != nil {
			return err
		}
		retest, err = patterns.NewRetestDetector(cfg, patterns.WithObserver(observer))
		if err != nil {
			return err
		}
		runner.Register(retest)
	}

	if len(runner.Detectors()) == 0 {
		return fmt.Errorf("no detectors selected: pass --preset or --retest")
	}

	start := time.Now()
	results, runErr := runner.Run(ctx, candles)
	merged := scan.Merge(results)
	logging.LogScan(logger, path, len(candles), len(merged), time.Since(start), runErr)
	for _, p := range merged {
		logging.LogPattern(logging.WithDetector(logger, p.Metadata.Detector), p)
	}

	report := scanReport{
		Symbol:   symbol,
		Source:   path,
		Candles:  len(candles),
		Results:  results,
		Patterns: merged,
	}

	if opts.save {
		var signals []patterns.RetestSignal
		if retest != nil {
			signals = retest.Signals(candles)
		}
		runID, err := saveScan(ctx, app, &report, runner.Detectors(), signals)
		if err != nil {
			return err
		}
		report.RunID = runID
		runLogger := logging.WithRunID(logger, runID)
		runLogger.Info().Msg("Scan saved to journal")
	}

	if opts.stats {
		samples, err := recorder.Snapshot()
		if err != nil {
			return err
		}
		report.Stats = samples
	}

	if output.IsStructured() {
		if err := output.Structured(report); err != nil {
			return err
		}
		return runErr
	}

	renderScan(output, app, candles, report)
	return runErr
}

func saveScan(ctx context.Context, app *App, report *scanReport, detectors []string, signals []patterns.RetestSignal) (string, error) {
	journal, err := app.openJournal()
	if err != nil {
		return "", err
	}
	defer journal.Close()

	run := &store.Run{
		Symbol:    report.Symbol,
		Source:    report.Source,
		Detectors: detectors,
		Candles:   report.Candles,
		Patterns:  len(report.Patterns),
	}
	if err := journal.SaveRun(ctx, run); err != nil {
		return "", err
	}
	if err := journal.SavePatterns(ctx, run.ID, report.Patterns); err != nil {
		return "", err
	}
	if err := journal.SaveSignals(ctx, run.ID, signals); err != nil {
		return "", err
	}
	return run.ID, nil
}

func renderScan(output *Output, app *App, candles []models.Candle, report scanReport) {
	output.Bold("%s  %d candles", report.Symbol, report.Candles)
	for _, res := range report.Results {
		if res.Err != nil {
			output.Warning("  %-12s failed: %v", res.Detector, res.Err)
			continue
		}
		output.Dim("  %-12s %d patterns in %s", res.Detector, len(res.Patterns), FormatDuration(res.Elapsed))
	}
	output.Println()

	if len(report.Patterns) == 0 {
		output.Info("No patterns found.")
	} else {
		renderPatterns(output, candles, report.Patterns, app.Config.UI.TimeFormat)
	}

	if report.RunID != "" {
		output.Println()
		output.Success("Saved run %s", report.RunID)
	}

	if len(report.Stats) > 0 {
		output.Println()
		output.Bold("Counters")
		table := NewTable(output, "Metric", "Value")
		for _, s := range report.Stats {
			table.AddRow(s.Key(), fmt.Sprintf("%g", s.Value))
		}
		table.Render()
	}
}

func renderPatterns(output *Output, candles []models.Candle, list []analysis.Pattern, layout string) {
	table := NewTable(output, "Detector", "Type", "Dir", "Start", "End", "Entry", "Stop", "Target", "R:R", "Q")
	for _, p := range list {
		typ := string(p.Type)
		if p.Metadata.IsReversal {
			typ += " (rev)"
		}
		table.AddRow(
			TruncateString(p.Metadata.Detector, 12),
			typ,
			output.Direction(p.Direction),
			fmt.Sprintf("%d", p.StartIndex),
			FormatBar(candles, p.EndIndex, layout),
			FormatPrice(p.ExpectedEntry),
			FormatPrice(p.StopLoss),
			FormatPrice(p.ExpectedExit),
			FormatRiskReward(p.RiskReward()),
			output.Quality(p.Metadata.Quality),
		)
	}
	table.Render()
}
