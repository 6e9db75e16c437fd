// Package cli provides the command-line interface for chartdrill.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chartdrill/internal/config"
	"chartdrill/internal/logging"
	"chartdrill/internal/store"
)

// Version information
var (
	Version   = "0.3.0"
	BuildDate = "unknown"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger
}

// NewRootCmd creates the root command for the CLI. Configuration is loaded
// before any subcommand runs.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "chartdrill",
		Short: "Chart pattern scanner for OHLCV candle files",
		Long: `chartdrill scans OHLCV candle files for consolidation breakouts, flags and
pivot breakout-retest setups, and reports entry, stop and target levels for
each pattern it finds.

Candle files are CSV with a time,open,high,low,close,volume header and unix
second timestamps in ascending order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/chartdrill)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newRetestCmd(app))
	rootCmd.AddCommand(newZonesCmd(app))
	rootCmd.AddCommand(newPresetsCmd(app))
	rootCmd.AddCommand(newRunsCmd(app))
	rootCmd.AddCommand(newConfigCmd(app))

	return rootCmd
}

func (a *App) init(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("config")
	if dir == "" {
		dir = config.DefaultConfigDir()
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}

	logCfg := cfg.Logging
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logCfg.Level = "debug"
	}
	if w := cmd.ErrOrStderr(); w != os.Stderr {
		logCfg.Writer = w
	}

	a.Config = cfg
	a.ConfigDir = dir
	a.Logger = logging.NewLoggerWithConfig(logCfg)
	a.Logger.Debug().Str("config_dir", dir).Msg("Configuration loaded")
	return nil
}

// openJournal opens the scan journal, creating its directory if needed.
func (a *App) openJournal() (*store.SQLiteStore, error) {
	path := a.Config.Journal.Path
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	journal, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", path).Msg("Journal opened")
	return journal, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Version needs no configuration.
		PersistentPreRun: func(*cobra.Command, []string) {},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, true)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("chartdrill v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View the effective configuration and where it is read from.",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app.Config.UI.ColorEnabled)
			if output.IsStructured() {
				return output.Structured(app.Config)
			}
			return showConfig(output, app.Config)
		},
	}
	show.Flags().Bool("yaml", false, "output in YAML format")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, false)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": app.ConfigDir})
			}
			output.Println(app.ConfigDir)
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Scan")
	output.Printf("  Presets:   %v\n", cfg.Scan.Presets)
	output.Printf("  Retest:    %v\n", cfg.Scan.Retest)
	output.Printf("  Workers:   %d\n", cfg.Scan.Workers)
	output.Println()

	output.Bold("Journal")
	output.Printf("  Path:      %s\n", cfg.Journal.Path)
	output.Printf("  Auto save: %v\n", cfg.Journal.AutoSave)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:     %s\n", cfg.Logging.Level)
	output.Printf("  File:      %v\n", cfg.Logging.File)
	output.Println()

	output.Bold("Detectors")
	for _, name := range cfg.DetectorNames() {
		marker := ""
		if _, ok := cfg.Detectors[name]; ok {
			marker = " (overridden)"
		}
		output.Printf("  %s%s\n", name, marker)
	}
	return nil
}
