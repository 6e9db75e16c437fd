// Package config provides configuration management for the chartdrill CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"chartdrill/internal/analysis/patterns"
	apperrors "chartdrill/internal/errors"
	"chartdrill/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. CHARTDRILL_SCAN_WORKERS.
const EnvPrefix = "CHARTDRILL"

// Config holds all application configuration.
type Config struct {
	Scan    ScanConfig        `mapstructure:"scan"`
	Journal JournalConfig     `mapstructure:"journal"`
	Logging logging.LogConfig `mapstructure:"logging"`
	UI      UIConfig          `mapstructure:"ui"`

	// Raw override tables. Detectors maps a detector name to fields of a
	// patterns.BreakoutConfig; a name that is not a preset must set base.
	Detectors map[string]map[string]interface{} `mapstructure:"detectors"`
	Retest    map[string]interface{}            `mapstructure:"retest"`
}

// ScanConfig holds defaults for the scan command.
type ScanConfig struct {
	Presets []string `mapstructure:"presets"`
	Retest  bool     `mapstructure:"retest"`
	Workers int      `mapstructure:"workers"`
}

// JournalConfig holds the scan journal location.
type JournalConfig struct {
	Path     string `mapstructure:"path"`
	AutoSave bool   `mapstructure:"auto_save"`
}

// UIConfig holds output configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	TimeFormat   string `mapstructure:"time_format"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/chartdrill"
	}
	return filepath.Join(home, ".config", "chartdrill")
}

// Load loads config.toml from configDir, writing a template first when the
// file does not exist. If configDir is empty, uses the default config
// directory. CHARTDRILL_* environment variables override file values.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := newViper(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is read.
func Default() *Config {
	cfg := &Config{}
	_ = newViper("").Unmarshal(cfg)
	return cfg
}

func newViper(configDir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	logDefaults := logging.DefaultLogConfig()
	if configDir != "" {
		logDefaults.FilePath = filepath.Join(configDir, "logs", "chartdrill.log")
	}

	v.SetDefault("scan.presets", []string{patterns.PresetStrict})
	v.SetDefault("scan.retest", false)
	v.SetDefault("scan.workers", 4)
	v.SetDefault("journal.path", filepath.Join(configDirOrDefault(configDir), "journal.db"))
	v.SetDefault("journal.auto_save", false)
	v.SetDefault("logging.level", logDefaults.Level)
	v.SetDefault("logging.console", logDefaults.Console)
	v.SetDefault("logging.file", logDefaults.File)
	v.SetDefault("logging.file_path", logDefaults.FilePath)
	v.SetDefault("logging.max_size", logDefaults.MaxSize)
	v.SetDefault("logging.max_backups", logDefaults.MaxBackups)
	v.SetDefault("logging.max_age", logDefaults.MaxAge)
	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.time_format", "2006-01-02 15:04")

	return v
}

func configDirOrDefault(dir string) string {
	if dir == "" {
		return DefaultConfigDir()
	}
	return dir
}

// Validate validates the configuration. Detector tables are checked by
// building every configured detector.
func (c *Config) Validate() error {
	if c.Scan.Workers < 0 {
		return apperrors.NewValidationError("scan.workers", c.Scan.Workers, "must be non-negative")
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return apperrors.NewValidationError("logging.level", c.Logging.Level, "must be debug, info, warn or error")
	}
	if c.Journal.Path == "" {
		return apperrors.NewValidationError("journal.path", c.Journal.Path, "must be set")
	}

	for _, name := range c.Scan.Presets {
		if _, err := c.Detector(name); err != nil {
			return fmt.Errorf("scan.presets: %w", err)
		}
	}
	for name := range c.Detectors {
		if _, err := c.Detector(name); err != nil {
			return fmt.Errorf("detectors.%s: %w", name, err)
		}
	}
	if _, err := c.RetestConfig(); err != nil {
		return fmt.Errorf("retest: %w", err)
	}

	return nil
}

// DetectorNames returns the preset names plus every extra detector defined
// under [detectors], sorted.
func (c *Config) DetectorNames() []string {
	names := patterns.PresetNames()
	for name := range c.Detectors {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Detector returns the breakout configuration for name: the preset of that
// name, or of the table's base key, with the [detectors.<name>] table
// applied on top.
func (c *Config) Detector(name string) (patterns.BreakoutConfig, error) {
	table := c.Detectors[name]

	base := name
	if b, ok := table["base"].(string); ok && b != "" {
		base = b
	}

	cfg, err := patterns.Preset(base)
	if err != nil {
		return patterns.BreakoutConfig{}, err
	}

	if len(table) > 0 {
		overrides := make(map[string]interface{}, len(table))
		for k, v := range table {
			if k != "base" {
				overrides[k] = v
			}
		}
		if err := decode(overrides, &cfg); err != nil {
			return patterns.BreakoutConfig{}, apperrors.NewConfigError(name, "", nil, err.Error())
		}
	}
	cfg.Name = name

	if err := cfg.Validate(); err != nil {
		return patterns.BreakoutConfig{}, err
	}
	return cfg, nil
}

// RetestConfig returns the retest detector configuration with the [retest]
// table applied to the defaults.
func (c *Config) RetestConfig() (patterns.RetestConfig, error) {
	cfg := patterns.DefaultRetestConfig()
	if len(c.Retest) > 0 {
		if err := decode(c.Retest, &cfg); err != nil {
			return patterns.RetestConfig{}, apperrors.NewConfigError(cfg.Name, "", nil, err.Error())
		}
	}
	if err := cfg.Validate(); err != nil {
		return patterns.RetestConfig{}, err
	}
	return cfg, nil
}

func decode(input map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// ToTable converts a detector configuration into nested maps keyed by the
// same names config.toml uses.
func ToTable(cfg interface{}) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if err := mapstructure.Decode(cfg, &out); err != nil {
		return nil, err
	}
	return out, nil
}
