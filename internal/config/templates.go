package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# chartdrill configuration

[scan]
# Breakout presets run by "chartdrill scan" when --preset is not given:
# strict, relaxed, compression, flag, or any name defined under [detectors]
presets = ["strict"]
# Also run the pivot breakout-retest detector
retest = false
# Detectors scanned concurrently
workers = 4

[journal]
# SQLite file for saved scans (default: <config dir>/journal.db)
# path = ""
# Save every scan without passing --save
auto_save = false

[logging]
# debug, info, warn, error
level = "info"
console = true
# Rotating log file
file = false
max_size = 50
max_backups = 5
max_age = 30

[ui]
color_enabled = true
time_format = "2006-01-02 15:04"

# Retest detector overrides, e.g.
# [retest]
# touch_mode = "CLOSE"
# max_bars_to_wait_retest = 40

# Breakout detector overrides. A table named after a preset changes that
# preset; any other name needs a base preset, e.g.
# [detectors.tight]
# base = "compression"
# [detectors.tight.zone]
# max_range_pct = 0.01
# [detectors.tight.assembler]
# tick_size = 0.01
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
