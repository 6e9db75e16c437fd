package patterns

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"chartdrill/internal/analysis/indicators"
	apperrors "chartdrill/internal/errors"
)

var validate = validator.New()

// Zero-valued fields take the value in their default tag, so an explicit 0
// cannot be expressed for fields whose default is non-zero. Booleans are
// phrased so that false is the default.

// ZoneConfig holds the consolidation window thresholds.
type ZoneConfig struct {
	// Smallest and largest window, in bars, inclusive.
	MinWindow int `mapstructure:"min_window" default:"10" validate:"gte=3,ltefield=MaxWindow"`
	MaxWindow int `mapstructure:"max_window" default:"30" validate:"gte=3,lte=500"`
	// Window length that scores full duration points.
	OptimalWindow int `mapstructure:"optimal_window" default:"20" validate:"gte=1"`
	// (max high - min low) / midpoint ceiling.
	MaxRangePct float64 `mapstructure:"max_range_pct" default:"0.03" validate:"gt=0,lt=1"`

	ATRPeriod    int                  `mapstructure:"atr_period" default:"14" validate:"gte=1,lte=200"`
	ATRSmoothing indicators.Smoothing `mapstructure:"atr_smoothing" default:"wilder" validate:"oneof=wilder simple"`
	// Largest allowed ATR slope over the window, as a fraction of mean ATR per bar.
	ATRSlopeEpsilon float64 `mapstructure:"atr_slope_epsilon" default:"0.01" validate:"gte=0"`

	// Touch band, as a fraction of the window range.
	TouchTolerance float64 `mapstructure:"touch_tolerance" default:"0.1" validate:"gt=0,lt=0.5"`
	MinTouches     int     `mapstructure:"min_touches" default:"2" validate:"gte=1"`
	MinSymmetry    float64 `mapstructure:"min_symmetry" default:"0.5" validate:"gte=0,lt=1"`
	// |close slope| / mean close ceiling, per bar.
	MaxDrift float64 `mapstructure:"max_drift" default:"0.002" validate:"gt=0"`

	MinPressure float64         `mapstructure:"min_pressure" default:"40" validate:"gte=0,lte=100"`
	Weights     PressureWeights `mapstructure:"weights"`
}

// PressureWeights are the maximum points each pressure component
// contributes. They must sum to 100.
type PressureWeights struct {
	Range          float64 `mapstructure:"range" default:"30" validate:"gte=0"`
	Duration       float64 `mapstructure:"duration" default:"20" validate:"gte=0"`
	ATRContraction float64 `mapstructure:"atr_contraction" default:"20" validate:"gte=0"`
	VolumeDecline  float64 `mapstructure:"volume_decline" default:"15" validate:"gte=0"`
	Symmetry       float64 `mapstructure:"symmetry" default:"15" validate:"gte=0"`
}

// Total returns the sum of all weights.
func (w PressureWeights) Total() float64 {
	return w.Range + w.Duration + w.ATRContraction + w.VolumeDecline + w.Symmetry
}

// ConfirmConfig holds the breakout confirmation thresholds.
type ConfirmConfig struct {
	// Bars after the zone end searched for the breakout candle.
	Lookahead int `mapstructure:"lookahead" default:"5" validate:"gte=1,lte=20"`
	// Breakout candle range must be at least this multiple of the zone's mean ATR.
	SizeAtrMult float64 `mapstructure:"size_atr_mult" default:"1.2" validate:"gte=0"`
	// Buffer beyond the boundary is max(MinBufferPct*level, BufferAtrMult*ATR).
	MinBufferPct  float64 `mapstructure:"min_buffer_pct" default:"0.001" validate:"gte=0,lt=0.1"`
	BufferAtrMult float64 `mapstructure:"buffer_atr_mult" default:"0.1" validate:"gte=0"`
	// Breakout volume must be at least this multiple of the zone's mean volume.
	VolumeMult float64 `mapstructure:"volume_mult" default:"1.5" validate:"gte=0"`
	SkipVolume bool    `mapstructure:"skip_volume"`
	// Bars after the breakout that must not retrace more than MaxRetrace of
	// the zone range back across the broken boundary.
	FollowThroughBars int     `mapstructure:"follow_through_bars" default:"2" validate:"gte=0,lte=5"`
	MaxRetrace        float64 `mapstructure:"max_retrace" default:"0.5" validate:"gt=0,lte=1"`
	SkipFollowThrough bool    `mapstructure:"skip_follow_through"`

	SlippagePct  float64 `mapstructure:"slippage_pct" default:"0.0005" validate:"gte=0,lt=0.05"`
	MeasuredMove float64 `mapstructure:"measured_move" default:"2" validate:"gt=0,lte=10"`
	QualityCap   float64 `mapstructure:"quality_cap" default:"95" validate:"gt=0,lte=100"`
}

// FlagConfig controls flag classification of zone breakouts.
type FlagConfig struct {
	DetectFlags bool `mapstructure:"detect_flags"`
	// The pole is the net close-to-close move over PoleBars bars ending at
	// the zone start; it must reach PoleMinAtr times the ATR there.
	PoleBars   int     `mapstructure:"pole_bars" default:"8" validate:"gte=2,lte=100"`
	PoleMinAtr float64 `mapstructure:"pole_min_atr" default:"3" validate:"gt=0"`
}

// AssemblerConfig holds the emission rules shared by every detector.
type AssemblerConfig struct {
	// Minimum number of bars between the index ranges of two emitted patterns.
	MinGap int `mapstructure:"min_gap" default:"10" validate:"gte=0"`
	// Emitted prices are rounded to this tick; 0 disables rounding.
	TickSize float64 `mapstructure:"tick_size" validate:"gte=0"`
}

// BreakoutConfig configures the zone-to-breakout pipeline.
type BreakoutConfig struct {
	Name      string          `mapstructure:"name" default:"strict"`
	Zone      ZoneConfig      `mapstructure:"zone"`
	Confirm   ConfirmConfig   `mapstructure:"confirm"`
	Flag      FlagConfig      `mapstructure:"flag"`
	Assembler AssemblerConfig `mapstructure:"assembler"`

	defaulted bool
}

// MinCandles returns the number of bars below which the pipeline reports
// insufficient data: the largest window, the ATR warm-up and the lookahead.
func (c BreakoutConfig) MinCandles() int {
	return c.Zone.MaxWindow + c.Zone.ATRPeriod + c.Confirm.Lookahead
}

// TouchMode selects which retest touches may confirm a retest.
type TouchMode string

const (
	TouchWick  TouchMode = "WICK"
	TouchClose TouchMode = "CLOSE"
	TouchBoth  TouchMode = "BOTH"
)

// RetestConfig configures the pivot breakout-retest detector.
type RetestConfig struct {
	Name       string `mapstructure:"name" default:"retest"`
	MinCandles int    `mapstructure:"min_candles" default:"50" validate:"gte=1"`

	ATRPeriod    int                  `mapstructure:"atr_period" default:"14" validate:"gte=1,lte=200"`
	ATRSmoothing indicators.Smoothing `mapstructure:"atr_smoothing" default:"wilder" validate:"oneof=wilder simple"`

	// Pivot finder window and the trend classifier's swing window are
	// independent.
	PivotLeft     int `mapstructure:"pivot_left" default:"3" validate:"gte=1,lte=20"`
	PivotRight    int `mapstructure:"pivot_right" default:"3" validate:"gte=1,lte=20"`
	TrendLookback int `mapstructure:"trend_lookback" default:"30" validate:"gte=5"`
	TrendSwing    int `mapstructure:"trend_swing" default:"2" validate:"gte=1,lte=10"`
	// Pivots older than this many bars at the breakout bar are ignored.
	MaxPivotAge int `mapstructure:"max_pivot_age" default:"60" validate:"gte=1"`

	// A breakout closes beyond level +/- BreakoutAtrMult*ATR after a close
	// on the other side of the level.
	BreakoutAtrMult      float64 `mapstructure:"breakout_atr_mult" default:"0.1" validate:"gte=0"`
	MinBarsAfterBreakout int     `mapstructure:"min_bars_after_breakout" default:"5" validate:"gte=1,ltfield=MaxBarsToWaitRetest"`
	MaxBarsToWaitRetest  int     `mapstructure:"max_bars_to_wait_retest" default:"60" validate:"gte=2,lte=500"`

	RetestAtrMult  float64   `mapstructure:"retest_atr_mult" default:"0.3" validate:"gt=0"`
	InvalidAtrMult float64   `mapstructure:"invalid_atr_mult" default:"1.0" validate:"gtefield=RetestAtrMult"`
	ConfirmAtrMult float64   `mapstructure:"confirm_atr_mult" default:"0.3" validate:"gte=0"`
	StabilityBars  int       `mapstructure:"stability_bars" default:"2" validate:"gte=0,lte=10"`
	TouchMode      TouchMode `mapstructure:"touch_mode" default:"BOTH" validate:"oneof=WICK CLOSE BOTH"`

	StopAtrMult float64 `mapstructure:"stop_atr_mult" default:"1.0" validate:"gt=0"`
	RewardRisk  float64 `mapstructure:"reward_risk" default:"2.0" validate:"gt=0,lte=20"`

	DisableContinuation bool `mapstructure:"disable_continuation"`
	DisableReversal     bool `mapstructure:"disable_reversal"`

	Assembler AssemblerConfig `mapstructure:"assembler"`

	defaulted bool
}

// Normalize fills defaults and validates a BreakoutConfig in place.
// Defaults are applied once per value: a field set to zero after the first
// Normalize, e.g. by a config override, stays zero.
func (c *BreakoutConfig) Normalize() error {
	if !c.defaulted {
		if err := applyDefaults("breakout", c); err != nil {
			return err
		}
		c.defaulted = true
	}
	return c.Validate()
}

// Validate checks a BreakoutConfig without filling defaults.
func (c *BreakoutConfig) Validate() error {
	if err := validateStruct(c.Name, c); err != nil {
		return err
	}
	if math.Abs(c.Zone.Weights.Total()-100) > 1e-6 {
		return apperrors.NewConfigError(c.Name, "Zone.Weights", c.Zone.Weights.Total(), "pressure weights must sum to 100")
	}
	return nil
}

// Normalize fills defaults once and validates a RetestConfig in place.
func (c *RetestConfig) Normalize() error {
	if !c.defaulted {
		if err := applyDefaults("retest", c); err != nil {
			return err
		}
		c.defaulted = true
	}
	return c.Validate()
}

// Validate checks a RetestConfig without filling defaults.
func (c *RetestConfig) Validate() error {
	if err := validateStruct(c.Name, c); err != nil {
		return err
	}
	if c.DisableContinuation && c.DisableReversal {
		return apperrors.NewConfigError(c.Name, "DisableReversal", true, "continuation and reversal scans are both disabled")
	}
	return nil
}

func applyDefaults(detector string, cfg interface{}) error {
	if err := defaults.Set(cfg); err != nil {
		return apperrors.NewConfigError(detector, "", nil, err.Error())
	}
	return nil
}

func validateStruct(detector string, cfg interface{}) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if apperrors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperrors.NewConfigError(detector, fe.Namespace(), fe.Value(), describeTag(fe))
		}
		return apperrors.NewConfigError(detector, "", nil, err.Error())
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "ltefield":
		return fmt.Sprintf("must not exceed %s", fe.Param())
	case "ltfield":
		return fmt.Sprintf("must be less than %s", fe.Param())
	case "gtefield":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// Preset names.
const (
	PresetStrict      = "strict"
	PresetRelaxed     = "relaxed"
	PresetCompression = "compression"
	PresetFlag        = "flag"
)

var presets = map[string]func() BreakoutConfig{
	PresetStrict:      StrictPreset,
	PresetRelaxed:     RelaxedPreset,
	PresetCompression: CompressionPreset,
	PresetFlag:        FlagPreset,
}

// PresetNames returns the registered preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns a normalized copy of the named preset.
func Preset(name string) (BreakoutConfig, error) {
	fn, ok := presets[name]
	if !ok {
		return BreakoutConfig{}, apperrors.Wrapf(apperrors.ErrUnknownPreset, "%q (have %s)", name, strings.Join(PresetNames(), ", "))
	}
	cfg := fn()
	if err := cfg.Normalize(); err != nil {
		return BreakoutConfig{}, err
	}
	return cfg, nil
}

// StrictPreset is the default configuration: every field at its documented default.
func StrictPreset() BreakoutConfig {
	return BreakoutConfig{Name: PresetStrict}
}

// RelaxedPreset accepts wider, less symmetric ranges and weaker breakouts.
// It uses the simple rolling ATR.
func RelaxedPreset() BreakoutConfig {
	return BreakoutConfig{
		Name: PresetRelaxed,
		Zone: ZoneConfig{
			MaxRangePct:     0.06,
			ATRSmoothing:    indicators.SmoothingSimple,
			ATRSlopeEpsilon: 0.03,
			TouchTolerance:  0.15,
			MinTouches:      1,
			MinSymmetry:     0.3,
			MaxDrift:        0.004,
			MinPressure:     25,
		},
		Confirm: ConfirmConfig{
			SizeAtrMult: 0.8,
			VolumeMult:  1.2,
			MaxRetrace:  0.7,
			QualityCap:  100,
		},
	}
}

// CompressionPreset looks for short, very tight ranges whose volatility is
// contracting, and projects a larger measured move.
func CompressionPreset() BreakoutConfig {
	return BreakoutConfig{
		Name: PresetCompression,
		Zone: ZoneConfig{
			MinWindow:       8,
			MaxWindow:       25,
			OptimalWindow:   15,
			MaxRangePct:     0.02,
			ATRSlopeEpsilon: 0.005,
			MinPressure:     50,
			Weights: PressureWeights{
				Range:          25,
				Duration:       10,
				ATRContraction: 35,
				VolumeDecline:  20,
				Symmetry:       10,
			},
		},
		Confirm: ConfirmConfig{
			SizeAtrMult:  1.5,
			MeasuredMove: 3,
			QualityCap:   100,
		},
	}
}

// FlagPreset looks for short drifting consolidations after a strong pole.
func FlagPreset() BreakoutConfig {
	return BreakoutConfig{
		Name: PresetFlag,
		Zone: ZoneConfig{
			MinWindow:     5,
			MaxWindow:     20,
			OptimalWindow: 10,
			MaxRangePct:   0.05,
			MinSymmetry:   0.3,
			MaxDrift:      0.006,
			MinPressure:   30,
		},
		Confirm: ConfirmConfig{
			SizeAtrMult: 1.0,
		},
		Flag: FlagConfig{DetectFlags: true},
	}
}

// DefaultRetestConfig returns the normalized strict retest configuration.
func DefaultRetestConfig() RetestConfig {
	cfg := RetestConfig{}
	// Defaults always validate.
	_ = cfg.Normalize()
	return cfg
}
