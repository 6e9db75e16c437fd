package patterns

import (
	"time"

	"chartdrill/internal/analysis"
	"chartdrill/internal/analysis/indicators"
	"chartdrill/internal/models"
)

// Option configures a detector.
type Option func(*options)

type options struct {
	observer Observer
}

// WithObserver registers an observer for progress notifications.
func WithObserver(o Observer) Option {
	return func(opts *options) {
		opts.observer = o
	}
}

func applyOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	o.observer = observerOrNop(o.observer)
	return o
}

// BreakoutDetector is the zone-to-breakout pipeline. Presets differ only in
// configuration.
type BreakoutDetector struct {
	cfg      BreakoutConfig
	zones    *ZoneFinder
	observer Observer
}

var (
	_ analysis.PatternDetector = (*BreakoutDetector)(nil)
	_ analysis.PatternDetector = (*RetestDetector)(nil)
)

// NewBreakoutDetector creates a breakout detector. The config is normalized
// and validated before any scan.
func NewBreakoutDetector(cfg BreakoutConfig, opts ...Option) (*BreakoutDetector, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	return &BreakoutDetector{
		cfg:      cfg,
		zones:    newZoneFinder(cfg.Zone),
		observer: o.observer,
	}, nil
}

// NewPresetDetector creates a breakout detector from a named preset.
func NewPresetDetector(name string, opts ...Option) (*BreakoutDetector, error) {
	cfg, err := Preset(name)
	if err != nil {
		return nil, err
	}
	return NewBreakoutDetector(cfg, opts...)
}

// Name returns the detector name.
func (d *BreakoutDetector) Name() string {
	return d.cfg.Name
}

// Config returns the normalized configuration.
func (d *BreakoutDetector) Config() BreakoutConfig {
	return d.cfg
}

// Detect returns breakout and flag patterns in discovery order, subject to
// the minimum gap. Fewer than MinCandles bars yield an empty result.
func (d *BreakoutDetector) Detect(candles []models.Candle) ([]analysis.Pattern, error) {
	start := time.Now()
	d.observer.ScanStarted(d.cfg.Name, len(candles))

	asm := NewAssembler(d.cfg.Name, d.cfg.Assembler, d.observer)
	if need := d.cfg.MinCandles(); len(candles) < need {
		d.observer.InsufficientData(d.cfg.Name, len(candles), need)
		d.observer.ScanFinished(d.cfg.Name, 0, time.Since(start))
		return asm.Patterns(), nil
	}

	atr := d.zones.ATR(candles)
	sma, _ := indicators.NewSMA(d.cfg.Zone.MaxWindow).Calculate(candles)
	for _, b := range d.breakouts(candles, atr) {
		p := breakoutPattern(d.cfg.Name, b)
		// Distance of the breakout close from the slow average, as a fraction.
		if avg, ok := sma.At(b.Index); ok && avg > 0 {
			p.Metadata.Scores["smaGap"] = (b.Close - avg) / avg
		}
		asm.Add(p)
	}

	patterns := asm.Patterns()
	d.observer.ScanFinished(d.cfg.Name, len(patterns), time.Since(start))
	return patterns, nil
}

// Breakouts returns every confirmed breakout before gap filtering.
func (d *BreakoutDetector) Breakouts(candles []models.Candle) []Breakout {
	if len(candles) < d.cfg.MinCandles() {
		return []Breakout{}
	}
	return d.breakouts(candles, d.zones.ATR(candles))
}

// Zones returns every window that passes the zone tests, for diagnostics.
func (d *BreakoutDetector) Zones(candles []models.Candle) []Zone {
	return d.zones.FindAll(candles, d.zones.ATR(candles))
}

// breakouts walks ending indices in ascending order, hands the best zone at
// each to the confirmer and resumes after the breakout bar on success.
func (d *BreakoutDetector) breakouts(candles []models.Candle, atr indicators.Series) []Breakout {
	out := []Breakout{}
	for end := d.cfg.Zone.MinWindow - 1; end < len(candles)-1; end++ {
		zone, ok := d.zones.BestEndingAt(candles, atr, end)
		if !ok {
			continue
		}
		d.observer.ZoneFound(d.cfg.Name, zone)

		b, ok := ConfirmBreakout(candles, zone, d.cfg.Confirm)
		if !ok {
			continue
		}
		b = d.extendZone(candles, atr, zone, b)
		applyFlag(candles, atr, &b, d.cfg.Flag)
		d.observer.BreakoutConfirmed(d.cfg.Name, b)
		out = append(out, b)
		end = b.Index
	}
	return out
}

// extendZone re-confirms b against the latest passing zone that ends before
// the breakout bar, so the reported zone runs up to the breakout. b is kept
// when no later zone confirms the same bar.
func (d *BreakoutDetector) extendZone(candles []models.Candle, atr indicators.Series, zone Zone, b Breakout) Breakout {
	for end := b.Index - 1; end > zone.EndIndex; end-- {
		z, ok := d.zones.BestEndingAt(candles, atr, end)
		if !ok {
			continue
		}
		nb, ok := ConfirmBreakout(candles, z, d.cfg.Confirm)
		if !ok || nb.Index != b.Index {
			continue
		}
		d.observer.ZoneFound(d.cfg.Name, z)
		return nb
	}
	return b
}
