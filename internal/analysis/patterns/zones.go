package patterns

import (
	"math"

	"chartdrill/internal/analysis/indicators"
	apperrors "chartdrill/internal/errors"
	"chartdrill/internal/models"
)

// Zone is a consolidation window that passed every zone test.
type Zone struct {
	StartIndex  int     `json:"startIndex"`
	EndIndex    int     `json:"endIndex"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	RangePct    float64 `json:"rangePct"`
	HighTouches int     `json:"highTouches"`
	LowTouches  int     `json:"lowTouches"`
	// ATR slope per bar as a fraction of the window's mean ATR.
	ATRSlope float64 `json:"atrSlope"`
	// Close slope per bar as a fraction of the window's mean close.
	CloseSlope float64 `json:"closeSlope"`
	Symmetry   float64 `json:"symmetry"`
	MeanATR    float64 `json:"meanAtr"`
	MeanVolume float64 `json:"meanVolume"`
	Pressure   float64 `json:"pressure"`
	Components PressureComponents `json:"components"`
}

// Len returns the number of bars in the zone.
func (z Zone) Len() int {
	return z.EndIndex - z.StartIndex + 1
}

// Height returns high minus low.
func (z Zone) Height() float64 {
	return z.High - z.Low
}

// Drift returns the absolute normalized close slope.
func (z Zone) Drift() float64 {
	return math.Abs(z.CloseSlope)
}

// PressureComponents are the normalized (0..1) inputs of the pressure score.
type PressureComponents struct {
	Range          float64 `json:"range"`
	Duration       float64 `json:"duration"`
	ATRContraction float64 `json:"atrContraction"`
	VolumeDecline  float64 `json:"volumeDecline"`
	Symmetry       float64 `json:"symmetry"`
}

// ZoneRejection names the first zone test a window failed.
type ZoneRejection string

const (
	RejectNone     ZoneRejection = ""
	RejectWarmup   ZoneRejection = "warmup"
	RejectRange    ZoneRejection = "range"
	RejectATR      ZoneRejection = "atr_expanding"
	RejectTouches  ZoneRejection = "touches"
	RejectSymmetry ZoneRejection = "symmetry"
	RejectDrift    ZoneRejection = "drift"
	RejectPressure ZoneRejection = "pressure"
)

const (
	// ATR falling by this fraction across a window earns full contraction points.
	fullATRContraction = 0.3
	// Second-half volume this far below first-half volume earns full points.
	fullVolumeDecline = 0.5
)

// ZoneFinder scans candle windows for consolidation zones.
type ZoneFinder struct {
	cfg ZoneConfig
}

// NewZoneFinder creates a zone finder. The config is normalized and
// validated; an out-of-range field is returned as a *errors.ConfigError.
func NewZoneFinder(cfg ZoneConfig) (*ZoneFinder, error) {
	if err := applyDefaults("zone", &cfg); err != nil {
		return nil, err
	}
	if err := validateStruct("zone", &cfg); err != nil {
		return nil, err
	}
	if math.Abs(cfg.Weights.Total()-100) > 1e-6 {
		return nil, apperrors.NewConfigError("zone", "Weights", cfg.Weights.Total(), "pressure weights must sum to 100")
	}
	return &ZoneFinder{cfg: cfg}, nil
}

func newZoneFinder(cfg ZoneConfig) *ZoneFinder {
	return &ZoneFinder{cfg: cfg}
}

// Config returns the normalized configuration.
func (f *ZoneFinder) Config() ZoneConfig {
	return f.cfg
}

// ATR computes the ATR series this finder expects.
func (f *ZoneFinder) ATR(candles []models.Candle) indicators.Series {
	series, err := indicators.NewATRWithSmoothing(f.cfg.ATRPeriod, f.cfg.ATRSmoothing).Calculate(candles)
	if err != nil {
		// Period is validated at construction
		return indicators.Undefined(len(candles))
	}
	return series
}

// Evaluate runs the zone tests on the window [start, end] in order and stops
// at the first failure.
func (f *ZoneFinder) Evaluate(candles []models.Candle, atr indicators.Series, start, end int) (Zone, ZoneRejection) {
	if start < 0 || end >= len(candles) || start > end {
		return Zone{}, RejectWarmup
	}
	atrWindow, ok := atr.Window(start, end)
	if !ok {
		return Zone{}, RejectWarmup
	}
	window := candles[start : end+1]

	// 1. Range
	high := indicators.HighestHigh(window)
	low := indicators.LowestLow(window)
	mid := (high + low) / 2
	if mid <= 0 {
		return Zone{}, RejectRange
	}
	rangePct := (high - low) / mid
	if rangePct > f.cfg.MaxRangePct {
		return Zone{}, RejectRange
	}

	// 2. Volatility contraction
	meanATR := indicators.Mean(atrWindow)
	atrSlope := 0.0
	if meanATR > 0 {
		atrSlope = indicators.Slope(atrWindow) / meanATR
	}
	if atrSlope > f.cfg.ATRSlopeEpsilon {
		return Zone{}, RejectATR
	}

	// 3. Touches
	band := f.cfg.TouchTolerance * (high - low)
	highTouches, lowTouches := 0, 0
	for _, c := range window {
		if c.High >= high-band {
			highTouches++
		}
		if c.Low <= low+band {
			lowTouches++
		}
	}
	if highTouches < f.cfg.MinTouches || lowTouches < f.cfg.MinTouches {
		return Zone{}, RejectTouches
	}

	// 4. Symmetry
	symmetry := 1 - math.Abs(float64(highTouches-lowTouches))/float64(highTouches+lowTouches)
	if symmetry <= f.cfg.MinSymmetry {
		return Zone{}, RejectSymmetry
	}

	// 5. Drift
	closeSlope := indicators.NormalizedSlope(indicators.ClosePrices(window))
	if math.Abs(closeSlope) > f.cfg.MaxDrift {
		return Zone{}, RejectDrift
	}

	vols := indicators.Volumes(window)
	zone := Zone{
		StartIndex:  start,
		EndIndex:    end,
		High:        high,
		Low:         low,
		RangePct:    rangePct,
		HighTouches: highTouches,
		LowTouches:  lowTouches,
		ATRSlope:    atrSlope,
		CloseSlope:  closeSlope,
		Symmetry:    symmetry,
		MeanATR:     meanATR,
		MeanVolume:  indicators.Mean(vols),
	}
	zone.Components = f.components(zone, atrWindow, vols)
	zone.Pressure = f.pressure(zone.Components)

	if zone.Pressure < f.cfg.MinPressure {
		return zone, RejectPressure
	}
	return zone, RejectNone
}

func (f *ZoneFinder) components(z Zone, atrWindow, vols []float64) PressureComponents {
	c := PressureComponents{
		Range:    clamp01(1 - z.RangePct/f.cfg.MaxRangePct),
		Symmetry: z.Symmetry,
	}

	optimal := f.cfg.OptimalWindow
	if optimal < f.cfg.MinWindow {
		optimal = f.cfg.MinWindow
	}
	if optimal > f.cfg.MaxWindow {
		optimal = f.cfg.MaxWindow
	}
	span := maxInt(optimal-f.cfg.MinWindow, f.cfg.MaxWindow-optimal)
	if span == 0 {
		c.Duration = 1
	} else {
		c.Duration = clamp01(1 - math.Abs(float64(z.Len()-optimal))/float64(span))
	}

	if first := atrWindow[0]; first > 0 {
		last := atrWindow[len(atrWindow)-1]
		c.ATRContraction = clamp01((first - last) / first / fullATRContraction)
	}

	half := len(vols) / 2
	if half > 0 {
		firstHalf := indicators.Mean(vols[:half])
		secondHalf := indicators.Mean(vols[half:])
		if firstHalf > 0 {
			c.VolumeDecline = clamp01((firstHalf - secondHalf) / firstHalf / fullVolumeDecline)
		}
	}

	return c
}

func (f *ZoneFinder) pressure(c PressureComponents) float64 {
	w := f.cfg.Weights
	return w.Range*c.Range +
		w.Duration*c.Duration +
		w.ATRContraction*c.ATRContraction +
		w.VolumeDecline*c.VolumeDecline +
		w.Symmetry*c.Symmetry
}

// FindAll returns every passing zone, scanning ending indices in ascending
// order and, for each, window sizes from MinWindow to MaxWindow.
func (f *ZoneFinder) FindAll(candles []models.Candle, atr indicators.Series) []Zone {
	var zones []Zone
	for end := f.cfg.MinWindow - 1; end < len(candles); end++ {
		for size := f.cfg.MinWindow; size <= f.cfg.MaxWindow; size++ {
			start := end - size + 1
			if start < 0 {
				break
			}
			if z, rej := f.Evaluate(candles, atr, start, end); rej == RejectNone {
				zones = append(zones, z)
			}
		}
	}
	return zones
}

// BestEndingAt returns the highest-pressure zone ending at end. Ties go to
// the longer window.
func (f *ZoneFinder) BestEndingAt(candles []models.Candle, atr indicators.Series, end int) (Zone, bool) {
	var best Zone
	found := false
	for size := f.cfg.MinWindow; size <= f.cfg.MaxWindow; size++ {
		start := end - size + 1
		if start < 0 {
			break
		}
		z, rej := f.Evaluate(candles, atr, start, end)
		if rej != RejectNone {
			continue
		}
		if !found || z.Pressure >= best.Pressure {
			best = z
			found = true
		}
	}
	return best, found
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
