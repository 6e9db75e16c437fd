package indicators

import (
	"fmt"

	"chartdrill/internal/models"
)

// Smoothing selects how true range is averaged into ATR. A detector picks
// one and uses it for every ATR it computes.
type Smoothing string

const (
	// SmoothingWilder seeds with the simple mean of the first period true
	// ranges and then applies Wilder's recursive smoothing.
	SmoothingWilder Smoothing = "wilder"
	// SmoothingSimple is a rolling mean of the last period true ranges.
	SmoothingSimple Smoothing = "simple"
)

// ATR calculates the Average True Range.
type ATR struct {
	period    int
	smoothing Smoothing
}

// NewATR creates a new Wilder-smoothed ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period, smoothing: SmoothingWilder}
}

// NewSimpleATR creates an ATR that is a plain rolling mean of true range.
func NewSimpleATR(period int) *ATR {
	return &ATR{period: period, smoothing: SmoothingSimple}
}

// NewATRWithSmoothing creates an ATR with an explicit smoothing variant.
// Unknown variants fall back to Wilder.
func NewATRWithSmoothing(period int, s Smoothing) *ATR {
	if s != SmoothingSimple {
		s = SmoothingWilder
	}
	return &ATR{period: period, smoothing: s}
}

func (a *ATR) Name() string {
	if a.smoothing == SmoothingSimple {
		return fmt.Sprintf("SATR_%d", a.period)
	}
	return fmt.Sprintf("ATR_%d", a.period)
}

func (a *ATR) Period() int {
	return a.period
}

// Calculate returns an ATR series. Indices below period-1 are undefined; if
// there are fewer than period candles, nothing is defined.
func (a *ATR) Calculate(candles []models.Candle) (Series, error) {
	if a.period <= 0 {
		return Series{}, ErrInvalidPeriod
	}

	n := len(candles)
	if n < a.period {
		return Undefined(n), nil
	}

	result := newSeries(n, a.period-1)
	tr := TrueRange(candles)

	// Seed is the simple mean of the first period true ranges
	result.values[a.period-1] = mean(tr[:a.period])

	p := float64(a.period)
	switch a.smoothing {
	case SmoothingSimple:
		rolling := sum(tr[:a.period])
		for i := a.period; i < n; i++ {
			rolling += tr[i] - tr[i-a.period]
			result.values[i] = rolling / p
		}
	default:
		for i := a.period; i < n; i++ {
			result.values[i] = (result.values[i-1]*(p-1) + tr[i]) / p
		}
	}

	return result, nil
}
