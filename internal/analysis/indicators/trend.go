package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"chartdrill/internal/models"
)

// SMA calculates Simple Moving Average of close prices.
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator.
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

func (s *SMA) Name() string {
	return fmt.Sprintf("SMA_%d", s.period)
}

func (s *SMA) Period() int {
	return s.period
}

// Calculate returns the rolling mean of closes; undefined before period-1.
func (s *SMA) Calculate(candles []models.Candle) (Series, error) {
	if s.period <= 0 {
		return Series{}, ErrInvalidPeriod
	}
	n := len(candles)
	if n < s.period {
		return Undefined(n), nil
	}

	result := newSeries(n, s.period-1)
	sma := talib.Sma(ClosePrices(candles), s.period)
	copy(result.values[s.period-1:], sma[s.period-1:])

	return result, nil
}

// Slope returns the ordinary least-squares slope of values against their own
// index 0..n-1. Positive means rising. It returns 0 when n < 2.
func Slope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	_, beta := stat.LinearRegression(xs, values, nil, false)
	return beta
}

// NormalizedSlope returns Slope(values) divided by the mean of values, i.e.
// the fractional change per bar. It returns 0 when the mean is 0.
func NormalizedSlope(values []float64) float64 {
	m := mean(values)
	if m == 0 {
		return 0
	}
	return Slope(values) / m
}
