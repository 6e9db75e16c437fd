package indicators

import (
	"errors"
	"math"

	"chartdrill/internal/models"
)

var (
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = errors.New("invalid period")
)

// sum calculates the sum of a slice of float64.
func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// mean calculates the arithmetic mean of a slice of float64.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

// Mean is the exported arithmetic mean; 0 for an empty slice.
func Mean(values []float64) float64 {
	return mean(values)
}

// trueRange calculates the true range for a candle.
func trueRange(current, previous models.Candle) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - previous.Close)
	lowClose := math.Abs(current.Low - previous.Close)
	return math.Max(highLow, math.Max(highClose, lowClose))
}

// TrueRange returns the per-bar true range. The first bar has no previous
// close, so its true range is high minus low.
func TrueRange(candles []models.Candle) []float64 {
	tr := make([]float64, len(candles))
	if len(candles) == 0 {
		return tr
	}
	tr[0] = candles[0].High - candles[0].Low
	for i := 1; i < len(candles); i++ {
		tr[i] = trueRange(candles[i], candles[i-1])
	}
	return tr
}

// ClosePrices extracts close prices from candles.
func ClosePrices(candles []models.Candle) []float64 {
	prices := make([]float64, len(candles))
	for i, c := range candles {
		prices[i] = c.Close
	}
	return prices
}

// Volumes extracts volumes from candles.
func Volumes(candles []models.Candle) []float64 {
	vols := make([]float64, len(candles))
	for i, c := range candles {
		vols[i] = c.Volume
	}
	return vols
}

// HighestHigh returns the highest high in the candles, or 0 if empty.
func HighestHigh(candles []models.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	h := candles[0].High
	for _, c := range candles[1:] {
		if c.High > h {
			h = c.High
		}
	}
	return h
}

// LowestLow returns the lowest low in the candles, or 0 if empty.
func LowestLow(candles []models.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	l := candles[0].Low
	for _, c := range candles[1:] {
		if c.Low < l {
			l = c.Low
		}
	}
	return l
}
