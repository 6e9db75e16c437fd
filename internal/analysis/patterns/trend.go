package patterns

import (
	"chartdrill/internal/models"
)

// TrendDirection represents the direction of a local trend.
type TrendDirection string

const (
	TrendUp      TrendDirection = "UP"
	TrendDown    TrendDirection = "DOWN"
	TrendNeutral TrendDirection = "NEUTRAL"
)

// DefaultTrendSwing is the symmetric swing window of the trend classifier.
const DefaultTrendSwing = 2

// DetectLocalTrend classifies the trend over the lookback bars ending at
// index (inclusive). Swing points are found with a symmetric +/-swing test on
// the unified timeline. At least two swing highs and two swing lows are
// required; higher highs with higher lows is UP, lower highs with lower lows
// is DOWN, and anything else, including a window shorter than lookback, is
// NEUTRAL. Callers treat NEUTRAL as "do not emit here".
func DetectLocalTrend(candles []models.Candle, index, lookback, swing int) TrendDirection {
	if swing < 1 {
		swing = DefaultTrendSwing
	}
	if index >= len(candles) || lookback < 2*swing+1 {
		return TrendNeutral
	}
	start := index - lookback + 1
	if start < 0 {
		return TrendNeutral
	}

	window := candles[start : index+1]
	var highs, lows []float64
	for _, s := range SwingTimeline(window, swing, swing) {
		if s.IsHigh {
			highs = append(highs, s.Price)
		} else {
			lows = append(lows, s.Price)
		}
	}

	if len(highs) < 2 || len(lows) < 2 {
		return TrendNeutral
	}

	lastHigh, prevHigh := highs[len(highs)-1], highs[len(highs)-2]
	lastLow, prevLow := lows[len(lows)-1], lows[len(lows)-2]

	switch {
	case lastHigh > prevHigh && lastLow > prevLow:
		return TrendUp
	case lastHigh < prevHigh && lastLow < prevLow:
		return TrendDown
	default:
		return TrendNeutral
	}
}
