// Package patterns detects consolidation breakouts, flags and pivot
// breakout-retest sequences in candle data.
package patterns

import (
	"sort"

	"chartdrill/internal/models"
)

// Pivot is a strict local extreme.
type Pivot struct {
	Index int     `json:"index"`
	Price float64 `json:"price"`
	Time  int64   `json:"time"`
}

// FindPivots returns the pivot highs and pivot lows of candles, each in
// chronological order. Bar i (left <= i < n-right) is a pivot high iff its
// high is strictly greater than every other high in [i-left, i+right]; a tie
// with any neighbor disqualifies it. Pivot lows mirror this with lows. The two
// tests are independent, so one bar can appear in both lists.
func FindPivots(candles []models.Candle, left, right int) (highs, lows []Pivot) {
	n := len(candles)
	if left < 1 || right < 1 {
		return nil, nil
	}

	for i := left; i < n-right; i++ {
		if isPivotHigh(candles, i, left, right) {
			highs = append(highs, Pivot{Index: i, Price: candles[i].High, Time: candles[i].Time})
		}
		if isPivotLow(candles, i, left, right) {
			lows = append(lows, Pivot{Index: i, Price: candles[i].Low, Time: candles[i].Time})
		}
	}

	return highs, lows
}

func isPivotHigh(candles []models.Candle, i, left, right int) bool {
	h := candles[i].High
	for j := i - left; j <= i+right; j++ {
		if j != i && candles[j].High >= h {
			return false
		}
	}
	return true
}

func isPivotLow(candles []models.Candle, i, left, right int) bool {
	l := candles[i].Low
	for j := i - left; j <= i+right; j++ {
		if j != i && candles[j].Low <= l {
			return false
		}
	}
	return true
}

// LastPivotBeforeIndex returns the latest pivot whose index is <= index.
// pivots must be in chronological order.
func LastPivotBeforeIndex(pivots []Pivot, index int) (Pivot, bool) {
	// First position whose index is beyond the bound
	k := sort.Search(len(pivots), func(i int) bool {
		return pivots[i].Index > index
	})
	if k == 0 {
		return Pivot{}, false
	}
	return pivots[k-1], true
}

// SwingPoint is one entry of a unified swing timeline.
type SwingPoint struct {
	Pivot
	IsHigh bool `json:"isHigh"`
}

// SwingTimeline merges pivot highs and lows into one chronological list in
// which every bar appears at most once: the high test runs first and, when it
// passes, the low test is skipped for that bar. This is the semantics the
// trend classifier uses; FindPivots keeps both tests independent.
func SwingTimeline(candles []models.Candle, left, right int) []SwingPoint {
	n := len(candles)
	if left < 1 || right < 1 {
		return nil
	}

	var swings []SwingPoint
	for i := left; i < n-right; i++ {
		switch {
		case isPivotHigh(candles, i, left, right):
			swings = append(swings, SwingPoint{
				Pivot:  Pivot{Index: i, Price: candles[i].High, Time: candles[i].Time},
				IsHigh: true,
			})
		case isPivotLow(candles, i, left, right):
			swings = append(swings, SwingPoint{
				Pivot: Pivot{Index: i, Price: candles[i].Low, Time: candles[i].Time},
			})
		}
	}
	return swings
}
