package patterns

import (
	"math"
	"time"

	"chartdrill/internal/analysis"
	"chartdrill/internal/models"
)

func mk(i int, o, h, l, c, v float64) models.Candle {
	return models.Candle{Time: 1700000000 + int64(i)*60, Open: o, High: h, Low: l, Close: c, Volume: v}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

// flatBars returns n bars trading 99..101 around 100.
func flatBars(n int) []models.Candle {
	candles := make([]models.Candle, n)
	for i := range candles {
		candles[i] = mk(i, 100, 101, 99, 100, 1000)
	}
	return candles
}

// appendMove appends one bar opening at the previous close and closing
// delta away. Rising bars extend 0.3 above the close, falling bars 0.3
// below it, so swing extremes are strict.
func appendMove(candles []models.Candle, delta float64) []models.Candle {
	o := candles[len(candles)-1].Close
	c := o + delta
	var h, l float64
	if delta > 0 {
		h, l = c+0.3, o-0.1
	} else {
		h, l = o+0.1, c-0.3
	}
	return append(candles, mk(len(candles), o, h, l, c, 1000))
}

// zigzag appends cycles of four legs of step followed by four legs of
// -step/2.
func zigzag(candles []models.Candle, cycles int, step float64) []models.Candle {
	for k := 0; k < cycles; k++ {
		for j := 0; j < 4; j++ {
			candles = appendMove(candles, step)
		}
		for j := 0; j < 4; j++ {
			candles = appendMove(candles, -step/2)
		}
	}
	return candles
}

type recordingObserver struct {
	NopObserver
	started      int
	insufficient int
	zones        int
	breakouts    int
	resolved     []RetestSignal
	emitted      []analysis.Pattern
	suppressed   int
	finished     int
}

func (r *recordingObserver) ScanStarted(string, int)            { r.started++ }
func (r *recordingObserver) InsufficientData(string, int, int)  { r.insufficient++ }
func (r *recordingObserver) ZoneFound(string, Zone)             { r.zones++ }
func (r *recordingObserver) BreakoutConfirmed(string, Breakout) { r.breakouts++ }
func (r *recordingObserver) RetestResolved(_ string, s RetestSignal) {
	r.resolved = append(r.resolved, s)
}
func (r *recordingObserver) PatternEmitted(_ string, p analysis.Pattern) {
	r.emitted = append(r.emitted, p)
}
func (r *recordingObserver) PatternSuppressed(string, analysis.Pattern, string) { r.suppressed++ }
func (r *recordingObserver) ScanFinished(string, int, time.Duration)           { r.finished++ }
