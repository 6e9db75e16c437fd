package patterns

import (
	"strings"
	"testing"

	"chartdrill/internal/analysis"
	apperrors "chartdrill/internal/errors"
	"chartdrill/internal/models"
)

// retestBase returns 70 bars: 50 bars around 98.5 with a 2.0 true range, a
// breakout bar at 50 through level 100 and bars holding near 103 after it.
func retestBase() []models.Candle {
	candles := make([]models.Candle, 0, 70)
	for i := 0; i < 50; i++ {
		candles = append(candles, mk(i, 98.5, 99.5, 97.5, 98.5, 1000))
	}
	candles = append(candles, mk(50, 99, 103, 98.8, 102.5, 2000))
	for i := 51; i < 70; i++ {
		candles = append(candles, mk(i, 103, 104, 102, 103, 1000))
	}
	return candles
}

func longSetup() RetestSetup {
	return RetestSetup{
		Side:          SideLong,
		Level:         100,
		PivotIndex:    40,
		PivotType:     PivotTypeHigh,
		BreakoutIndex: 50,
	}
}

func newRetest(t *testing.T, cfg RetestConfig) *RetestDetector {
	t.Helper()
	det, err := NewRetestDetector(cfg)
	if err != nil {
		t.Fatalf("NewRetestDetector: %v", err)
	}
	return det
}

func checkTerminal(t *testing.T, sig RetestSignal) {
	t.Helper()
	if !sig.Kind.Terminal() {
		t.Fatalf("signal kind %s is not terminal", sig.Kind)
	}
	if (sig.ConfirmIndex == nil) == (sig.RejectIndex == nil) {
		t.Fatalf("exactly one of confirm/reject must be set: %+v", sig)
	}
	if (sig.Kind == StateConfirmed) != (sig.ConfirmIndex != nil) {
		t.Fatalf("kind %s disagrees with confirm index %v", sig.Kind, sig.ConfirmIndex)
	}
}

func TestRetestInvalidation(t *testing.T) {
	candles := retestBase()
	candles[60] = mk(60, 102, 102.5, 94.5, 95, 3000)
	for i := 61; i < 70; i++ {
		candles[i] = mk(i, 95, 95.5, 94.5, 95, 1000)
	}

	det := newRetest(t, RetestConfig{})
	first, last := NewRetestMachine(candles, det.atr(candles), longSetup(), det.Config()).Window()
	if first != 55 || last != 69 {
		t.Fatalf("window = [%d,%d], want [55,69]", first, last)
	}

	sig := det.Resolve(candles, det.atr(candles), longSetup())
	checkTerminal(t, sig)

	if sig.Kind != StateRejectedInvalidation {
		t.Fatalf("kind = %s, want REJECTED_INVALIDATION", sig.Kind)
	}
	if *sig.RejectIndex != 60 {
		t.Errorf("rejectIndex = %d, want 60", *sig.RejectIndex)
	}
	if sig.RetestIndex != nil {
		t.Errorf("no touch happened, got retest index %d", *sig.RetestIndex)
	}
	if sig.Time != candles[60].Time {
		t.Errorf("time = %d, want %d", sig.Time, candles[60].Time)
	}
}

func TestRetestConfirmAfterWickTouch(t *testing.T) {
	candles := retestBase()
	candles[55] = mk(55, 102, 102.5, 100.2, 100.8, 1000)
	candles[56] = mk(56, 100.8, 101.5, 100.5, 101.2, 1000)
	for i := 57; i < 70; i++ {
		candles[i] = mk(i, 101.2, 102, 101, 101.5, 1000)
	}

	det := newRetest(t, RetestConfig{})
	sig := det.Resolve(candles, det.atr(candles), longSetup())
	checkTerminal(t, sig)

	if sig.Kind != StateConfirmed {
		t.Fatalf("kind = %s, want CONFIRMED", sig.Kind)
	}
	if *sig.ConfirmIndex != 56 || *sig.RetestIndex != 55 || sig.TouchType != TouchWick {
		t.Errorf("confirm %d retest %d touch %s", *sig.ConfirmIndex, *sig.RetestIndex, sig.TouchType)
	}
}

func TestRetestTouchModes(t *testing.T) {
	candles := retestBase()
	candles[55] = mk(55, 102, 102.5, 100.2, 100.8, 1000) // wick only
	candles[56] = mk(56, 100.8, 101, 100.1, 100.4, 1000) // close touch
	candles[57] = mk(57, 100.4, 101.8, 100.3, 101.6, 1000)
	for i := 58; i < 70; i++ {
		candles[i] = mk(i, 101.6, 102.2, 101.4, 101.8, 1000)
	}

	tests := []struct {
		mode   TouchMode
		retest int
		touch  TouchMode
	}{
		{TouchBoth, 56, TouchClose},
		{TouchClose, 56, TouchClose},
		{TouchWick, 55, TouchWick},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			det := newRetest(t, RetestConfig{TouchMode: tt.mode})
			sig := det.Resolve(candles, det.atr(candles), longSetup())
			checkTerminal(t, sig)

			if sig.Kind != StateConfirmed || *sig.ConfirmIndex != 57 {
				t.Fatalf("expected CONFIRMED at 57, got %s %+v", sig.Kind, sig)
			}
			if *sig.RetestIndex != tt.retest || sig.TouchType != tt.touch {
				t.Errorf("retest %d touch %s, want %d %s", *sig.RetestIndex, sig.TouchType, tt.retest, tt.touch)
			}
		})
	}
}

func TestRetestStabilityVoidsConfirmation(t *testing.T) {
	candles := retestBase()
	candles[55] = mk(55, 102, 102.5, 100.2, 100.8, 1000)
	candles[56] = mk(56, 100.8, 100.9, 99.5, 99.8, 1000) // closes back under the level
	candles[57] = mk(57, 99.8, 101.8, 99.7, 101.6, 1000)
	for i := 58; i < 70; i++ {
		candles[i] = mk(i, 101.6, 102.2, 101.4, 101.8, 1000)
	}

	// The wick at 55 is followed by a close under the level, so it never
	// confirms and the search runs out.
	det := newRetest(t, RetestConfig{TouchMode: TouchWick})
	sig := det.Resolve(candles, det.atr(candles), longSetup())
	checkTerminal(t, sig)
	if sig.Kind != StateRejectedTimeout || *sig.RejectIndex != 69 {
		t.Fatalf("expected REJECTED_TIMEOUT at 69, got %s %+v", sig.Kind, sig)
	}

	// The close touch at 56 has no later close under the level.
	det = newRetest(t, RetestConfig{})
	sig = det.Resolve(candles, det.atr(candles), longSetup())
	checkTerminal(t, sig)
	if sig.Kind != StateConfirmed || *sig.ConfirmIndex != 57 || *sig.RetestIndex != 56 {
		t.Fatalf("expected CONFIRMED at 57 via 56, got %s %+v", sig.Kind, sig)
	}
}

func TestRetestTimeoutWhenDataEnds(t *testing.T) {
	candles := retestBase()
	setup := longSetup()
	setup.BreakoutIndex = 66

	det := newRetest(t, RetestConfig{})
	sig := det.Resolve(candles, det.atr(candles), setup)
	checkTerminal(t, sig)
	if sig.Kind != StateRejectedTimeout || *sig.RejectIndex != 69 {
		t.Errorf("expected timeout at the last bar, got %s %+v", sig.Kind, sig)
	}
}

func TestRetestShortMirror(t *testing.T) {
	candles := make([]models.Candle, 0, 70)
	for i := 0; i < 50; i++ {
		candles = append(candles, mk(i, 101.5, 102.5, 100.5, 101.5, 1000))
	}
	candles = append(candles, mk(50, 101, 101.2, 97, 97.5, 2000))
	for i := 51; i < 55; i++ {
		candles = append(candles, mk(i, 97, 98, 96, 97, 1000))
	}
	candles = append(candles,
		mk(55, 98, 99.8, 97.5, 99.2, 1000), // wick up to the level
		mk(56, 99.2, 99.5, 98.5, 98.8, 1000),
	)
	for i := 57; i < 70; i++ {
		candles = append(candles, mk(i, 98.8, 99, 98, 98.5, 1000))
	}

	setup := RetestSetup{Side: SideShort, Level: 100, PivotIndex: 40, PivotType: PivotTypeLow, BreakoutIndex: 50}
	det := newRetest(t, RetestConfig{})
	sig := det.Resolve(candles, det.atr(candles), setup)
	checkTerminal(t, sig)

	if sig.Kind != StateConfirmed || *sig.ConfirmIndex != 56 || *sig.RetestIndex != 55 {
		t.Fatalf("expected CONFIRMED at 56 via 55, got %s %+v", sig.Kind, sig)
	}
}

// trendRetest builds a stair-step uptrend whose last swing high is broken,
// retested with a close touch and confirmed.
func trendRetest() (candles []models.Candle, breakout int, peak float64) {
	candles = []models.Candle{mk(0, 100, 100.2, 99.8, 100, 1000)}
	candles = zigzag(candles, 6, 1)
	for j := 0; j < 4; j++ {
		candles = appendMove(candles, 1)
	}
	peak = candles[len(candles)-1].Close
	for j := 0; j < 4; j++ {
		candles = appendMove(candles, -0.5)
	}
	candles = appendMove(candles, 1)
	candles = appendMove(candles, 0.8)

	breakout = len(candles)
	add := func(o, h, l, c float64) {
		candles = append(candles, mk(len(candles), peak+o, peak+h, peak+l, peak+c, 1000))
	}
	add(-0.2, 1.8, -0.3, 1.5) // breakout
	add(1.5, 2.3, 1.4, 2.0)
	add(2.0, 2.6, 1.9, 2.3)
	add(2.3, 2.4, 1.9, 2.0)
	add(2.0, 2.1, 1.4, 1.5)
	add(1.5, 1.6, 0.9, 1.0)
	add(1.0, 1.1, 0.35, 0.5) // close touch
	add(0.5, 1.9, 0.45, 1.8) // confirmation
	add(1.8, 2.5, 1.7, 2.2)
	add(2.2, 2.9, 2.1, 2.6)
	add(2.6, 3.3, 2.5, 3.0)
	return candles, breakout, peak
}

func TestRetestDetectorContinuation(t *testing.T) {
	candles, b, peak := trendRetest()
	obs := &recordingObserver{}
	det, err := NewRetestDetector(RetestConfig{}, WithObserver(obs))
	if err != nil {
		t.Fatalf("NewRetestDetector: %v", err)
	}

	var sig *RetestSignal
	signals := det.Signals(candles)
	for i := range signals {
		checkTerminal(t, signals[i])
		if signals[i].BreakoutIndex == b && signals[i].Side == SideLong {
			sig = &signals[i]
		}
	}
	if sig == nil {
		t.Fatalf("no LONG signal for the breakout at %d in %+v", b, signals)
	}
	if sig.IsReversal || sig.PivotType != PivotTypeHigh || sig.PivotIndex != b-7 {
		t.Errorf("setup: reversal=%v pivot %s@%d", sig.IsReversal, sig.PivotType, sig.PivotIndex)
	}
	if !approx(sig.Level, peak+0.3) {
		t.Errorf("level = %v, want %v", sig.Level, peak+0.3)
	}
	if sig.Kind != StateConfirmed || *sig.RetestIndex != b+6 || *sig.ConfirmIndex != b+7 || sig.TouchType != TouchClose {
		t.Fatalf("got %s %+v", sig.Kind, sig)
	}
	if len(obs.resolved) != len(signals) {
		t.Errorf("observer saw %d signals, scan returned %d", len(obs.resolved), len(signals))
	}

	p := det.pattern(candles, det.atr(candles), *sig)
	if p.Type != analysis.PatternTypeRetest || p.Direction != analysis.DirectionUp {
		t.Errorf("got %s %s", p.Type, p.Direction)
	}
	if p.StartIndex != b-7 || p.EndIndex != b+7 {
		t.Errorf("range [%d,%d], want [%d,%d]", p.StartIndex, p.EndIndex, b-7, b+7)
	}
	if !approx(p.ExpectedEntry, peak+1.8) || p.StopLoss >= sig.Level {
		t.Errorf("entry %v stop %v level %v", p.ExpectedEntry, p.StopLoss, sig.Level)
	}
	if !approx(p.RiskReward(), 2) {
		t.Errorf("risk/reward = %v, want 2", p.RiskReward())
	}
	if p.Metadata.Quality <= 0 || p.Metadata.Quality > 100 {
		t.Errorf("quality out of range: %v", p.Metadata.Quality)
	}

	patterns, err := det.Detect(candles)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(patterns) == 0 {
		t.Fatal("expected at least one pattern")
	}
	for _, p := range patterns {
		if p.Type != analysis.PatternTypeRetest {
			t.Errorf("unexpected pattern type %s", p.Type)
		}
	}
}

func TestRetestDetectorDisabledPasses(t *testing.T) {
	candles, b, _ := trendRetest()
	det := newRetest(t, RetestConfig{DisableContinuation: true})

	for _, sig := range det.Signals(candles) {
		if !sig.IsReversal {
			t.Errorf("continuation signal emitted while disabled: %+v", sig)
		}
		if sig.BreakoutIndex == b {
			t.Errorf("breakout at %d is a continuation and must be skipped", b)
		}
	}
}

func TestRetestDetectorInsufficientData(t *testing.T) {
	obs := &recordingObserver{}
	det, _ := NewRetestDetector(RetestConfig{}, WithObserver(obs))

	patterns, err := det.Detect(flatBars(10))
	if err != nil {
		t.Fatalf("insufficient data must not be an error: %v", err)
	}
	if patterns == nil || len(patterns) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", patterns)
	}
	if obs.insufficient != 1 {
		t.Errorf("expected one InsufficientData notification, got %d", obs.insufficient)
	}
	if sigs := det.Signals(flatBars(10)); len(sigs) != 0 {
		t.Errorf("expected no signals, got %d", len(sigs))
	}
}

func TestRetestConfigValidation(t *testing.T) {
	tests := []struct {
		name  string
		cfg   RetestConfig
		field string
	}{
		{"wait window", RetestConfig{MinBarsAfterBreakout: 70}, "MinBarsAfterBreakout"},
		{"invalidation inside tolerance", RetestConfig{RetestAtrMult: 2}, "InvalidAtrMult"},
		{"touch mode", RetestConfig{TouchMode: "ANY"}, "TouchMode"},
		{"smoothing", RetestConfig{ATRSmoothing: "ema"}, "ATRSmoothing"},
		{"both disabled", RetestConfig{DisableContinuation: true, DisableReversal: true}, "DisableReversal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRetestDetector(tt.cfg)
			if !apperrors.Is(err, apperrors.ErrConfigInvalid) {
				t.Fatalf("expected ErrConfigInvalid, got %v", err)
			}
			var cfgErr *apperrors.ConfigError
			if !apperrors.As(err, &cfgErr) || !strings.Contains(cfgErr.Field, tt.field) {
				t.Errorf("expected field %q, got %v", tt.field, err)
			}
		})
	}

	def := DefaultRetestConfig()
	if def.MinCandles != 50 || def.TouchMode != TouchBoth || def.PivotLeft != 3 || def.TrendSwing != 2 {
		t.Errorf("defaults not applied: %+v", def)
	}
}

func TestRetestMomentumRequiresBetterClose(t *testing.T) {
	candles := retestBase()
	candles[55] = mk(55, 102, 102.5, 100.2, 101, 1000)     // wick touch
	candles[56] = mk(56, 101, 101.2, 100.7, 100.9, 1000)   // beyond the level, below the prior close
	candles[57] = mk(57, 100.9, 101.6, 100.8, 101.4, 1000) // beyond and better
	for i := 58; i < 70; i++ {
		candles[i] = mk(i, 101.4, 102, 101.2, 101.6, 1000)
	}

	det := newRetest(t, RetestConfig{})
	sig := det.Resolve(candles, det.atr(candles), longSetup())
	checkTerminal(t, sig)

	if sig.Kind != StateConfirmed {
		t.Fatalf("kind = %s, want CONFIRMED", sig.Kind)
	}
	if *sig.ConfirmIndex != 57 || *sig.RetestIndex != 55 {
		t.Errorf("confirm %d retest %d, want 57 via 55", *sig.ConfirmIndex, *sig.RetestIndex)
	}
}

func TestRetestContinuationGuard(t *testing.T) {
	det := newRetest(t, RetestConfig{})

	candles := retestBase()
	if !det.continuationHolds(candles, det.atr(candles), longSetup()) {
		t.Error("bars holding at 103 must pass the guard")
	}

	tests := []struct {
		name  string
		close float64
		bars  []int
	}{
		{"closes on the level", 100, []int{51, 52, 53, 54, 55}},
		{"closes inside tolerance", 100.3, []int{51, 52, 53, 54, 55}},
		{"one bar back on the level", 100, []int{53}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candles := retestBase()
			for _, i := range tt.bars {
				candles[i] = mk(i, tt.close, tt.close+0.5, tt.close-0.5, tt.close, 1000)
			}
			if det.continuationHolds(candles, det.atr(candles), longSetup()) {
				t.Errorf("guard passed with closes at %v", tt.close)
			}
		})
	}

	late := longSetup()
	late.BreakoutIndex = 66
	if det.continuationHolds(candles, det.atr(candles), late) {
		t.Error("guard must fail when the bars after the breakout are missing")
	}
}

func TestRetestBreakoutPivotRules(t *testing.T) {
	long := RetestSetup{Side: SideLong, PivotType: PivotTypeHigh}
	pivots := []Pivot{{Index: 40, Price: 100}}

	candles := retestBase()
	candles[54] = mk(54, 103, 103, 98.8, 99, 1000)
	candles[55] = mk(55, 99, 102.8, 98.9, 102.5, 1000)

	det := newRetest(t, RetestConfig{})
	atr := det.atr(candles)

	t.Run("consumed by first breakout", func(t *testing.T) {
		consumed := map[int]bool{}
		setup, ok := det.breakout(candles, atr, pivots, consumed, 50, long)
		if !ok || setup.BreakoutIndex != 50 || setup.PivotIndex != 40 || setup.Level != 100 {
			t.Fatalf("breakout at 50: ok=%v %+v", ok, setup)
		}
		if _, ok := det.breakout(candles, atr, pivots, consumed, 55, long); ok {
			t.Error("second close through a consumed pivot must not break out")
		}
		if _, ok := det.breakout(candles, atr, pivots, map[int]bool{}, 55, long); !ok {
			t.Error("the same bar breaks out when the pivot is unused")
		}
	})

	t.Run("max pivot age", func(t *testing.T) {
		young := newRetest(t, RetestConfig{MaxPivotAge: 5})
		if _, ok := young.breakout(candles, atr, pivots, map[int]bool{}, 50, long); ok {
			t.Error("pivot 10 bars old must be ignored with MaxPivotAge 5")
		}
		edge := newRetest(t, RetestConfig{MaxPivotAge: 10})
		if _, ok := edge.breakout(candles, atr, pivots, map[int]bool{}, 50, long); !ok {
			t.Error("pivot exactly MaxPivotAge bars old is still eligible")
		}
	})

	t.Run("prior close inside threshold", func(t *testing.T) {
		near := retestBase()
		near[49] = mk(49, 98.5, 100.3, 98.4, 100.1, 1000)
		if _, ok := det.breakout(near, det.atr(near), pivots, map[int]bool{}, 50, long); !ok {
			t.Error("a prior close within BreakoutAtrMult ATRs of the level must not block the breakout")
		}

		through := retestBase()
		through[49] = mk(49, 98.5, 101, 98.4, 100.8, 1000)
		atrThrough := det.atr(through)
		if _, ok := det.breakout(through, atrThrough, pivots, map[int]bool{}, 49, long); !ok {
			t.Error("bar 49 is the breakout")
		}
		if _, ok := det.breakout(through, atrThrough, pivots, map[int]bool{}, 50, long); ok {
			t.Error("bar 50 follows a close already beyond the threshold")
		}
	})
}

// downtrendBreakout builds a stair-step downtrend whose last swing high is
// broken by a rally, a reversal setup.
func downtrendBreakout() (candles []models.Candle, breakout, pivot int) {
	candles = []models.Candle{mk(0, 100, 100.2, 99.8, 100, 1000)}
	candles = zigzag(candles, 6, -1)
	pivot = len(candles) - 1
	for j := 0; j < 4; j++ {
		candles = appendMove(candles, -1)
	}
	for j := 0; j < 4; j++ {
		candles = appendMove(candles, 1)
	}
	breakout = len(candles)
	for j := 0; j < 8; j++ {
		candles = appendMove(candles, 1)
	}
	return candles, breakout, pivot
}

func TestRetestDetectorReversal(t *testing.T) {
	candles, b, pivot := downtrendBreakout()
	if trend := DetectLocalTrend(candles, b, 30, 2); trend != TrendDown {
		t.Fatalf("trend at breakout = %s, want DOWN", trend)
	}

	det := newRetest(t, RetestConfig{})
	var sig *RetestSignal
	signals := det.Signals(candles)
	for i := range signals {
		checkTerminal(t, signals[i])
		if signals[i].BreakoutIndex == b && signals[i].Side == SideLong {
			sig = &signals[i]
		}
	}
	if sig == nil {
		t.Fatalf("no LONG signal for the breakout at %d in %+v", b, signals)
	}
	if !sig.IsReversal || sig.PivotType != PivotTypeHigh || sig.PivotIndex != pivot {
		t.Errorf("setup: reversal=%v pivot %s@%d, want reversal HIGH@%d", sig.IsReversal, sig.PivotType, sig.PivotIndex, pivot)
	}
	if !approx(sig.Level, candles[pivot].High) {
		t.Errorf("level = %v, want %v", sig.Level, candles[pivot].High)
	}

	off := newRetest(t, RetestConfig{DisableReversal: true})
	for _, s := range off.Signals(candles) {
		if s.IsReversal {
			t.Errorf("reversal signal emitted while disabled: %+v", s)
		}
	}
}
