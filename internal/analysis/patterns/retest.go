package patterns

import (
	"fmt"
	"math"
	"time"

	"chartdrill/internal/analysis"
	"chartdrill/internal/analysis/indicators"
	"chartdrill/internal/models"
)

// RetestState is a state of the retest machine. CONFIRMED and the two
// REJECTED states are terminal.
type RetestState string

const (
	StateAwaitingBreakout     RetestState = "AWAITING_BREAKOUT"
	StateBreakoutConfirmed    RetestState = "BREAKOUT_CONFIRMED"
	StateAwaitingRetest       RetestState = "AWAITING_RETEST"
	StateRetestTouched        RetestState = "RETEST_TOUCHED"
	StateConfirmed            RetestState = "CONFIRMED"
	StateRejectedInvalidation RetestState = "REJECTED_INVALIDATION"
	StateRejectedTimeout      RetestState = "REJECTED_TIMEOUT"
)

// Terminal reports whether s ends a retest search.
func (s RetestState) Terminal() bool {
	switch s {
	case StateConfirmed, StateRejectedInvalidation, StateRejectedTimeout:
		return true
	}
	return false
}

// Side is the trade side a broken level sets up.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Direction maps LONG to UP and SHORT to DOWN.
func (s Side) Direction() analysis.Direction {
	if s == SideShort {
		return analysis.DirectionDown
	}
	return analysis.DirectionUp
}

func (s Side) sign() float64 {
	return s.Direction().Sign()
}

// PivotType is the kind of pivot whose level was broken.
type PivotType string

const (
	PivotTypeHigh PivotType = "PIVOT_HIGH"
	PivotTypeLow  PivotType = "PIVOT_LOW"
)

// RetestSetup is a broken pivot level entering the retest search.
type RetestSetup struct {
	Side          Side
	Level         float64
	PivotIndex    int
	PivotType     PivotType
	BreakoutIndex int
	IsReversal    bool
}

// RetestSignal is the terminal outcome of one retest search. Exactly one of
// ConfirmIndex and RejectIndex is set.
type RetestSignal struct {
	Kind          RetestState `json:"kind" yaml:"kind"`
	Side          Side        `json:"side" yaml:"side"`
	Level         float64     `json:"level" yaml:"level"`
	PivotIndex    int         `json:"pivotIndex" yaml:"pivot_index"`
	PivotType     PivotType   `json:"pivotType" yaml:"pivot_type"`
	BreakoutIndex int         `json:"breakoutIndex" yaml:"breakout_index"`
	RetestIndex   *int        `json:"retestIndex,omitempty" yaml:"retest_index,omitempty"`
	ConfirmIndex  *int        `json:"confirmIndex,omitempty" yaml:"confirm_index,omitempty"`
	RejectIndex   *int        `json:"rejectIndex,omitempty" yaml:"reject_index,omitempty"`
	TouchType     TouchMode   `json:"touchType,omitempty" yaml:"touch_type,omitempty"`
	Time          int64       `json:"time" yaml:"time"`
	IsReversal    bool        `json:"isReversal" yaml:"is_reversal"`
}

// RetestMachine tracks one broken level from the breakout to a terminal
// state. It is not safe for concurrent use.
type RetestMachine struct {
	cfg     RetestConfig
	candles []models.Candle
	atr     indicators.Series
	setup   RetestSetup

	state      RetestState
	wickIndex  int
	closeIndex int
	retest     int
	touch      TouchMode
	terminalAt int
}

// NewRetestMachine creates a machine in the BREAKOUT_CONFIRMED state. cfg
// must already be normalized.
func NewRetestMachine(candles []models.Candle, atr indicators.Series, setup RetestSetup, cfg RetestConfig) *RetestMachine {
	return &RetestMachine{
		cfg:        cfg,
		candles:    candles,
		atr:        atr,
		setup:      setup,
		state:      StateBreakoutConfirmed,
		wickIndex:  -1,
		closeIndex: -1,
		retest:     -1,
		terminalAt: -1,
	}
}

// State returns the current state.
func (m *RetestMachine) State() RetestState {
	return m.state
}

// Window returns the inclusive bar range the search evaluates, clipped to
// the data.
func (m *RetestMachine) Window() (first, last int) {
	b := m.setup.BreakoutIndex
	first = b + m.cfg.MinBarsAfterBreakout
	last = b + m.cfg.MaxBarsToWaitRetest
	if last > len(m.candles)-1 {
		last = len(m.candles) - 1
	}
	return first, last
}

// Run steps the machine across its window and returns the terminal signal.
// Running out of window or data is a timeout.
func (m *RetestMachine) Run() RetestSignal {
	first, last := m.Window()
	m.state = StateAwaitingRetest
	for j := first; j <= last; j++ {
		if m.step(j).Terminal() {
			return m.signal()
		}
	}
	m.state = StateRejectedTimeout
	m.terminalAt = last
	return m.signal()
}

// beyond is the signed distance of price past the level in the breakout
// direction.
func (m *RetestMachine) beyond(price float64) float64 {
	return (price - m.setup.Level) * m.setup.Side.sign()
}

// step evaluates bar j and returns the resulting state. Invalidation is
// checked first, then confirmation, then touches.
func (m *RetestMachine) step(j int) RetestState {
	atr, ok := m.atr.At(j)
	if !ok || j < 1 {
		return m.state
	}
	c := m.candles[j]

	if m.beyond(c.Close) < -m.cfg.InvalidAtrMult*atr {
		m.state = StateRejectedInvalidation
		m.terminalAt = j
		return m.state
	}

	prev := m.candles[j-1].Close
	if m.beyond(c.Close) > m.cfg.ConfirmAtrMult*atr && m.beyond(c.Close) > m.beyond(prev) {
		if r, kind, ok := m.qualifyingTouch(); ok && m.stable(r, j) {
			m.state = StateConfirmed
			m.retest = r
			m.touch = kind
			m.terminalAt = j
			return m.state
		}
	}

	m.recordTouch(j, atr)
	return m.state
}

func (m *RetestMachine) recordTouch(j int, atr float64) {
	c := m.candles[j]
	tol := m.cfg.RetestAtrMult * atr

	extreme := c.Low
	if m.setup.Side == SideShort {
		extreme = c.High
	}

	wick := m.beyond(extreme) <= tol && m.beyond(c.Close) >= -tol && m.beyond(extreme) >= -2*tol
	closeTouch := math.Abs(m.beyond(c.Close)) <= tol

	if wick && m.wickIndex < 0 {
		m.wickIndex = j
	}
	if closeTouch && m.closeIndex < 0 {
		m.closeIndex = j
	}
	if m.wickIndex >= 0 || m.closeIndex >= 0 {
		m.state = StateRetestTouched
	}
}

// qualifyingTouch returns the touch accepted by the touch mode. Touches are
// recorded after the confirmation check, so any recorded touch precedes the
// bar being evaluated.
func (m *RetestMachine) qualifyingTouch() (int, TouchMode, bool) {
	switch m.cfg.TouchMode {
	case TouchWick:
		if m.wickIndex >= 0 {
			return m.wickIndex, TouchWick, true
		}
	case TouchClose:
		if m.closeIndex >= 0 {
			return m.closeIndex, TouchClose, true
		}
	default:
		if m.closeIndex >= 0 {
			return m.closeIndex, TouchClose, true
		}
		if m.wickIndex >= 0 {
			return m.wickIndex, TouchWick, true
		}
	}
	return -1, "", false
}

// stable reports whether the StabilityBars closes after the retest, up to
// and including bar j, held the breakout side of the level.
func (m *RetestMachine) stable(retest, j int) bool {
	for k := retest + 1; k <= retest+m.cfg.StabilityBars && k <= j; k++ {
		if m.beyond(m.candles[k].Close) < 0 {
			return false
		}
	}
	return true
}

func (m *RetestMachine) signal() RetestSignal {
	s := RetestSignal{
		Kind:          m.state,
		Side:          m.setup.Side,
		Level:         m.setup.Level,
		PivotIndex:    m.setup.PivotIndex,
		PivotType:     m.setup.PivotType,
		BreakoutIndex: m.setup.BreakoutIndex,
		IsReversal:    m.setup.IsReversal,
	}
	at := m.terminalAt
	if at >= 0 && at < len(m.candles) {
		s.Time = m.candles[at].Time
	}
	if m.state == StateConfirmed {
		s.ConfirmIndex = intPtr(at)
		s.RetestIndex = intPtr(m.retest)
		s.TouchType = m.touch
		return s
	}
	s.RejectIndex = intPtr(at)
	switch {
	case m.closeIndex >= 0:
		s.RetestIndex = intPtr(m.closeIndex)
		s.TouchType = TouchClose
	case m.wickIndex >= 0:
		s.RetestIndex = intPtr(m.wickIndex)
		s.TouchType = TouchWick
	}
	return s
}

func intPtr(v int) *int {
	return &v
}

// RetestDetector finds pivot levels broken in the context of the local trend
// and follows each through the retest machine.
type RetestDetector struct {
	cfg      RetestConfig
	observer Observer
}

// NewRetestDetector creates a retest detector. The config is normalized and
// validated before any scan.
func NewRetestDetector(cfg RetestConfig, opts ...Option) (*RetestDetector, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	return &RetestDetector{cfg: cfg, observer: o.observer}, nil
}

// Name returns the detector name.
func (d *RetestDetector) Name() string {
	return d.cfg.Name
}

// Config returns the normalized configuration.
func (d *RetestDetector) Config() RetestConfig {
	return d.cfg
}

// Detect returns a pattern for every CONFIRMED retest, subject to the
// minimum gap between emitted patterns. Fewer than MinCandles bars yield an
// empty result.
func (d *RetestDetector) Detect(candles []models.Candle) ([]analysis.Pattern, error) {
	start := time.Now()
	d.observer.ScanStarted(d.cfg.Name, len(candles))

	asm := NewAssembler(d.cfg.Name, d.cfg.Assembler, d.observer)
	if len(candles) < d.cfg.MinCandles {
		d.observer.InsufficientData(d.cfg.Name, len(candles), d.cfg.MinCandles)
		d.observer.ScanFinished(d.cfg.Name, 0, time.Since(start))
		return asm.Patterns(), nil
	}

	atr := d.atr(candles)
	for _, sig := range d.scan(candles, atr) {
		if sig.Kind != StateConfirmed {
			continue
		}
		asm.Add(d.pattern(candles, atr, sig))
	}

	patterns := asm.Patterns()
	d.observer.ScanFinished(d.cfg.Name, len(patterns), time.Since(start))
	return patterns, nil
}

// Signals returns every terminal signal, rejections included, in scan order.
func (d *RetestDetector) Signals(candles []models.Candle) []RetestSignal {
	if len(candles) < d.cfg.MinCandles {
		d.observer.InsufficientData(d.cfg.Name, len(candles), d.cfg.MinCandles)
		return []RetestSignal{}
	}
	return d.scan(candles, d.atr(candles))
}

// Resolve runs the retest machine for one setup.
func (d *RetestDetector) Resolve(candles []models.Candle, atr indicators.Series, setup RetestSetup) RetestSignal {
	return NewRetestMachine(candles, atr, setup, d.cfg).Run()
}

func (d *RetestDetector) atr(candles []models.Candle) indicators.Series {
	series, err := indicators.NewATRWithSmoothing(d.cfg.ATRPeriod, d.cfg.ATRSmoothing).Calculate(candles)
	if err != nil {
		return indicators.Undefined(len(candles))
	}
	return series
}

// scan walks the bars in ascending order. At each bar the local trend picks
// the passes: UP runs LONG continuation and SHORT reversal, DOWN runs SHORT
// continuation and LONG reversal, NEUTRAL runs nothing. A pivot is consumed
// by the first breakout through it.
func (d *RetestDetector) scan(candles []models.Candle, atr indicators.Series) []RetestSignal {
	highs, lows := FindPivots(candles, d.cfg.PivotLeft, d.cfg.PivotRight)
	consumed := map[PivotType]map[int]bool{
		PivotTypeHigh: {},
		PivotTypeLow:  {},
	}

	first := d.cfg.TrendLookback - 1
	if atr.Start() > first {
		first = atr.Start()
	}
	if first < 1 {
		first = 1
	}

	signals := []RetestSignal{}
	for i := first; i < len(candles); i++ {
		var passes []RetestSetup
		switch DetectLocalTrend(candles, i, d.cfg.TrendLookback, d.cfg.TrendSwing) {
		case TrendUp:
			passes = []RetestSetup{
				{Side: SideLong, PivotType: PivotTypeHigh},
				{Side: SideShort, PivotType: PivotTypeLow, IsReversal: true},
			}
		case TrendDown:
			passes = []RetestSetup{
				{Side: SideShort, PivotType: PivotTypeLow},
				{Side: SideLong, PivotType: PivotTypeHigh, IsReversal: true},
			}
		default:
			continue
		}

		for _, pass := range passes {
			if pass.IsReversal && d.cfg.DisableReversal {
				continue
			}
			if !pass.IsReversal && d.cfg.DisableContinuation {
				continue
			}
			pivots := highs
			if pass.PivotType == PivotTypeLow {
				pivots = lows
			}
			setup, ok := d.breakout(candles, atr, pivots, consumed[pass.PivotType], i, pass)
			if !ok {
				continue
			}
			if !d.continuationHolds(candles, atr, setup) {
				continue
			}
			sig := d.Resolve(candles, atr, setup)
			d.observer.RetestResolved(d.cfg.Name, sig)
			signals = append(signals, sig)
		}
	}
	return signals
}

// breakout reports whether bar i closes beyond the latest confirmed pivot
// by more than BreakoutAtrMult ATRs while bar i-1 did not.
func (d *RetestDetector) breakout(candles []models.Candle, atr indicators.Series, pivots []Pivot, consumed map[int]bool, i int, pass RetestSetup) (RetestSetup, bool) {
	p, ok := LastPivotBeforeIndex(pivots, i-d.cfg.PivotRight-1)
	if !ok || i-p.Index > d.cfg.MaxPivotAge || consumed[p.Index] {
		return RetestSetup{}, false
	}
	atrI, ok := atr.At(i)
	if !ok {
		return RetestSetup{}, false
	}

	s := pass.Side.sign()
	through := (candles[i].Close - p.Price) * s
	before := (candles[i-1].Close - p.Price) * s
	if through <= d.cfg.BreakoutAtrMult*atrI || before > d.cfg.BreakoutAtrMult*atrI {
		return RetestSetup{}, false
	}

	consumed[p.Index] = true
	pass.Level = p.Price
	pass.PivotIndex = p.Index
	pass.BreakoutIndex = i
	return pass, true
}

// continuationHolds requires the MinBarsAfterBreakout bars after the
// breakout to exist and close beyond the level plus the retest tolerance on
// the breakout side.
func (d *RetestDetector) continuationHolds(candles []models.Candle, atr indicators.Series, setup RetestSetup) bool {
	s := setup.Side.sign()
	for k := setup.BreakoutIndex + 1; k <= setup.BreakoutIndex+d.cfg.MinBarsAfterBreakout; k++ {
		if k >= len(candles) {
			return false
		}
		atrK, ok := atr.At(k)
		if !ok {
			return false
		}
		if (candles[k].Close-setup.Level)*s <= d.cfg.RetestAtrMult*atrK {
			return false
		}
	}
	return true
}

// pattern converts a CONFIRMED signal. Entry is the confirming close; the
// stop is the further of StopAtrMult ATRs past the level and the retest
// extreme; the target is RewardRisk times the risk.
func (d *RetestDetector) pattern(candles []models.Candle, atr indicators.Series, sig RetestSignal) analysis.Pattern {
	confirm := *sig.ConfirmIndex
	retest := *sig.RetestIndex
	s := sig.Side.sign()
	atrC, _ := atr.At(confirm)

	entry := candles[confirm].Close
	window := candles[retest : confirm+1]
	var stop float64
	if sig.Side == SideLong {
		stop = math.Min(sig.Level-d.cfg.StopAtrMult*atrC, indicators.LowestLow(window))
	} else {
		stop = math.Max(sig.Level+d.cfg.StopAtrMult*atrC, indicators.HighestHigh(window))
	}
	risk := (entry - stop) * s
	exit := entry + s*d.cfg.RewardRisk*risk

	p := analysis.Pattern{
		Type:          analysis.PatternTypeRetest,
		Direction:     sig.Side.Direction(),
		StartIndex:    sig.PivotIndex,
		EndIndex:      confirm,
		ExpectedEntry: entry,
		ExpectedExit:  exit,
		StopLoss:      stop,
		Metadata: analysis.Metadata{
			Quality:    d.quality(candles, atrC, sig),
			Detector:   d.cfg.Name,
			IsReversal: sig.IsReversal,
			Indices: map[string]int{
				analysis.IndexPivot:    sig.PivotIndex,
				analysis.IndexBreakout: sig.BreakoutIndex,
				analysis.IndexRetest:   retest,
				analysis.IndexConfirm:  confirm,
			},
			Scores: map[string]float64{
				"level": sig.Level,
			},
		},
	}

	kind := "continuation"
	if sig.IsReversal {
		kind = "reversal"
	}
	word := "resistance"
	if sig.PivotType == PivotTypeLow {
		word = "support"
	}
	p.Metadata.Description = fmt.Sprintf("Retest %s: broke %s at %.2f, %s touch at bar %d, confirmed at bar %d",
		kind, word, sig.Level, string(sig.TouchType), retest, confirm)
	p.Metadata.Hint = fmt.Sprintf("Broken %s now acts as %s", word, flipped(word))
	return p
}

// quality scores the touch type (30), confirmation strength (25), trend
// context (25) and how quickly the retest came (20).
func (d *RetestDetector) quality(candles []models.Candle, atr float64, sig RetestSignal) float64 {
	touch := 20.0
	if sig.TouchType == TouchClose {
		touch = 30
	}

	strength := 0.0
	if atr > 0 {
		past := (candles[*sig.ConfirmIndex].Close - sig.Level) * sig.Side.sign()
		strength = clamp01(past / atr / 1.5)
	}

	context := 25.0
	if sig.IsReversal {
		context = 15
	}

	speed := 1.0
	if span := d.cfg.MaxBarsToWaitRetest - d.cfg.MinBarsAfterBreakout; span > 0 {
		waited := *sig.RetestIndex - sig.BreakoutIndex - d.cfg.MinBarsAfterBreakout
		speed = clamp01(1 - float64(waited)/float64(span))
	}

	return touch + 25*strength + context + 20*speed
}

func flipped(word string) string {
	if word == "resistance" {
		return "support"
	}
	return "resistance"
}
