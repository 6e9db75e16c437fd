package patterns

import (
	"fmt"

	"github.com/shopspring/decimal"

	"chartdrill/internal/analysis"
)

// Assembler collects the patterns of one run. A pattern whose index range
// comes within MinGap bars of an already accepted pattern is suppressed, so
// the earliest-found candidate wins.
type Assembler struct {
	detector string
	cfg      AssemblerConfig
	observer Observer
	tick     decimal.Decimal
	patterns []analysis.Pattern
}

// NewAssembler creates an assembler for one detection run.
func NewAssembler(detector string, cfg AssemblerConfig, observer Observer) *Assembler {
	a := &Assembler{
		detector: detector,
		cfg:      cfg,
		observer: observerOrNop(observer),
		patterns: []analysis.Pattern{},
	}
	if cfg.TickSize > 0 {
		a.tick = decimal.NewFromFloat(cfg.TickSize)
	}
	return a
}

// Add accepts p unless it conflicts with an accepted pattern. It reports
// whether p was accepted.
func (a *Assembler) Add(p analysis.Pattern) bool {
	for _, q := range a.patterns {
		if gap := rangeGap(p, q); gap < a.cfg.MinGap {
			a.observer.PatternSuppressed(a.detector, p,
				fmt.Sprintf("within %d bars of %s pattern at [%d,%d]", gap, q.Type, q.StartIndex, q.EndIndex))
			return false
		}
	}

	if !a.tick.IsZero() {
		p.ExpectedEntry = a.round(p.ExpectedEntry)
		p.ExpectedExit = a.round(p.ExpectedExit)
		p.StopLoss = a.round(p.StopLoss)
	}

	a.patterns = append(a.patterns, p)
	a.observer.PatternEmitted(a.detector, p)
	return true
}

// Patterns returns the accepted patterns in acceptance order. The result is
// never nil.
func (a *Assembler) Patterns() []analysis.Pattern {
	out := make([]analysis.Pattern, len(a.patterns))
	copy(out, a.patterns)
	return out
}

func (a *Assembler) round(price float64) float64 {
	f, _ := decimal.NewFromFloat(price).Div(a.tick).Round(0).Mul(a.tick).Float64()
	return f
}

// rangeGap returns the number of bars between two index ranges; overlapping
// ranges give a negative gap.
func rangeGap(p, q analysis.Pattern) int {
	if p.StartIndex >= q.EndIndex {
		return p.StartIndex - q.EndIndex
	}
	if q.StartIndex >= p.EndIndex {
		return q.StartIndex - p.EndIndex
	}
	a := p.EndIndex - q.StartIndex
	b := q.EndIndex - p.StartIndex
	if a < b {
		return -a
	}
	return -b
}
