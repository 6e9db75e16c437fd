// Package analysis provides the pattern records produced by the detectors and
// the interface every detector satisfies.
package analysis

import (
	"chartdrill/internal/models"
)

// PatternDetector defines the interface for pattern detection.
type PatternDetector interface {
	Name() string
	Detect(candles []models.Candle) ([]Pattern, error)
}

// PatternType represents the type of pattern.
type PatternType string

const (
	PatternTypeBreakout PatternType = "breakout"
	PatternTypeRetest   PatternType = "retest"
	PatternTypeFlag     PatternType = "flag"
)

// Direction is the expected direction of the trade a pattern sets up.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// Sign returns +1 for UP and -1 for DOWN.
func (d Direction) Sign() float64 {
	if d == DirectionDown {
		return -1
	}
	return 1
}

// Pattern is a detected formation with the levels a consumer needs to place
// an entry, a stop and a target. Patterns are never mutated after creation.
type Pattern struct {
	Type          PatternType `json:"type" yaml:"type"`
	Direction     Direction   `json:"direction" yaml:"direction"`
	StartIndex    int         `json:"startIndex" yaml:"start_index"`
	EndIndex      int         `json:"endIndex" yaml:"end_index"`
	ExpectedEntry float64     `json:"expectedEntry" yaml:"expected_entry"`
	ExpectedExit  float64     `json:"expectedExit" yaml:"expected_exit"`
	StopLoss      float64     `json:"stopLoss" yaml:"stop_loss"`
	Metadata      Metadata    `json:"metadata" yaml:"metadata"`
}

// Metadata carries the score, the human-readable text and the
// detector-specific bar indices of a pattern.
type Metadata struct {
	Quality     float64            `json:"quality" yaml:"quality"`
	Description string             `json:"description" yaml:"description"`
	Hint        string             `json:"hint" yaml:"hint"`
	Detector    string             `json:"detector,omitempty" yaml:"detector,omitempty"`
	IsReversal  bool               `json:"isReversal,omitempty" yaml:"is_reversal,omitempty"`
	Indices     map[string]int     `json:"indices,omitempty" yaml:"indices,omitempty"`
	Scores      map[string]float64 `json:"scores,omitempty" yaml:"scores,omitempty"`
}

// Index keys used in Metadata.Indices.
const (
	IndexZoneStart = "zoneStart"
	IndexZoneEnd   = "zoneEnd"
	IndexBreakout  = "breakout"
	IndexPole      = "poleStart"
	IndexPivot     = "pivot"
	IndexRetest    = "retest"
	IndexConfirm   = "confirm"
)

// RiskReward returns reward over risk measured from the expected entry, or 0
// when the stop sits on the entry.
func (p Pattern) RiskReward() float64 {
	risk := (p.ExpectedEntry - p.StopLoss) * p.Direction.Sign()
	if risk <= 0 {
		return 0
	}
	return (p.ExpectedExit - p.ExpectedEntry) * p.Direction.Sign() / risk
}
