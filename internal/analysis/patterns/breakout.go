package patterns

import (
	"fmt"
	"math"

	"chartdrill/internal/analysis"
	"chartdrill/internal/analysis/indicators"
	"chartdrill/internal/models"
)

// Breakout is a confirmed exit from a zone.
type Breakout struct {
	Zone        Zone               `json:"zone"`
	Index       int                `json:"index"`
	Direction   analysis.Direction `json:"direction"`
	Close       float64            `json:"close"`
	Level       float64            `json:"level"` // broken boundary
	Buffer      float64            `json:"buffer"`
	Entry       float64            `json:"entry"`
	Exit        float64            `json:"exit"`
	Stop        float64            `json:"stop"`
	Quality     float64            `json:"quality"`
	VolumeRatio float64            `json:"volumeRatio"` // 0 when volume is absent
	IsFlag      bool               `json:"isFlag"`
	PoleStart   int                `json:"poleStart"`
	PoleHeight  float64            `json:"poleHeight"`
}

// ConfirmBreakout searches the Lookahead bars after zone.EndIndex for the
// first candle that closes beyond a boundary plus buffer and passes the
// size, volume and follow-through tests. Bars failing a test are skipped.
func ConfirmBreakout(candles []models.Candle, zone Zone, cfg ConfirmConfig) (Breakout, bool) {
	buffer := breakoutBuffer(zone, cfg)
	useVolume := !cfg.SkipVolume && zone.MeanVolume > 0 && models.HasVolume(candles)

	last := zone.EndIndex + cfg.Lookahead
	if last > len(candles)-1 {
		last = len(candles) - 1
	}

	for i := zone.EndIndex + 1; i <= last; i++ {
		c := candles[i]

		var dir analysis.Direction
		switch {
		case c.Close > zone.High+buffer:
			dir = analysis.DirectionUp
		case c.Close < zone.Low-buffer:
			dir = analysis.DirectionDown
		default:
			continue
		}

		// Size
		if c.Range() < cfg.SizeAtrMult*zone.MeanATR {
			continue
		}

		// Volume
		ratio := 0.0
		if zone.MeanVolume > 0 {
			ratio = c.Volume / zone.MeanVolume
		}
		if useVolume && ratio < cfg.VolumeMult {
			continue
		}

		// Follow-through
		if !cfg.SkipFollowThrough && !followsThrough(candles, i, zone, dir, cfg) {
			continue
		}

		return newBreakout(zone, i, c, dir, buffer, ratio, useVolume, cfg), true
	}
	return Breakout{}, false
}

func breakoutBuffer(zone Zone, cfg ConfirmConfig) float64 {
	mid := (zone.High + zone.Low) / 2
	return math.Max(cfg.MinBufferPct*mid, cfg.BufferAtrMult*zone.MeanATR)
}

// followsThrough checks the bars after a breakout that exist in the data.
func followsThrough(candles []models.Candle, index int, zone Zone, dir analysis.Direction, cfg ConfirmConfig) bool {
	allowed := cfg.MaxRetrace * zone.Height()
	for k := index + 1; k <= index+cfg.FollowThroughBars && k < len(candles); k++ {
		cl := candles[k].Close
		if dir == analysis.DirectionUp && cl < zone.High-allowed {
			return false
		}
		if dir == analysis.DirectionDown && cl > zone.Low+allowed {
			return false
		}
	}
	return true
}

func newBreakout(zone Zone, index int, c models.Candle, dir analysis.Direction, buffer, ratio float64, useVolume bool, cfg ConfirmConfig) Breakout {
	sign := dir.Sign()
	b := Breakout{
		Zone:        zone,
		Index:       index,
		Direction:   dir,
		Close:       c.Close,
		Buffer:      buffer,
		Entry:       c.Close * (1 + sign*cfg.SlippagePct),
		Exit:        c.Close + sign*zone.Height()*cfg.MeasuredMove,
		VolumeRatio: ratio,
	}
	if dir == analysis.DirectionUp {
		b.Level = zone.High
		b.Stop = zone.Low - buffer
	} else {
		b.Level = zone.Low
		b.Stop = zone.High + buffer
	}
	b.Quality = breakoutQuality(zone, ratio, useVolume, cfg)
	return b
}

// breakoutQuality scores range tightness (40), zone height relative to ATR
// (30) and the volume spike (30), capped at QualityCap.
func breakoutQuality(zone Zone, ratio float64, useVolume bool, cfg ConfirmConfig) float64 {
	rangeScore := zone.Components.Range

	atrScore := 0.0
	if zone.MeanATR > 0 {
		atrScore = clamp01(1 - (zone.Height()/zone.MeanATR-1)/4)
	}

	volumeScore := 0.0
	if useVolume {
		volumeScore = clamp01((ratio - 1) / 2)
	}

	q := 40*rangeScore + 30*atrScore + 30*volumeScore
	return math.Min(q, cfg.QualityCap)
}

// applyFlag reclassifies a breakout as a flag when a pole of at least
// PoleMinAtr ATRs in the breakout direction ends at the zone start.
func applyFlag(candles []models.Candle, atr indicators.Series, b *Breakout, cfg FlagConfig) {
	if !cfg.DetectFlags {
		return
	}
	end := b.Zone.StartIndex
	start := end - cfg.PoleBars
	if start < 0 {
		return
	}
	atrAt, ok := atr.At(end)
	if !ok || atrAt <= 0 {
		return
	}
	pole := candles[end].Close - candles[start].Close
	if pole*b.Direction.Sign() <= 0 || math.Abs(pole) < cfg.PoleMinAtr*atrAt {
		return
	}
	b.IsFlag = true
	b.PoleStart = start
	b.PoleHeight = math.Abs(pole)
	b.Exit = b.Close + b.Direction.Sign()*b.PoleHeight
}

// breakoutPattern converts a breakout into the emitted record.
func breakoutPattern(detector string, b Breakout) analysis.Pattern {
	p := analysis.Pattern{
		Type:          analysis.PatternTypeBreakout,
		Direction:     b.Direction,
		StartIndex:    b.Zone.StartIndex,
		EndIndex:      b.Index,
		ExpectedEntry: b.Entry,
		ExpectedExit:  b.Exit,
		StopLoss:      b.Stop,
		Metadata: analysis.Metadata{
			Quality:  b.Quality,
			Detector: detector,
			Indices: map[string]int{
				analysis.IndexZoneStart: b.Zone.StartIndex,
				analysis.IndexZoneEnd:   b.Zone.EndIndex,
				analysis.IndexBreakout:  b.Index,
			},
			Scores: map[string]float64{
				"pressure":    b.Zone.Pressure,
				"rangePct":    b.Zone.RangePct,
				"symmetry":    b.Zone.Symmetry,
				"volumeRatio": b.VolumeRatio,
			},
		},
	}

	word := "resistance"
	if b.Direction == analysis.DirectionDown {
		word = "support"
	}

	if b.IsFlag {
		p.Type = analysis.PatternTypeFlag
		p.StartIndex = b.PoleStart
		p.Metadata.Indices[analysis.IndexPole] = b.PoleStart
		p.Metadata.Scores["poleHeight"] = b.PoleHeight
		p.Metadata.Description = fmt.Sprintf("Flag: %d-bar pause after a %.2f pole, broke %s at %.2f",
			b.Zone.Len(), b.PoleHeight, word, b.Level)
		p.Metadata.Hint = "Target projects the pole height from the breakout close"
		return p
	}

	p.Metadata.Description = fmt.Sprintf("Breakout: %d-bar range (%.2f%%) broke %s at %.2f",
		b.Zone.Len(), b.Zone.RangePct*100, word, b.Level)
	p.Metadata.Hint = "Stop sits beyond the opposite side of the range"
	return p
}
