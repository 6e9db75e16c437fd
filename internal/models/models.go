// Package models provides domain models for the pattern scanner.
package models

import (
	"fmt"
	"time"
)

// Candle represents OHLCV data for one bar. Time is unix seconds.
type Candle struct {
	Time   int64   `csv:"time" json:"time" yaml:"time"`
	Open   float64 `csv:"open" json:"open" yaml:"open"`
	High   float64 `csv:"high" json:"high" yaml:"high"`
	Low    float64 `csv:"low" json:"low" yaml:"low"`
	Close  float64 `csv:"close" json:"close" yaml:"close"`
	Volume float64 `csv:"volume" json:"volume" yaml:"volume"`
}

// Timestamp returns the bar time as a UTC time.Time.
func (c Candle) Timestamp() time.Time {
	return time.Unix(c.Time, 0).UTC()
}

// Range returns high minus low.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// IsBullish reports whether the bar closed above its open.
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// Validate checks the OHLC invariants. Detectors never call this; it belongs
// to whatever collaborator ingests bars before handing them to the core.
func (c Candle) Validate() error {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("non-positive price (o=%g h=%g l=%g c=%g)", c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume < 0 {
		return fmt.Errorf("negative volume %g", c.Volume)
	}
	if c.High < c.Low {
		return fmt.Errorf("high %g below low %g", c.High, c.Low)
	}
	if c.High < c.Open || c.High < c.Close {
		return fmt.Errorf("high %g below open/close", c.High)
	}
	if c.Low > c.Open || c.Low > c.Close {
		return fmt.Errorf("low %g above open/close", c.Low)
	}
	return nil
}

// HasVolume reports whether any bar in the slice carries volume.
func HasVolume(candles []Candle) bool {
	for _, c := range candles {
		if c.Volume > 0 {
			return true
		}
	}
	return false
}
