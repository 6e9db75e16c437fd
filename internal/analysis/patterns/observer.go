package patterns

import (
	"time"

	"github.com/rs/zerolog"

	"chartdrill/internal/analysis"
	apperrors "chartdrill/internal/errors"
)

// Observer receives progress notifications from the detectors. Detector
// results never depend on what an observer does. Implementations shared
// between concurrent scans must be safe for concurrent use.
type Observer interface {
	ScanStarted(detector string, candles int)
	InsufficientData(detector string, have, need int)
	ZoneFound(detector string, zone Zone)
	BreakoutConfirmed(detector string, breakout Breakout)
	RetestResolved(detector string, signal RetestSignal)
	PatternEmitted(detector string, pattern analysis.Pattern)
	PatternSuppressed(detector string, pattern analysis.Pattern, reason string)
	ScanFinished(detector string, patterns int, elapsed time.Duration)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) ScanStarted(string, int)                                {}
func (NopObserver) InsufficientData(string, int, int)                      {}
func (NopObserver) ZoneFound(string, Zone)                                 {}
func (NopObserver) BreakoutConfirmed(string, Breakout)                     {}
func (NopObserver) RetestResolved(string, RetestSignal)                    {}
func (NopObserver) PatternEmitted(string, analysis.Pattern)                {}
func (NopObserver) PatternSuppressed(string, analysis.Pattern, string)     {}
func (NopObserver) ScanFinished(string, int, time.Duration)                {}

// MultiObserver fans notifications out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) ScanStarted(d string, n int) {
	for _, o := range m {
		o.ScanStarted(d, n)
	}
}

func (m MultiObserver) InsufficientData(d string, have, need int) {
	for _, o := range m {
		o.InsufficientData(d, have, need)
	}
}

func (m MultiObserver) ZoneFound(d string, z Zone) {
	for _, o := range m {
		o.ZoneFound(d, z)
	}
}

func (m MultiObserver) BreakoutConfirmed(d string, b Breakout) {
	for _, o := range m {
		o.BreakoutConfirmed(d, b)
	}
}

func (m MultiObserver) RetestResolved(d string, s RetestSignal) {
	for _, o := range m {
		o.RetestResolved(d, s)
	}
}

func (m MultiObserver) PatternEmitted(d string, p analysis.Pattern) {
	for _, o := range m {
		o.PatternEmitted(d, p)
	}
}

func (m MultiObserver) PatternSuppressed(d string, p analysis.Pattern, reason string) {
	for _, o := range m {
		o.PatternSuppressed(d, p, reason)
	}
}

func (m MultiObserver) ScanFinished(d string, n int, elapsed time.Duration) {
	for _, o := range m {
		o.ScanFinished(d, n, elapsed)
	}
}

// LogObserver writes notifications to a zerolog logger. Per-zone and
// per-signal events go to debug; scan summaries go to info.
type LogObserver struct {
	logger zerolog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger zerolog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (l *LogObserver) ScanStarted(detector string, candles int) {
	l.logger.Debug().Str("detector", detector).Int("candles", candles).Msg("Scan started")
}

func (l *LogObserver) InsufficientData(detector string, have, need int) {
	l.logger.Warn().
		Err(apperrors.ErrInsufficientData).
		Str("detector", detector).
		Int("have", have).
		Int("need", need).
		Msg("Insufficient candles, skipping scan")
}

func (l *LogObserver) ZoneFound(detector string, z Zone) {
	l.logger.Debug().
		Str("detector", detector).
		Int("start", z.StartIndex).
		Int("end", z.EndIndex).
		Float64("range_pct", z.RangePct).
		Float64("pressure", z.Pressure).
		Msg("Zone found")
}

func (l *LogObserver) BreakoutConfirmed(detector string, b Breakout) {
	l.logger.Debug().
		Str("detector", detector).
		Int("index", b.Index).
		Str("direction", string(b.Direction)).
		Float64("close", b.Close).
		Msg("Breakout confirmed")
}

func (l *LogObserver) RetestResolved(detector string, s RetestSignal) {
	l.logger.Debug().
		Str("detector", detector).
		Str("kind", string(s.Kind)).
		Str("side", string(s.Side)).
		Float64("level", s.Level).
		Int("breakout", s.BreakoutIndex).
		Bool("reversal", s.IsReversal).
		Msg("Retest resolved")
}

func (l *LogObserver) PatternEmitted(detector string, p analysis.Pattern) {
	l.logger.Info().
		Str("detector", detector).
		Str("type", string(p.Type)).
		Str("direction", string(p.Direction)).
		Int("start", p.StartIndex).
		Int("end", p.EndIndex).
		Float64("quality", p.Metadata.Quality).
		Msg("Pattern emitted")
}

func (l *LogObserver) PatternSuppressed(detector string, p analysis.Pattern, reason string) {
	l.logger.Debug().
		Str("detector", detector).
		Int("start", p.StartIndex).
		Int("end", p.EndIndex).
		Str("reason", reason).
		Msg("Pattern suppressed")
}

func (l *LogObserver) ScanFinished(detector string, patterns int, elapsed time.Duration) {
	l.logger.Info().
		Str("detector", detector).
		Int("patterns", patterns).
		Dur("elapsed", elapsed).
		Msg("Scan finished")
}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return NopObserver{}
	}
	return o
}
