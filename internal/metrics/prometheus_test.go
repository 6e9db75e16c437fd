package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"chartdrill/internal/analysis"
	"chartdrill/internal/analysis/patterns"
	"chartdrill/internal/models"
)

func TestRecorderCounts(t *testing.T) {
	r := New()

	r.ScanStarted("strict", 100)
	r.ScanStarted("strict", 100)
	r.InsufficientData("retest", 10, 50)
	r.ZoneFound("strict", patterns.Zone{})
	r.BreakoutConfirmed("strict", patterns.Breakout{Direction: analysis.DirectionUp})
	r.RetestResolved("retest", patterns.RetestSignal{Kind: patterns.StateConfirmed, Side: patterns.SideLong})
	r.PatternEmitted("strict", analysis.Pattern{Type: analysis.PatternTypeBreakout})
	r.PatternSuppressed("strict", analysis.Pattern{}, "gap")
	r.ScanFinished("strict", 1, 15*time.Millisecond)

	if got := testutil.ToFloat64(r.scans.WithLabelValues("strict")); got != 2 {
		t.Errorf("scans = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.insufficient.WithLabelValues("retest")); got != 1 {
		t.Errorf("insufficient = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.breakouts.WithLabelValues("strict", "UP")); got != 1 {
		t.Errorf("breakouts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.retests.WithLabelValues("retest", "CONFIRMED", "LONG")); got != 1 {
		t.Errorf("retests = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(r.duration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestRecorderSnapshot(t *testing.T) {
	r := New()
	r.ScanStarted("strict", 10)
	r.PatternEmitted("strict", analysis.Pattern{Type: analysis.PatternTypeFlag})
	r.ScanFinished("strict", 1, time.Millisecond)

	samples, err := r.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	got := map[string]float64{}
	for _, s := range samples {
		got[s.Key()] = s.Value
	}

	want := map[string]float64{
		"chartdrill_scans_total{detector=strict}":                   1,
		"chartdrill_patterns_emitted_total{detector=strict,type=flag}": 1,
		"chartdrill_scan_duration_seconds_count{detector=strict}":   1,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v (all: %v)", k, got[k], v, got)
		}
	}
}

func TestRecorderAsDetectorObserver(t *testing.T) {
	r := New()
	det, err := patterns.NewPresetDetector(patterns.PresetStrict, patterns.WithObserver(r))
	if err != nil {
		t.Fatalf("NewPresetDetector: %v", err)
	}

	if _, err := det.Detect(make([]models.Candle, 5)); err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if got := testutil.ToFloat64(r.insufficient.WithLabelValues("strict")); got != 1 {
		t.Errorf("insufficient = %v, want 1", got)
	}
}
