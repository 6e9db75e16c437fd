// Package metrics records detector activity as Prometheus metrics.
package metrics

import (
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"chartdrill/internal/analysis"
	"chartdrill/internal/analysis/patterns"
)

// Recorder implements patterns.Observer using Prometheus. It registers on
// its own registry, never the global one.
type Recorder struct {
	registry     *prometheus.Registry
	scans        *prometheus.CounterVec
	insufficient *prometheus.CounterVec
	zones        *prometheus.CounterVec
	breakouts    *prometheus.CounterVec
	retests      *prometheus.CounterVec
	emitted      *prometheus.CounterVec
	suppressed   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

var _ patterns.Observer = (*Recorder)(nil)

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		scans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartdrill_scans_total",
				Help: "Total number of detector scans started",
			},
			[]string{"detector"},
		),
		insufficient: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartdrill_insufficient_data_total",
				Help: "Scans skipped because the candle count was below the detector minimum",
			},
			[]string{"detector"},
		),
		zones: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartdrill_zones_found_total",
				Help: "Consolidation zones handed to the breakout confirmer",
			},
			[]string{"detector"},
		),
		breakouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartdrill_breakouts_confirmed_total",
				Help: "Confirmed zone breakouts",
			},
			[]string{"detector", "direction"},
		),
		retests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartdrill_retest_outcomes_total",
				Help: "Terminal retest outcomes",
			},
			[]string{"detector", "kind", "side"},
		),
		emitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartdrill_patterns_emitted_total",
				Help: "Patterns emitted",
			},
			[]string{"detector", "type"},
		),
		suppressed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartdrill_patterns_suppressed_total",
				Help: "Patterns dropped by the minimum gap rule",
			},
			[]string{"detector"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chartdrill_scan_duration_seconds",
				Help:    "Duration of detector scans in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"detector"},
		),
	}
}

// Registry returns the registry the recorder's collectors live on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ScanStarted(detector string, _ int) {
	r.scans.WithLabelValues(detector).Inc()
}

func (r *Recorder) InsufficientData(detector string, _, _ int) {
	r.insufficient.WithLabelValues(detector).Inc()
}

func (r *Recorder) ZoneFound(detector string, _ patterns.Zone) {
	r.zones.WithLabelValues(detector).Inc()
}

func (r *Recorder) BreakoutConfirmed(detector string, b patterns.Breakout) {
	r.breakouts.WithLabelValues(detector, string(b.Direction)).Inc()
}

func (r *Recorder) RetestResolved(detector string, s patterns.RetestSignal) {
	r.retests.WithLabelValues(detector, string(s.Kind), string(s.Side)).Inc()
}

func (r *Recorder) PatternEmitted(detector string, p analysis.Pattern) {
	r.emitted.WithLabelValues(detector, string(p.Type)).Inc()
}

func (r *Recorder) PatternSuppressed(detector string, _ analysis.Pattern, _ string) {
	r.suppressed.WithLabelValues(detector).Inc()
}

func (r *Recorder) ScanFinished(detector string, _ int, elapsed time.Duration) {
	r.duration.WithLabelValues(detector).Observe(elapsed.Seconds())
}

// Sample is one gathered counter value.
type Sample struct {
	Name   string            `json:"name" yaml:"name"`
	Labels map[string]string `json:"labels" yaml:"labels"`
	Value  float64           `json:"value" yaml:"value"`
}

// Key returns name{label=value,...} with labels in sorted order.
func (s Sample) Key() string {
	if len(s.Labels) == 0 {
		return s.Name
	}
	keys := make([]string, 0, len(s.Labels))
	for k := range s.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s.Labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Snapshot gathers every counter and the sample count of every histogram.
func (r *Recorder) Snapshot() ([]Sample, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			s := Sample{Name: mf.GetName(), Labels: labels(m)}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				s.Value = m.GetCounter().GetValue()
			case dto.MetricType_HISTOGRAM:
				s.Name += "_count"
				s.Value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			samples = append(samples, s)
		}
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].Key() < samples[j].Key() })
	return samples, nil
}

func labels(m *dto.Metric) map[string]string {
	out := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}
