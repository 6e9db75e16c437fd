// Package scan runs several pattern detectors over the same candles in
// parallel.
package scan

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"chartdrill/internal/analysis"
	apperrors "chartdrill/internal/errors"
	"chartdrill/internal/models"
)

// Result holds the output of one detector.
type Result struct {
	Detector string             `json:"detector" yaml:"detector"`
	Patterns []analysis.Pattern `json:"patterns" yaml:"patterns"`
	Elapsed  time.Duration      `json:"elapsedNs" yaml:"elapsed_ns"`
	Err      error              `json:"-" yaml:"-"`
}

// Runner runs registered detectors concurrently using a bounded goroutine
// pool. Detectors share the candle slice read-only and each owns its
// configuration.
type Runner struct {
	workers   int
	logger    zerolog.Logger
	detectors []analysis.PatternDetector
	mu        sync.RWMutex
}

// NewRunner creates a runner with the specified number of workers.
func NewRunner(workers int, logger zerolog.Logger) *Runner {
	if workers <= 0 {
		workers = 4
	}
	return &Runner{
		workers: workers,
		logger:  logger,
	}
}

// Register adds a detector. Results come back in registration order.
func (r *Runner) Register(d analysis.PatternDetector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors = append(r.detectors, d)
}

// Detectors returns the names of the registered detectors.
func (r *Runner) Detectors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.detectors))
	for i, d := range r.detectors {
		names[i] = d.Name()
	}
	return names
}

type indexed struct {
	index  int
	result Result
}

// Run executes every registered detector on candles. A detector that fails
// or is skipped because ctx is done still gets a Result carrying its error;
// the returned error joins all detector errors.
func (r *Runner) Run(ctx context.Context, candles []models.Candle) ([]Result, error) {
	r.mu.RLock()
	detectors := make([]analysis.PatternDetector, len(r.detectors))
	copy(detectors, r.detectors)
	r.mu.RUnlock()

	if len(detectors) == 0 {
		return []Result{}, nil
	}

	p := pool.NewWithResults[indexed]().
		WithContext(ctx).
		WithMaxGoroutines(r.workers).
		WithCollectErrored()

	for i, d := range detectors {
		i, d := i, d
		p.Go(func(ctx context.Context) (indexed, error) {
			res := Result{Detector: d.Name()}
			if err := ctx.Err(); err != nil {
				res.Err = err
				return indexed{i, res}, err
			}

			start := time.Now()
			patterns, err := d.Detect(candles)
			res.Elapsed = time.Since(start)
			res.Patterns = patterns
			if err != nil {
				res.Err = apperrors.Wrapf(err, "detector %s", d.Name())
				r.logger.Error().Err(err).Str("detector", d.Name()).Msg("Detector failed")
				return indexed{i, res}, res.Err
			}

			r.logger.Debug().
				Str("detector", d.Name()).
				Int("patterns", len(patterns)).
				Dur("elapsed", res.Elapsed).
				Msg("Detector finished")
			return indexed{i, res}, nil
		})
	}

	out, err := p.Wait()
	sort.Slice(out, func(a, b int) bool { return out[a].index < out[b].index })

	results := make([]Result, len(out))
	for i, o := range out {
		results[i] = o.result
	}
	return results, err
}

// Merge flattens results into one slice ordered by end index, then start
// index, then detector registration order.
func Merge(results []Result) []analysis.Pattern {
	var all []analysis.Pattern
	for _, res := range results {
		all = append(all, res.Patterns...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].EndIndex != all[j].EndIndex {
			return all[i].EndIndex < all[j].EndIndex
		}
		return all[i].StartIndex < all[j].StartIndex
	})
	return all
}
