// Package store provides the scan journal interface and its implementations.
package store

import (
	"context"
	"time"

	"chartdrill/internal/analysis"
	"chartdrill/internal/analysis/patterns"
)

// Journal records the results of CLI scans. Detectors never read it.
type Journal interface {
	// Runs
	SaveRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)

	// Results
	SavePatterns(ctx context.Context, runID string, patterns []analysis.Pattern) error
	GetPatterns(ctx context.Context, runID string) ([]analysis.Pattern, error)
	SaveSignals(ctx context.Context, runID string, signals []patterns.RetestSignal) error
	GetSignals(ctx context.Context, runID string) ([]patterns.RetestSignal, error)

	// Lifecycle
	Close() error
}

// Run describes one scan over one candle file.
type Run struct {
	ID        string    `json:"id" yaml:"id"`
	Symbol    string    `json:"symbol" yaml:"symbol"`
	Source    string    `json:"source" yaml:"source"`
	Detectors []string  `json:"detectors" yaml:"detectors"`
	Candles   int       `json:"candles" yaml:"candles"`
	Patterns  int       `json:"patterns" yaml:"patterns"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
}

// RunFilter represents filters for listing runs.
type RunFilter struct {
	Symbol string
	Since  time.Time
	Limit  int
}
