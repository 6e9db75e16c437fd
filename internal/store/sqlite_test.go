package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"chartdrill/internal/analysis"
	"chartdrill/internal/analysis/patterns"
	apperrors "chartdrill/internal/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveRunAssignsID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &Run{Symbol: "BTCUSD", Source: "btc.csv", Detectors: []string{"strict", "retest"}, Candles: 500, Patterns: 3}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if run.ID == "" || run.CreatedAt.IsZero() {
		t.Fatalf("expected ID and timestamp, got %+v", run)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Symbol != "BTCUSD" || got.Candles != 500 || !reflect.DeepEqual(got.Detectors, run.Detectors) {
		t.Errorf("unexpected run: %+v", got)
	}

	if _, err := store.GetRun(ctx, "nope"); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("expected ErrDataNotFound, got %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, sym := range []string{"AAA", "BBB", "AAA"} {
		run := &Run{ID: sym + string(rune('0'+i)), Symbol: sym, Source: "x.csv", CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "AAA2" || runs[2].ID != "AAA0" {
		t.Fatalf("unexpected order: %+v", runs)
	}

	runs, _ = store.ListRuns(ctx, RunFilter{Symbol: "AAA", Limit: 1})
	if len(runs) != 1 || runs[0].ID != "AAA2" {
		t.Errorf("filtered: %+v", runs)
	}

	runs, _ = store.ListRuns(ctx, RunFilter{Since: base.Add(90 * time.Minute)})
	if len(runs) != 1 {
		t.Errorf("since filter: %+v", runs)
	}
}

func TestSignalsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &Run{Symbol: "X", Source: "x.csv"}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	retest, confirm, reject := 64, 66, 80
	signals := []patterns.RetestSignal{
		{
			Kind: patterns.StateRejectedTimeout, Side: patterns.SideShort, Level: 98.5,
			PivotIndex: 60, PivotType: patterns.PivotTypeLow, BreakoutIndex: 70, RejectIndex: &reject, Time: 4200,
		},
		{
			Kind: patterns.StateConfirmed, Side: patterns.SideLong, Level: 101.25,
			PivotIndex: 52, PivotType: patterns.PivotTypeHigh, BreakoutIndex: 59,
			RetestIndex: &retest, ConfirmIndex: &confirm, TouchType: patterns.TouchClose, Time: 3960, IsReversal: true,
		},
	}
	if err := store.SaveSignals(ctx, run.ID, signals); err != nil {
		t.Fatalf("SaveSignals: %v", err)
	}

	got, err := store.GetSignals(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetSignals: %v", err)
	}
	want := []patterns.RetestSignal{signals[1], signals[0]}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("signals differ:\n got %+v\nwant %+v", got, want)
	}

	empty, err := store.GetSignals(ctx, "other")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %v %v", empty, err)
	}
}

func TestClosedStoreReportsDatabaseError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	store.Close()

	if err := store.SaveRun(ctx, &Run{Symbol: "X"}); !errors.Is(err, apperrors.ErrDatabaseError) {
		t.Errorf("SaveRun: expected ErrDatabaseError, got %v", err)
	}
	if _, err := store.ListRuns(ctx, RunFilter{}); !errors.Is(err, apperrors.ErrDatabaseError) {
		t.Errorf("ListRuns: expected ErrDatabaseError, got %v", err)
	}
	if _, err := store.GetRun(ctx, "missing"); errors.Is(err, apperrors.ErrDataNotFound) || !errors.Is(err, apperrors.ErrDatabaseError) {
		t.Errorf("GetRun: expected ErrDatabaseError, got %v", err)
	}
}

// Property: saving patterns and reading them back yields the same records
// in end-index order.
func TestProperty_PatternRoundTrip(t *testing.T) {
	store := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	patternGen := gopter.CombineGens(
		gen.IntRange(0, 400),
		gen.IntRange(1, 40),
		gen.Float64Range(10, 5000),
		gen.Float64Range(0, 100),
		gen.Bool(),
	).Map(func(v []interface{}) analysis.Pattern {
		start := v[0].(int)
		entry := v[2].(float64)
		dir := analysis.DirectionUp
		if v[4].(bool) {
			dir = analysis.DirectionDown
		}
		return analysis.Pattern{
			Type:          analysis.PatternTypeBreakout,
			Direction:     dir,
			StartIndex:    start,
			EndIndex:      start + v[1].(int),
			ExpectedEntry: entry,
			ExpectedExit:  entry + dir.Sign()*5,
			StopLoss:      entry - dir.Sign()*2.5,
			Metadata: analysis.Metadata{
				Quality:     v[3].(float64),
				Description: "zone breakout",
				Detector:    "strict",
				Indices:     map[string]int{analysis.IndexBreakout: start + v[1].(int)},
				Scores:      map[string]float64{"pressure": v[3].(float64)},
			},
		}
	})

	properties.Property("patterns round-trip", prop.ForAll(
		func(ps []analysis.Pattern) bool {
			ctx := context.Background()
			run := &Run{Symbol: "PROP", Source: "gen"}
			if err := store.SaveRun(ctx, run); err != nil {
				return false
			}
			if err := store.SavePatterns(ctx, run.ID, ps); err != nil {
				return false
			}
			got, err := store.GetPatterns(ctx, run.ID)
			if err != nil || len(got) != len(ps) {
				return false
			}

			remaining := make([]analysis.Pattern, len(ps))
			copy(remaining, ps)
			for i, p := range got {
				if i > 0 && (got[i-1].EndIndex > p.EndIndex ||
					(got[i-1].EndIndex == p.EndIndex && got[i-1].StartIndex > p.StartIndex)) {
					return false
				}
				found := false
				for j, r := range remaining {
					if reflect.DeepEqual(p, r) {
						remaining = append(remaining[:j], remaining[j+1:]...)
						found = true
						break
					}
				}
				if !found {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(8, patternGen),
	))

	properties.TestingRun(t)
}
