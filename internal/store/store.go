// Package store persists canonical indicator records with natural-key
// deduplication and priority-aware conflict resolution, and exposes the
// read surface consumed by the reporting layer.
package store

import (
	"context"

	"github.com/painel-gv/indicadores/internal/model"
)

// Store is the persistence interface for the reconciliation pipeline.
type Store interface {
	// Upsert writes one indicator batch in a single transaction. On a
	// natural-key collision the incoming record replaces the stored one only
	// when its priority rank is equal or better (numerically lower) than the
	// best rank already stored for that period; otherwise the write is
	// skipped and counted as rejected. A failed batch leaves the store
	// untouched.
	Upsert(ctx context.Context, records []model.Record) (model.UpsertResult, error)

	// GetSeries returns the stored series for an indicator ordered by
	// period. With source == "" it reconciles across sources, returning the
	// best-priority record per period.
	GetSeries(ctx context.Context, indicatorKey, source string) ([]model.Record, error)

	// LastObservations returns the most recent stored period per
	// (indicator, source) pair, for the freshness auditor.
	LastObservations(ctx context.Context) ([]model.LastObservation, error)

	// Runs.
	CreateRun(ctx context.Context) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, report *model.RunReport) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}

// reconcileSeries folds rows ordered by (year, month, priority_rank, source)
// into one record per period, keeping the best-priority row.
func reconcileSeries(rows []model.Record) []model.Record {
	out := rows[:0:0]
	for _, r := range rows {
		if n := len(out); n > 0 && out[n-1].Period == r.Period {
			continue // earlier row had better or equal rank by sort order
		}
		out = append(out, r)
	}
	return out
}

// foldLastObservations reduces rows ordered by (indicator, source, year,
// month) into the latest period per pair.
func foldLastObservations(rows []model.LastObservation) []model.LastObservation {
	out := rows[:0:0]
	for _, r := range rows {
		if n := len(out); n > 0 &&
			out[n-1].IndicatorKey == r.IndicatorKey && out[n-1].Source == r.Source {
			out[n-1] = r // later period by sort order
			continue
		}
		out = append(out, r)
	}
	return out
}
