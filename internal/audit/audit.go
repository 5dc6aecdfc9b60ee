// Package audit classifies stored indicators as current or stale against
// per-category recency thresholds.
package audit

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/painel-gv/indicadores/internal/config"
	"github.com/painel-gv/indicadores/internal/model"
)

// Observer is the slice of the store the auditor reads.
type Observer interface {
	LastObservations(ctx context.Context) ([]model.LastObservation, error)
}

// Auditor evaluates freshness for every stored indicator.
type Auditor struct {
	store     Observer
	catalog   *config.Catalog
	freshness config.FreshnessConfig
	now       func() time.Time
}

// New creates an Auditor. The clock is fixed at time.Now; tests override it
// with WithClock.
func New(store Observer, catalog *config.Catalog, freshness config.FreshnessConfig) *Auditor {
	return &Auditor{store: store, catalog: catalog, freshness: freshness, now: time.Now}
}

// WithClock replaces the auditor's clock and returns the auditor.
func (a *Auditor) WithClock(now func() time.Time) *Auditor {
	a.now = now
	return a
}

// Report audits every indicator that has at least one stored observation.
// Per indicator the latest period wins; on a tie across sources the
// best-priority source is reported. An indicator whose last period's year is
// within the category threshold of the current year is current, inclusive:
// with a one-year threshold in 2026, data from 2025 still passes.
func (a *Auditor) Report(ctx context.Context) ([]model.IndicatorFreshness, error) {
	obs, err := a.store.LastObservations(ctx)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]model.LastObservation, len(obs))
	for _, o := range obs {
		best, ok := latest[o.IndicatorKey]
		switch {
		case !ok:
			latest[o.IndicatorKey] = o
		case best.LastPeriod.Before(o.LastPeriod):
			latest[o.IndicatorKey] = o
		case best.LastPeriod == o.LastPeriod && o.PriorityRank < best.PriorityRank:
			latest[o.IndicatorKey] = o
		}
	}

	currentYear := a.now().Year()
	report := make([]model.IndicatorFreshness, 0, len(latest))
	for key, o := range latest {
		category := ""
		if ind, ok := a.catalog.Get(key); ok {
			category = ind.Category
		}
		threshold := a.freshness.ThresholdYears(category)

		status := model.FreshnessStale
		if o.LastPeriod.Year >= currentYear-threshold {
			status = model.FreshnessCurrent
		}

		if status == model.FreshnessStale {
			zap.L().Warn("audit: indicator is stale",
				zap.String("indicator", key),
				zap.String("last_period", o.LastPeriod.String()),
				zap.Int("threshold_years", threshold),
			)
		}

		report = append(report, model.IndicatorFreshness{
			IndicatorKey:   key,
			Source:         o.Source,
			Category:       category,
			LastPeriod:     o.LastPeriod,
			ThresholdYears: threshold,
			Status:         status,
		})
	}

	sort.Slice(report, func(i, j int) bool {
		return report[i].IndicatorKey < report[j].IndicatorKey
	})
	return report, nil
}
