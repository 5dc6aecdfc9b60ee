// Package pipeline orchestrates one acquisition run: resolve each catalog
// indicator through its fallback chain, normalize the payload, and reconcile
// the records into the store, with bounded concurrency across indicators.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/painel-gv/indicadores/internal/config"
	"github.com/painel-gv/indicadores/internal/model"
	"github.com/painel-gv/indicadores/internal/normalize"
	"github.com/painel-gv/indicadores/internal/resolve"
	"github.com/painel-gv/indicadores/internal/store"
)

// Pipeline runs catalog indicators through resolve, normalize, and store.
type Pipeline struct {
	catalog  *config.Catalog
	resolver *resolve.Resolver
	store    store.Store
	muniCode string
	workers  int
}

// New creates a Pipeline. workers bounds how many indicator chains run
// concurrently; values below 1 fall back to 1.
func New(catalog *config.Catalog, resolver *resolve.Resolver, st store.Store, municipalityCode string, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		catalog:  catalog,
		resolver: resolver,
		store:    st,
		muniCode: municipalityCode,
		workers:  workers,
	}
}

// Sync executes one run over the given indicator keys (all non-derived
// catalog indicators when keys is empty) and persists the run record.
//
// One worker owns an indicator's whole chain, so fallback order inside a
// chain stays sequential while distinct indicators proceed in parallel. An
// exhausted chain or a failed adapter is an indicator-level outcome recorded
// in the report; only store failures abort the run.
func (p *Pipeline) Sync(ctx context.Context, keys []string) (*model.Run, error) {
	if len(keys) == 0 {
		keys = p.catalog.SyncKeys()
	}

	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("sync: run started",
		zap.Int("indicators", len(keys)),
		zap.Int("workers", p.workers),
	)

	started := time.Now()
	var mu sync.Mutex
	results := make([]model.IndicatorResult, 0, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, key := range keys {
		g.Go(func() error {
			res, err := p.syncIndicator(gctx, key)
			if err != nil {
				// Store-level failure: the run cannot produce a trustworthy
				// report, abort remaining work.
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}

	runErr := g.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].IndicatorKey < results[j].IndicatorKey
	})
	report := buildReport(results, time.Since(started))

	status := model.RunStatusComplete
	if runErr != nil {
		status = model.RunStatusFailed
	}
	if err := p.store.FinishRun(ctx, run.ID, status, report); err != nil {
		log.Error("sync: failed to persist run report", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	run.Status = status
	run.Report = report
	log.Info("sync: run finished",
		zap.String("status", string(status)),
		zap.Int("served", report.Served),
		zap.Int("gaps", report.Gaps),
		zap.Int("failed", report.Failed),
		zap.Int64("duration_ms", report.DurationMS),
	)
	return run, runErr
}

// syncIndicator resolves, normalizes, and stores one indicator. The returned
// error is non-nil only for store failures; acquisition problems are folded
// into the result.
func (p *Pipeline) syncIndicator(ctx context.Context, key string) (model.IndicatorResult, error) {
	result := model.IndicatorResult{IndicatorKey: key}

	ind, ok := p.catalog.Get(key)
	if !ok {
		result.Error = "indicator not in catalog"
		return result, nil
	}

	resolution, err := p.resolver.Resolve(ctx, key, ind, p.muniCode)
	if err != nil {
		if resolve.IsNoData(err) {
			result.Gap = true
			return result, nil
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Error = err.Error()
		return result, nil
	}

	entry := ind.Chain[resolution.Rank-1]
	records, rejections := normalize.Records(resolution.Payload, key, ind, entry, p.muniCode, resolution.Rank)

	result.Source = resolution.Source
	result.Rows = len(resolution.Payload.Rows)
	result.Dropped = len(rejections)

	if len(records) == 0 {
		// Every row was rejected. Same outcome as an empty source.
		result.Gap = true
		return result, nil
	}

	upserted, err := p.store.Upsert(ctx, records)
	if err != nil {
		return result, err
	}
	result.Upserted = upserted
	return result, nil
}

func buildReport(results []model.IndicatorResult, elapsed time.Duration) *model.RunReport {
	report := &model.RunReport{
		Results:    results,
		DurationMS: elapsed.Milliseconds(),
	}
	for _, r := range results {
		switch {
		case r.Error != "":
			report.Failed++
		case r.Gap:
			report.Gaps++
		default:
			report.Served++
		}
	}
	return report
}
