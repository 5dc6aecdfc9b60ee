// Package derive computes calculated indicators from reconciled stored
// series. Derived records carry their own provenance tag and the weakest
// priority rank, so they can never displace an official observation.
package derive

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/painel-gv/indicadores/internal/config"
	"github.com/painel-gv/indicadores/internal/model"
	"github.com/painel-gv/indicadores/internal/store"
)

// Deriver computes the catalog's derived indicators.
type Deriver struct {
	catalog  *config.Catalog
	store    store.Store
	muniCode string
}

// New creates a Deriver.
func New(catalog *config.Catalog, st store.Store, municipalityCode string) *Deriver {
	return &Deriver{catalog: catalog, store: st, muniCode: municipalityCode}
}

// Source indicator keys the derivations read.
const (
	keyPIBTotal     = "PIB_TOTAL"
	keyPopulacao    = "POPULACAO"
	keyPIBPerCapita = "PIB_PER_CAPITA"
	keyPIBGrowth    = "PIB_CRESCIMENTO"
)

// Run computes every derived indicator declared in the catalog and upserts
// the results. Periods lacking an input value are skipped, never estimated.
func (d *Deriver) Run(ctx context.Context) (model.UpsertResult, error) {
	var total model.UpsertResult

	for _, key := range d.catalog.Keys() {
		ind, _ := d.catalog.Get(key)
		if !ind.Derived {
			continue
		}

		records, err := d.compute(ctx, key, ind)
		if err != nil {
			return total, err
		}
		if len(records) == 0 {
			zap.L().Warn("derive: no computable periods", zap.String("indicator", key))
			continue
		}

		res, err := d.store.Upsert(ctx, records)
		if err != nil {
			return total, err
		}
		zap.L().Info("derive: indicator computed",
			zap.String("indicator", key),
			zap.Int("periods", len(records)),
		)
		total.Add(res)
	}
	return total, nil
}

func (d *Deriver) compute(ctx context.Context, key string, ind config.Indicator) ([]model.Record, error) {
	switch key {
	case keyPIBPerCapita:
		return d.perCapita(ctx, key, ind)
	case keyPIBGrowth:
		return d.growth(ctx, key, ind)
	default:
		return nil, eris.Errorf("derive: no derivation defined for %s", key)
	}
}

// perCapita divides GDP by population per year. GDP series are published in
// thousands of reais, so the numerator is scaled up before dividing.
func (d *Deriver) perCapita(ctx context.Context, key string, ind config.Indicator) ([]model.Record, error) {
	pib, err := d.annualValues(ctx, keyPIBTotal)
	if err != nil {
		return nil, err
	}
	pop, err := d.annualValues(ctx, keyPopulacao)
	if err != nil {
		return nil, err
	}

	var records []model.Record
	for year, gdp := range pib {
		people, ok := pop[year]
		if !ok || people == 0 {
			continue
		}
		records = append(records, d.record(key, ind, year, gdp*1000/people))
	}
	sortByYear(records)
	return records, nil
}

// growth computes year-over-year GDP growth in percent. The first year of the
// series has no predecessor and is omitted.
func (d *Deriver) growth(ctx context.Context, key string, ind config.Indicator) ([]model.Record, error) {
	pib, err := d.annualValues(ctx, keyPIBTotal)
	if err != nil {
		return nil, err
	}

	var records []model.Record
	for year, gdp := range pib {
		prev, ok := pib[year-1]
		if !ok || prev == 0 {
			continue
		}
		records = append(records, d.record(key, ind, year, (gdp-prev)/prev*100))
	}
	sortByYear(records)
	return records, nil
}

// annualValues reads the reconciled series for an indicator and returns the
// non-tombstone annual values by year.
func (d *Deriver) annualValues(ctx context.Context, key string) (map[int]float64, error) {
	series, err := d.store.GetSeries(ctx, key, "")
	if err != nil {
		return nil, eris.Wrapf(err, "derive: read %s", key)
	}

	values := make(map[int]float64, len(series))
	for _, rec := range series {
		if rec.Tombstone() || rec.Period.Month != 0 {
			continue
		}
		values[rec.Period.Year] = *rec.Value
	}
	return values, nil
}

func (d *Deriver) record(key string, ind config.Indicator, year int, value float64) model.Record {
	return model.Record{
		MunicipalityCode: d.muniCode,
		IndicatorKey:     key,
		Source:           model.DerivedSource,
		Period:           model.Period{Year: year},
		Value:            model.Float(value),
		Unit:             ind.Unit,
		PriorityRank:     model.DerivedRank,
	}
}

func sortByYear(records []model.Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Period.Before(records[j].Period)
	})
}
