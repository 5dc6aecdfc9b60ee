// Package normalize converts adapter-native rows into canonical records:
// locale numeric coercion, period alignment, and declared unit conversion.
// Anything ambiguous is rejected and logged, never guessed.
package normalize

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/painel-gv/indicadores/internal/config"
	"github.com/painel-gv/indicadores/internal/model"
	"github.com/painel-gv/indicadores/internal/source"
)

// Rejection records one row the normalizer refused, for the run report.
type Rejection struct {
	Row    source.Row
	Reason string
}

// Records builds canonical records from a resolved payload.
//
// Each row is coerced independently; a bad row is dropped with a warning and
// the rest of the batch continues. Suppressed source values become tombstones
// (nil value) so a confirmed gap is distinguishable from a never-fetched
// period. When a source repeats a period, the last row wins and the earlier
// one is counted as rejected.
func Records(payload *source.Payload, key string, ind config.Indicator, entry config.ChainEntry, municipalityCode string, rank int) ([]model.Record, []Rejection) {
	log := zap.L().With(
		zap.String("indicator", key),
		zap.String("source", payload.Source),
	)

	var rejections []Rejection
	reject := func(row source.Row, reason string) {
		rejections = append(rejections, Rejection{Row: row, Reason: reason})
		log.Warn("normalize: row rejected",
			zap.String("reason", reason),
			zap.String("year", row.Year),
			zap.String("value", row.Value),
		)
	}

	byPeriod := make(map[model.Period]model.Record, len(payload.Rows))
	for _, row := range payload.Rows {
		period, err := ParsePeriod(row.Year, row.Month)
		if err != nil {
			reject(row, err.Error())
			continue
		}

		factor, err := unitFactor(row, entry, ind)
		if err != nil {
			reject(row, err.Error())
			continue
		}

		rec := model.Record{
			MunicipalityCode: municipalityCode,
			IndicatorKey:     key,
			Source:           payload.Source,
			Period:           period,
			Unit:             ind.Unit,
			PriorityRank:     rank,
		}

		value, err := ParseNumber(row.Value)
		switch {
		case errors.Is(err, ErrSuppressed):
			// Tombstone: the source confirmed the period has no value.
		case err != nil:
			reject(row, err.Error())
			continue
		default:
			rec.Value = model.Float(value * factor)
		}

		if prev, dup := byPeriod[period]; dup {
			rejections = append(rejections, Rejection{Reason: "duplicate period " + period.String()})
			log.Warn("normalize: duplicate period, keeping last row",
				zap.String("period", period.String()),
				zap.String("replaced", prev.Key()),
			)
		}
		byPeriod[period] = rec
	}

	records := make([]model.Record, 0, len(byPeriod))
	for _, rec := range byPeriod {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Period.Before(records[j].Period)
	})

	return records, rejections
}

// unitFactor resolves the multiplier that brings a row's value into the
// indicator's canonical unit. The source's unit comes from the row itself or
// the chain entry's declaration; a unit with no declared conversion is a
// mismatch and the row is rejected.
func unitFactor(row source.Row, entry config.ChainEntry, ind config.Indicator) (float64, error) {
	unit := row.Unit
	if unit == "" {
		unit = entry.Unit
	}
	if unit == "" || unit == ind.Unit {
		return 1, nil
	}
	if f, ok := ind.Conversions[unit]; ok {
		return f, nil
	}
	return 0, errUnitMismatch(unit, ind.Unit)
}

func errUnitMismatch(got, want string) error {
	return &unitMismatchError{got: got, want: want}
}

type unitMismatchError struct {
	got, want string
}

func (e *unitMismatchError) Error() string {
	return "unit mismatch: source reports " + e.got + ", canonical is " + e.want + " and no conversion is declared"
}
