package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/painel-gv/indicadores/internal/config"
	"github.com/painel-gv/indicadores/internal/model"
	"github.com/painel-gv/indicadores/internal/resilience"
	"github.com/painel-gv/indicadores/internal/resolve"
	"github.com/painel-gv/indicadores/internal/source"
	"github.com/painel-gv/indicadores/internal/store"
)

const muni = "3127701"

type fakeAdapter struct {
	name string
	fn   func(req source.Request) (*source.Payload, error)
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) Fetch(ctx context.Context, req source.Request) (*source.Payload, error) {
	return f.fn(req)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestPipeline(t *testing.T, catalog *config.Catalog, reg *source.Registry, st store.Store) *Pipeline {
	t.Helper()
	retry := resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     1.1,
	}
	resolver := resolve.New(reg, resolve.Options{Retry: &retry})
	return New(catalog, resolver, st, muni, 2)
}

func TestSyncFallbackServesBackupSource(t *testing.T) {
	catalog := &config.Catalog{Indicators: map[string]config.Indicator{
		"MATRICULAS_TOTAL": {
			Name: "Matrículas", Category: "Educação", Unit: "Matrículas",
			Chain: []config.ChainEntry{
				{Adapter: "api"},
				{Adapter: "file"},
			},
		},
	}}

	reg := source.NewRegistry()
	reg.Register("api", &fakeAdapter{name: "IBGE_SIDRA", fn: func(source.Request) (*source.Payload, error) {
		return nil, resilience.ErrUnavailable
	}})
	reg.Register("file", &fakeAdapter{name: "ARQUIVO_CSV", fn: func(source.Request) (*source.Payload, error) {
		return &source.Payload{
			Source: "ARQUIVO_CSV",
			Rows:   []source.Row{{Year: "2023", Value: "58400"}},
		}, nil
	}})

	st := newTestStore(t)
	run, err := newTestPipeline(t, catalog, reg, st).Sync(context.Background(), nil)
	require.NoError(t, err)

	require.NotNil(t, run.Report)
	assert.Equal(t, 1, run.Report.Served)
	assert.Zero(t, run.Report.Gaps)

	series, err := st.GetSeries(context.Background(), "MATRICULAS_TOTAL", "")
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "ARQUIVO_CSV", series[0].Source)
	assert.Equal(t, 2, series[0].PriorityRank)
	require.NotNil(t, series[0].Value)
	assert.InDelta(t, 58400, *series[0].Value, 1e-9)
}

func TestSyncExhaustedChainIsGapNotFabrication(t *testing.T) {
	catalog := &config.Catalog{Indicators: map[string]config.Indicator{
		"PIB_TOTAL": {
			Name: "PIB", Category: "Economia", Unit: "R$ mil",
			Chain: []config.ChainEntry{{Adapter: "api"}, {Adapter: "file"}},
		},
	}}

	timeout := resilience.NewTransientError(errors.New("i/o timeout"), 0)
	reg := source.NewRegistry()
	reg.Register("api", &fakeAdapter{name: "IBGE_SIDRA", fn: func(source.Request) (*source.Payload, error) {
		return nil, timeout
	}})
	reg.Register("file", &fakeAdapter{name: "ARQUIVO_CSV", fn: func(source.Request) (*source.Payload, error) {
		return nil, timeout
	}})

	st := newTestStore(t)
	run, err := newTestPipeline(t, catalog, reg, st).Sync(context.Background(), nil)
	require.NoError(t, err, "a gap is a reported outcome, not a run failure")

	require.NotNil(t, run.Report)
	assert.Equal(t, 1, run.Report.Gaps)
	assert.Zero(t, run.Report.Served)
	require.Len(t, run.Report.Results, 1)
	assert.True(t, run.Report.Results[0].Gap)

	series, err := st.GetSeries(context.Background(), "PIB_TOTAL", "")
	require.NoError(t, err)
	assert.Empty(t, series, "no placeholder values for missing data")
}

func TestSyncMixedOutcomes(t *testing.T) {
	catalog := &config.Catalog{Indicators: map[string]config.Indicator{
		"A": {Name: "a", Unit: "u", Chain: []config.ChainEntry{{Adapter: "ok"}}},
		"B": {Name: "b", Unit: "u", Chain: []config.ChainEntry{{Adapter: "gone"}}},
		"C": {Name: "c", Unit: "u", Chain: []config.ChainEntry{{Adapter: "ok"}}},
	}}

	reg := source.NewRegistry()
	reg.Register("ok", &fakeAdapter{name: "SRC", fn: func(req source.Request) (*source.Payload, error) {
		return &source.Payload{Source: "SRC", Rows: []source.Row{{Year: "2023", Value: "1"}}}, nil
	}})
	reg.Register("gone", &fakeAdapter{name: "GONE", fn: func(source.Request) (*source.Payload, error) {
		return nil, resilience.ErrUnavailable
	}})

	st := newTestStore(t)
	run, err := newTestPipeline(t, catalog, reg, st).Sync(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, run.Report.Served)
	assert.Equal(t, 1, run.Report.Gaps)
	assert.Equal(t, model.RunStatusComplete, run.Status)

	// Results arrive from concurrent workers but are reported in key order.
	require.Len(t, run.Report.Results, 3)
	assert.Equal(t, "A", run.Report.Results[0].IndicatorKey)
	assert.Equal(t, "B", run.Report.Results[1].IndicatorKey)
	assert.Equal(t, "C", run.Report.Results[2].IndicatorKey)
}

func TestSyncSelectedIndicatorsOnly(t *testing.T) {
	catalog := &config.Catalog{Indicators: map[string]config.Indicator{
		"A": {Name: "a", Unit: "u", Chain: []config.ChainEntry{{Adapter: "ok"}}},
		"B": {Name: "b", Unit: "u", Chain: []config.ChainEntry{{Adapter: "ok"}}},
	}}

	var fetched []string
	reg := source.NewRegistry()
	reg.Register("ok", &fakeAdapter{name: "SRC", fn: func(req source.Request) (*source.Payload, error) {
		fetched = append(fetched, req.IndicatorKey)
		return &source.Payload{Source: "SRC", Rows: []source.Row{{Year: "2023", Value: "1"}}}, nil
	}})

	st := newTestStore(t)
	run, err := newTestPipeline(t, catalog, reg, st).Sync(context.Background(), []string{"A"})
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, fetched)
	assert.Equal(t, 1, run.Report.Served)
}

func TestSyncRunPersisted(t *testing.T) {
	catalog := &config.Catalog{Indicators: map[string]config.Indicator{
		"A": {Name: "a", Unit: "u", Chain: []config.ChainEntry{{Adapter: "ok"}}},
	}}

	reg := source.NewRegistry()
	reg.Register("ok", &fakeAdapter{name: "SRC", fn: func(source.Request) (*source.Payload, error) {
		return &source.Payload{Source: "SRC", Rows: []source.Row{{Year: "2023", Value: "1"}}}, nil
	}})

	st := newTestStore(t)
	run, err := newTestPipeline(t, catalog, reg, st).Sync(context.Background(), nil)
	require.NoError(t, err)

	runs, err := st.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	require.NotNil(t, runs[0].Report)
	assert.Equal(t, 1, runs[0].Report.Served)
}

// failingStore wraps a Store and fails every Upsert.
type failingStore struct {
	store.Store
}

func (f *failingStore) Upsert(ctx context.Context, recs []model.Record) (model.UpsertResult, error) {
	return model.UpsertResult{}, errors.New("disk full")
}

func TestSyncStoreFailureFailsRun(t *testing.T) {
	catalog := &config.Catalog{Indicators: map[string]config.Indicator{
		"A": {Name: "a", Unit: "u", Chain: []config.ChainEntry{{Adapter: "ok"}}},
	}}

	reg := source.NewRegistry()
	reg.Register("ok", &fakeAdapter{name: "SRC", fn: func(source.Request) (*source.Payload, error) {
		return &source.Payload{Source: "SRC", Rows: []source.Row{{Year: "2023", Value: "1"}}}, nil
	}})

	st := &failingStore{Store: newTestStore(t)}
	run, err := newTestPipeline(t, catalog, reg, st).Sync(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
}

func TestSyncNormalizerRejectsAllRowsIsGap(t *testing.T) {
	catalog := &config.Catalog{Indicators: map[string]config.Indicator{
		"A": {Name: "a", Unit: "u", Chain: []config.ChainEntry{{Adapter: "junk"}}},
	}}

	reg := source.NewRegistry()
	reg.Register("junk", &fakeAdapter{name: "SRC", fn: func(source.Request) (*source.Payload, error) {
		return &source.Payload{Source: "SRC", Rows: []source.Row{
			{Year: "Total", Value: "abc"},
		}}, nil
	}})

	st := newTestStore(t)
	run, err := newTestPipeline(t, catalog, reg, st).Sync(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, run.Report.Gaps)
	require.Len(t, run.Report.Results, 1)
	assert.Equal(t, 1, run.Report.Results[0].Dropped)
}
