package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/painel-gv/indicadores/internal/config"
	"github.com/painel-gv/indicadores/internal/model"
	"github.com/painel-gv/indicadores/internal/source"
)

const muni = "3127701"

func testIndicator() config.Indicator {
	return config.Indicator{
		Name:     "PIB Municipal",
		Category: "Economia",
		Unit:     "R$ mil",
		Conversions: map[string]float64{
			"R$": 0.001,
		},
	}
}

func TestRecords(t *testing.T) {
	payload := &source.Payload{
		Source: "IBGE_SIDRA",
		Rows: []source.Row{
			{Year: "2020", Value: "1.500.000"},
			{Year: "2021", Value: "1.650.123,45"},
		},
	}

	records, rejections := Records(payload, "PIB_TOTAL", testIndicator(), config.ChainEntry{}, muni, 1)
	require.Empty(t, rejections)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, muni, first.MunicipalityCode)
	assert.Equal(t, "PIB_TOTAL", first.IndicatorKey)
	assert.Equal(t, "IBGE_SIDRA", first.Source)
	assert.Equal(t, model.Period{Year: 2020}, first.Period)
	assert.Equal(t, "R$ mil", first.Unit)
	assert.Equal(t, 1, first.PriorityRank)
	require.NotNil(t, first.Value)
	assert.InDelta(t, 1500000, *first.Value, 1e-9)

	require.NotNil(t, records[1].Value)
	assert.InDelta(t, 1650123.45, *records[1].Value, 1e-6)
}

func TestRecordsSuppressedBecomesTombstone(t *testing.T) {
	payload := &source.Payload{
		Source: "IBGE_SIDRA",
		Rows: []source.Row{
			{Year: "2020", Value: "..."},
			{Year: "2021", Value: "100"},
		},
	}

	records, rejections := Records(payload, "PIB_TOTAL", testIndicator(), config.ChainEntry{}, muni, 1)
	require.Empty(t, rejections)
	require.Len(t, records, 2)

	assert.True(t, records[0].Tombstone())
	assert.False(t, records[1].Tombstone())
}

func TestRecordsBadRowDroppedRestKept(t *testing.T) {
	payload := &source.Payload{
		Source: "ARQUIVO_CSV",
		Rows: []source.Row{
			{Year: "2019-2020", Value: "100"}, // period range
			{Year: "2021", Value: "abc"},      // unparseable value
			{Year: "2022", Value: "200"},
		},
	}

	records, rejections := Records(payload, "PIB_TOTAL", testIndicator(), config.ChainEntry{}, muni, 2)
	assert.Len(t, rejections, 2)
	require.Len(t, records, 1)
	assert.Equal(t, model.Period{Year: 2022}, records[0].Period)
}

func TestRecordsUnitConversion(t *testing.T) {
	payload := &source.Payload{
		Source: "ARQUIVO_CSV",
		Rows: []source.Row{
			{Year: "2022", Value: "5.000.000", Unit: "R$"},
		},
	}

	records, rejections := Records(payload, "PIB_TOTAL", testIndicator(), config.ChainEntry{}, muni, 2)
	require.Empty(t, rejections)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Value)
	assert.InDelta(t, 5000, *records[0].Value, 1e-9)
	assert.Equal(t, "R$ mil", records[0].Unit)
}

func TestRecordsEntryUnitConversion(t *testing.T) {
	// Unit declared on the chain entry, not on the rows.
	payload := &source.Payload{
		Source: "ARQUIVO_CSV",
		Rows:   []source.Row{{Year: "2022", Value: "2.000"}},
	}
	entry := config.ChainEntry{Unit: "R$"}

	records, rejections := Records(payload, "PIB_TOTAL", testIndicator(), entry, muni, 2)
	require.Empty(t, rejections)
	require.Len(t, records, 1)
	assert.InDelta(t, 2, *records[0].Value, 1e-9)
}

func TestRecordsUndeclaredUnitRejected(t *testing.T) {
	payload := &source.Payload{
		Source: "ARQUIVO_CSV",
		Rows: []source.Row{
			{Year: "2022", Value: "100", Unit: "US$"},
		},
	}

	records, rejections := Records(payload, "PIB_TOTAL", testIndicator(), config.ChainEntry{}, muni, 2)
	assert.Empty(t, records)
	require.Len(t, rejections, 1)
	assert.Contains(t, rejections[0].Reason, "unit mismatch")
}

func TestRecordsDuplicatePeriodKeepsLast(t *testing.T) {
	payload := &source.Payload{
		Source: "ARQUIVO_CSV",
		Rows: []source.Row{
			{Year: "2022", Value: "100"},
			{Year: "2022", Value: "250"},
		},
	}

	records, rejections := Records(payload, "PIB_TOTAL", testIndicator(), config.ChainEntry{}, muni, 1)
	require.Len(t, records, 1)
	assert.Len(t, rejections, 1)
	assert.InDelta(t, 250, *records[0].Value, 1e-9)
}

func TestRecordsSortedByPeriod(t *testing.T) {
	payload := &source.Payload{
		Source: "ARQUIVO_CSV",
		Rows: []source.Row{
			{Year: "2022", Value: "3"},
			{Year: "2020", Value: "1"},
			{Year: "2021", Value: "2"},
		},
	}

	records, _ := Records(payload, "PIB_TOTAL", testIndicator(), config.ChainEntry{}, muni, 1)
	require.Len(t, records, 3)
	assert.Equal(t, 2020, records[0].Period.Year)
	assert.Equal(t, 2021, records[1].Period.Year)
	assert.Equal(t, 2022, records[2].Period.Year)
}
