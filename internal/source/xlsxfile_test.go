package source

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/painel-gv/indicadores/internal/config"
	"github.com/painel-gv/indicadores/internal/resilience"
)

func writeXLSX(t *testing.T, dir, name, sheetName string, rows [][]string) {
	t.Helper()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
	require.NoError(t, f.Save(filepath.Join(dir, name)))
}

func xlsxRequest(glob, sheet string) Request {
	return Request{
		IndicatorKey:     "EMPRESAS_ATIVAS",
		MunicipalityCode: "3127701",
		Entry:            config.ChainEntry{Adapter: config.AdapterXLSX, Glob: glob, Sheet: sheet},
	}
}

func TestXLSXFetch(t *testing.T) {
	dir := t.TempDir()
	writeXLSX(t, dir, "sebrae_empresas.xlsx", "Empresas", [][]string{
		{"Ano", "Valor"},
		{"2022", "14.210"},
		{"2023", "14.877"},
	})

	payload, err := NewXLSXAdapter(dir).Fetch(context.Background(), xlsxRequest("sebrae*.xlsx", "Empresas"))
	require.NoError(t, err)

	assert.Equal(t, XLSXSource, payload.Source)
	require.Len(t, payload.Rows, 2)
	assert.Equal(t, Row{Year: "2022", Value: "14.210"}, payload.Rows[0])
}

func TestXLSXFetchFirstSheetByDefault(t *testing.T) {
	dir := t.TempDir()
	writeXLSX(t, dir, "drop.xlsx", "Planilha1", [][]string{
		{"2021", "10"},
	})

	payload, err := NewXLSXAdapter(dir).Fetch(context.Background(), xlsxRequest("drop*.xlsx", ""))
	require.NoError(t, err)
	require.Len(t, payload.Rows, 1)
}

func TestXLSXFetchMissingSheetPermanent(t *testing.T) {
	dir := t.TempDir()
	writeXLSX(t, dir, "drop.xlsx", "Planilha1", [][]string{{"2021", "10"}})

	_, err := NewXLSXAdapter(dir).Fetch(context.Background(), xlsxRequest("drop*.xlsx", "Empresas"))
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
}

func TestXLSXFetchMissingFileUnavailable(t *testing.T) {
	_, err := NewXLSXAdapter(t.TempDir()).Fetch(context.Background(), xlsxRequest("none*.xlsx", ""))
	assert.ErrorIs(t, err, resilience.ErrUnavailable)
}
