package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/painel-gv/indicadores/internal/config"
	"github.com/painel-gv/indicadores/internal/resilience"
)

func csvRequest(glob string) Request {
	return Request{
		IndicatorKey:     "MATRICULAS_TOTAL",
		MunicipalityCode: "3127701",
		Entry:            config.ChainEntry{Adapter: config.AdapterCSV, Glob: glob},
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVFetchHeaderless(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "matriculas_2023.csv", "2023;58400\n2022;57911\n")

	payload, err := NewCSVAdapter(dir).Fetch(context.Background(), csvRequest("matriculas*.csv"))
	require.NoError(t, err)

	assert.Equal(t, CSVSource, payload.Source)
	require.Len(t, payload.Rows, 2)
	assert.Equal(t, Row{Year: "2023", Value: "58400"}, payload.Rows[0])
}

func TestCSVFetchWithHeader(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "rais.csv", "Ano;Mês;Valor;Unidade\n2023;5;61200;Vínculos\n")

	payload, err := NewCSVAdapter(dir).Fetch(context.Background(), csvRequest("rais*.csv"))
	require.NoError(t, err)

	require.Len(t, payload.Rows, 1)
	assert.Equal(t, Row{Year: "2023", Month: "5", Value: "61200", Unit: "Vínculos"}, payload.Rows[0])
}

func TestCSVFetchCommaDelimited(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "drop.csv", "ano,valor\n2021,100\n")

	payload, err := NewCSVAdapter(dir).Fetch(context.Background(), csvRequest("drop*.csv"))
	require.NoError(t, err)
	require.Len(t, payload.Rows, 1)
	assert.Equal(t, "100", payload.Rows[0].Value)
}

func TestCSVFetchLatin1(t *testing.T) {
	dir := t.TempDir()
	encoded, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte("Ano;Valor;Unidade\n2022;312;Vínculos\n"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "latin.csv"), encoded, 0o644))

	payload, err := NewCSVAdapter(dir).Fetch(context.Background(), csvRequest("latin*.csv"))
	require.NoError(t, err)
	require.Len(t, payload.Rows, 1)
	assert.Equal(t, "Vínculos", payload.Rows[0].Unit)
}

func TestCSVFetchMissingFileUnavailable(t *testing.T) {
	_, err := NewCSVAdapter(t.TempDir()).Fetch(context.Background(), csvRequest("nothing*.csv"))
	assert.ErrorIs(t, err, resilience.ErrUnavailable)
}

func TestCSVFetchEmptyFileUnavailable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.csv", "")

	_, err := NewCSVAdapter(dir).Fetch(context.Background(), csvRequest("empty*.csv"))
	assert.ErrorIs(t, err, resilience.ErrUnavailable)
}

func TestCSVFetchSchemaMismatchPermanent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "weird.csv", "Regiao;Populacao\nLeste;10\n")

	_, err := NewCSVAdapter(dir).Fetch(context.Background(), csvRequest("weird*.csv"))
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
}

func TestCSVFetchNewestFileWins(t *testing.T) {
	dir := t.TempDir()
	older := writeFile(t, dir, "pop_2022.csv", "2022;100\n")
	writeFile(t, dir, "pop_2023.csv", "2023;200\n")

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	payload, err := NewCSVAdapter(dir).Fetch(context.Background(), csvRequest("pop*.csv"))
	require.NoError(t, err)
	require.Len(t, payload.Rows, 1)
	assert.Equal(t, "2023", payload.Rows[0].Year)
}

func TestCSVFetchMissingGlobPermanent(t *testing.T) {
	_, err := NewCSVAdapter(t.TempDir()).Fetch(context.Background(), csvRequest(""))
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
}
