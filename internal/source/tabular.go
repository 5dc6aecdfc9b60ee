package source

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/painel-gv/indicadores/internal/resilience"
)

// columnLayout maps the positions of the period/value columns in a flat file.
type columnLayout struct {
	year  int
	month int // -1 when absent
	value int
	unit  int // -1 when absent
}

// headerAliases normalizes the column names seen across the manually
// maintained files (RAIS extracts, Sebrae spreadsheets, SEFAZ drops).
var headerAliases = map[string]string{
	"ano":       "year",
	"year":      "year",
	"exercicio": "year",
	"mes":       "month",
	"month":     "month",
	"valor":     "value",
	"value":     "value",
	"total":     "value",
	"unidade":   "unit",
	"unit":      "unit",
}

func normalizeHeader(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch r {
		case 'á', 'â', 'ã', 'à':
			b.WriteRune('a')
		case 'é', 'ê':
			b.WriteRune('e')
		case 'í':
			b.WriteRune('i')
		case 'ó', 'ô', 'õ':
			b.WriteRune('o')
		case 'ú':
			b.WriteRune('u')
		case 'ç':
			b.WriteRune('c')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// detectLayout inspects the first row of a flat file. Files with a header row
// get their columns mapped by name; headerless drops (e.g. "2023;58400") are
// recognized by a leading four-digit year and assumed to be (year, value).
// Returns the layout and whether the first row is a header to skip.
func detectLayout(first []string) (columnLayout, bool, error) {
	if len(first) == 0 {
		return columnLayout{}, false, resilience.NewPermanentError(
			eris.New("flat file: empty first row"), "schema mismatch")
	}

	if looksLikeYear(first[0]) && len(first) >= 2 {
		return columnLayout{year: 0, month: -1, value: 1, unit: -1}, false, nil
	}

	layout := columnLayout{year: -1, month: -1, value: -1, unit: -1}
	for i, cell := range first {
		switch headerAliases[normalizeHeader(cell)] {
		case "year":
			if layout.year == -1 {
				layout.year = i
			}
		case "month":
			layout.month = i
		case "value":
			if layout.value == -1 {
				layout.value = i
			}
		case "unit":
			layout.unit = i
		}
	}

	if layout.year == -1 || layout.value == -1 {
		return columnLayout{}, false, resilience.NewPermanentError(
			eris.Errorf("flat file: no year/value columns in header %v", first), "schema mismatch")
	}

	return layout, true, nil
}

// rowsFromTable applies a detected layout to raw table rows.
func rowsFromTable(table [][]string) ([]Row, error) {
	if len(table) == 0 {
		return nil, resilience.ErrUnavailable
	}

	layout, skipHeader, err := detectLayout(table[0])
	if err != nil {
		return nil, err
	}
	if skipHeader {
		table = table[1:]
	}

	rows := make([]Row, 0, len(table))
	for _, rec := range table {
		if layout.value >= len(rec) || layout.year >= len(rec) {
			continue // ragged tail rows (totals, footnotes)
		}
		row := Row{
			Year:  strings.TrimSpace(rec[layout.year]),
			Value: strings.TrimSpace(rec[layout.value]),
		}
		if row.Year == "" && row.Value == "" {
			continue
		}
		if layout.month >= 0 && layout.month < len(rec) {
			row.Month = strings.TrimSpace(rec[layout.month])
		}
		if layout.unit >= 0 && layout.unit < len(rec) {
			row.Unit = strings.TrimSpace(rec[layout.unit])
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, resilience.ErrUnavailable
	}
	return rows, nil
}

func looksLikeYear(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s >= "1900" && s <= "2100"
}
