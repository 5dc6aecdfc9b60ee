package source

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/painel-gv/indicadores/internal/resilience"
)

// XLSXSource is the provenance tag for records read from manually downloaded
// spreadsheets (Sebrae, IDSC and similar publications).
const XLSXSource = "PLANILHA_XLSX"

// XLSXAdapter reads indicator data from spreadsheets under the data directory.
type XLSXAdapter struct {
	dataDir string
}

// NewXLSXAdapter creates an XLSX adapter rooted at dataDir.
func NewXLSXAdapter(dataDir string) *XLSXAdapter {
	return &XLSXAdapter{dataDir: dataDir}
}

func (a *XLSXAdapter) Name() string { return XLSXSource }

// Fetch reads the newest spreadsheet matching the chain entry's glob, taking
// the named sheet or the first one. A missing file is unavailable.
func (a *XLSXAdapter) Fetch(ctx context.Context, req Request) (*Payload, error) {
	if req.Entry.Glob == "" {
		return nil, resilience.NewPermanentError(
			eris.Errorf("xlsx: %s: chain entry missing glob", req.IndicatorKey), "bad chain entry")
	}

	path, err := newestMatch(a.dataDir, req.Entry.Glob)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, resilience.ErrUnavailable
	}

	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "xlsx: cancelled")
	}

	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, resilience.NewPermanentError(eris.Wrapf(err, "xlsx: open %s", path), "unreadable spreadsheet")
	}

	sheet, err := pickSheet(f, req.Entry.Sheet)
	if err != nil {
		return nil, err
	}

	table := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		table = append(table, cells)
	}

	rows, err := rowsFromTable(table)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("xlsx: read file",
		zap.String("indicator", req.IndicatorKey),
		zap.String("file", filepath.Base(path)),
		zap.Int("rows", len(rows)),
	)

	return &Payload{Source: XLSXSource, Rows: rows}, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, resilience.NewPermanentError(
				eris.Errorf("xlsx: sheet %q not found", name), "schema mismatch")
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, resilience.ErrUnavailable
	}
	return f.Sheets[0], nil
}
