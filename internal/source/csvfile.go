package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/painel-gv/indicadores/internal/resilience"
)

// CSVSource is the provenance tag for records read from manually dropped CSV files.
const CSVSource = "ARQUIVO_CSV"

// CSVAdapter reads indicator data from flat files under the data directory.
// The chain entry's glob selects candidates; the newest match is used, the
// way analysts replace drops without renaming history.
type CSVAdapter struct {
	dataDir string
}

// NewCSVAdapter creates a CSV adapter rooted at dataDir.
func NewCSVAdapter(dataDir string) *CSVAdapter {
	return &CSVAdapter{dataDir: dataDir}
}

func (a *CSVAdapter) Name() string { return CSVSource }

// Fetch reads the newest file matching the chain entry's glob. A missing
// file is an unavailable outcome, never an error requiring substitution.
func (a *CSVAdapter) Fetch(ctx context.Context, req Request) (*Payload, error) {
	if req.Entry.Glob == "" {
		return nil, resilience.NewPermanentError(
			eris.Errorf("csv: %s: chain entry missing glob", req.IndicatorKey), "bad chain entry")
	}

	path, err := newestMatch(a.dataDir, req.Entry.Glob)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, resilience.ErrUnavailable
	}

	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "csv: cancelled")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, resilience.NewPermanentError(eris.Wrapf(err, "csv: read %s", path), "unreadable file")
	}

	table, err := parseDelimited(data)
	if err != nil {
		return nil, err
	}

	rows, err := rowsFromTable(table)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("csv: read file",
		zap.String("indicator", req.IndicatorKey),
		zap.String("file", filepath.Base(path)),
		zap.Int("rows", len(rows)),
	)

	return &Payload{Source: CSVSource, Rows: rows}, nil
}

// newestMatch returns the most recently modified file matching the glob
// under dir, or "" when nothing matches.
func newestMatch(dir, glob string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, glob))
	if err != nil {
		return "", resilience.NewPermanentError(eris.Wrapf(err, "glob %s", glob), "bad glob")
	}

	var newest string
	var newestMod int64
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest, newestMod = m, mod
		}
	}
	return newest, nil
}

// parseDelimited decodes government flat files: UTF-8 or Latin-1, delimiter
// sniffed from the first line (';' is the Brazilian default, then ',', tab).
func parseDelimited(data []byte) ([][]string, error) {
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, resilience.NewPermanentError(eris.Wrap(err, "decode latin-1"), "bad encoding")
		}
		data = decoded
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var table [][]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, resilience.NewPermanentError(eris.Wrap(err, "parse csv"), "malformed csv")
		}
		table = append(table, rec)
	}
	return table, nil
}

func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	for _, d := range []byte{';', ',', '\t'} {
		if bytes.IndexByte(line, d) >= 0 {
			return rune(d)
		}
	}
	return ';'
}
