package normalize

import (
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// ErrSuppressed marks a value the source explicitly withheld. SIDRA uses
// "..." and "-" for suppressed or inapplicable cells, RAIS extracts use "X".
// These become tombstones, not dropped rows and never zeroes.
var ErrSuppressed = errors.New("value suppressed at source")

var suppressedMarkers = map[string]bool{
	"":    true,
	"-":   true,
	"..":  true,
	"...": true,
	"x":   true,
}

// ParseNumber coerces a pt-BR formatted numeric string ("1.234.567,89") to a
// float64. Plain en-US decimals pass through. Values that cannot be parsed
// return an error so callers drop them with a warning; nothing is silently
// coerced to zero.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if suppressedMarkers[strings.ToLower(s)] {
		return 0, ErrSuppressed
	}

	normalized := normalizeSeparators(s)
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return 0, eris.Wrapf(err, "parse number %q", s)
	}
	return d.InexactFloat64(), nil
}

// normalizeSeparators rewrites locale separators into canonical decimal form.
// Both '.' and ',' present: '.' is the thousands separator. Only ',': it is
// the decimal separator. Only '.': thousands when the digits group in threes
// ("1.234.567"), decimal otherwise.
func normalizeSeparators(s string) string {
	s = strings.ReplaceAll(s, " ", "")

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")

	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case hasComma:
		s = strings.Replace(s, ",", ".", 1)
	case hasDot && isDotGrouped(s):
		s = strings.ReplaceAll(s, ".", "")
	}
	return s
}

// isDotGrouped reports whether every '.' in s separates three-digit groups,
// i.e. the string matches d{1,3}(.ddd)+ with an optional sign.
func isDotGrouped(s string) bool {
	s = strings.TrimLeft(s, "+-")
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return false
	}
	if len(parts[0]) == 0 || len(parts[0]) > 3 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}
