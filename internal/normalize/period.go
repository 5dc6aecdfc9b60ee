package normalize

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/painel-gv/indicadores/internal/model"
)

// Plausible Gregorian year range. Values outside it are usually table codes
// or aggregate IDs that leaked into the period column.
const (
	minYear = 1900
	maxYear = 2100
)

// ParsePeriod aligns a source-native period representation to (year, month).
// Accepted year shapes: "2023" and the compact monthly code "202305" used by
// CAGED. Multi-year ranges ("2019-2020"), fiscal labels, and out-of-range
// values are rejected as data-quality errors, never passed through.
func ParsePeriod(yearStr, monthStr string) (model.Period, error) {
	yearStr = strings.TrimSpace(yearStr)
	monthStr = strings.TrimSpace(monthStr)

	if len(yearStr) == 6 && allDigits(yearStr) {
		year, _ := strconv.Atoi(yearStr[:4])
		month, _ := strconv.Atoi(yearStr[4:])
		return validatePeriod(year, month, yearStr)
	}

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return model.Period{}, eris.Errorf("period: %q is not a calendar year", yearStr)
	}

	month := 0
	if monthStr != "" {
		month, err = strconv.Atoi(monthStr)
		if err != nil {
			return model.Period{}, eris.Errorf("period: %q is not a month", monthStr)
		}
	}

	return validatePeriod(year, month, yearStr)
}

func validatePeriod(year, month int, raw string) (model.Period, error) {
	if year < minYear || year > maxYear {
		return model.Period{}, eris.Errorf("period: year %d out of range (raw %q)", year, raw)
	}
	if month < 0 || month > 12 {
		return model.Period{}, eris.Errorf("period: month %d out of range (raw %q)", month, raw)
	}
	return model.Period{Year: year, Month: month}, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
