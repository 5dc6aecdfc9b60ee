package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/painel-gv/indicadores/internal/model"
)

func TestParsePeriod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		year  string
		month string
		want  model.Period
	}{
		{"annual", "2023", "", model.Period{Year: 2023}},
		{"monthly", "2023", "5", model.Period{Year: 2023, Month: 5}},
		{"compact yyyymm", "202305", "", model.Period{Year: 2023, Month: 5}},
		{"whitespace", " 2021 ", " 12 ", model.Period{Year: 2021, Month: 12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeriod(tt.year, tt.month)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePeriodRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		year  string
		month string
	}{
		{"range", "2019-2020", ""},
		{"text", "Total", ""},
		{"year too small", "1820", ""},
		{"year too large", "2150", ""},
		{"table code leaked", "5938", "13"},
		{"month out of range", "2023", "13"},
		{"compact month out of range", "202313", ""},
		{"non numeric month", "2023", "mai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePeriod(tt.year, tt.month)
			require.Error(t, err)
		})
	}
}
