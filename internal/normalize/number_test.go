package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"plain integer", "58400", 58400},
		{"plain decimal", "12.5", 12.5},
		{"pt-br thousands", "1.234.567", 1234567},
		{"pt-br full", "1.234.567,89", 1234567.89},
		{"comma decimal", "3,14", 3.14},
		{"negative grouped", "-1.234", -1234},
		{"spaces stripped", " 2 500 ", 2500},
		{"four digit not grouped", "2023.5", 2023.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNumber(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseNumberSuppressed(t *testing.T) {
	t.Parallel()

	for _, marker := range []string{"", "-", "...", "..", "X", "x", "  -  "} {
		_, err := ParseNumber(marker)
		assert.ErrorIs(t, err, ErrSuppressed, "marker %q", marker)
	}
}

func TestParseNumberMalformed(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"abc", "12a", "1.2.3,4,5"} {
		_, err := ParseNumber(in)
		require.Error(t, err, "input %q", in)
		assert.NotErrorIs(t, err, ErrSuppressed)
	}
}
