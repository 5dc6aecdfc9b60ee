package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeriodBefore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p, q Period
		want bool
	}{
		{"earlier year", Period{Year: 2020}, Period{Year: 2021}, true},
		{"later year", Period{Year: 2022}, Period{Year: 2021}, false},
		{"same year earlier month", Period{Year: 2023, Month: 3}, Period{Year: 2023, Month: 4}, true},
		{"annual before monthly same year", Period{Year: 2023}, Period{Year: 2023, Month: 1}, true},
		{"equal", Period{Year: 2023, Month: 5}, Period{Year: 2023, Month: 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Before(tt.q))
		})
	}
}

func TestPeriodString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2023", Period{Year: 2023}.String())
	assert.Equal(t, "2023-05", Period{Year: 2023, Month: 5}.String())
	assert.Equal(t, "2023-12", Period{Year: 2023, Month: 12}.String())
}

func TestRecordTombstone(t *testing.T) {
	t.Parallel()

	assert.True(t, Record{}.Tombstone())
	assert.False(t, Record{Value: Float(0)}.Tombstone())
}

func TestUpsertResultAdd(t *testing.T) {
	t.Parallel()

	total := UpsertResult{Inserted: 1, Updated: 2}
	total.Add(UpsertResult{Inserted: 3, Rejected: 4})

	assert.Equal(t, UpsertResult{Inserted: 4, Updated: 2, Rejected: 4}, total)
}
