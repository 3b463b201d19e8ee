package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "medisupply/pkg/domain-errors"
)

func TestParsePeriodType(t *testing.T) {
	tests := []struct {
		input string
		want  PeriodType
	}{
		{"bimonthly", PeriodBimonthly},
		{"bimestral", PeriodBimonthly},
		{"Trimestral", PeriodQuarterly},
		{" semestral ", PeriodSemiannual},
		{"anual", PeriodAnnual},
		{"annual", PeriodAnnual},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePeriodType(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("rejects unknown", func(t *testing.T) {
		_, err := ParsePeriodType("weekly")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestParsePeriod(t *testing.T) {
	t.Run("normalizes bounds", func(t *testing.T) {
		p, err := ParsePeriod("trimestral", "2025-01-01", "2025-03-31")
		require.NoError(t, err)
		assert.Equal(t, PeriodQuarterly, p.Type)
		assert.Equal(t, "quarterly:2025-01-01:2025-03-31", p.Key())
	})

	t.Run("rejects inverted bounds", func(t *testing.T) {
		_, err := ParsePeriod("quarterly", "2025-03-31", "2025-01-01")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects malformed dates", func(t *testing.T) {
		_, err := ParsePeriod("quarterly", "01/01/2025", "2025-03-31")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestPeriodContains(t *testing.T) {
	p, err := ParsePeriod("bimonthly", "2025-01-01", "2025-02-28")
	require.NoError(t, err)

	assert.True(t, p.Contains(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, p.Contains(time.Date(2025, 2, 28, 23, 59, 0, 0, time.UTC)), "end day is inclusive")
	assert.False(t, p.Contains(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestPeriodTypeMonths(t *testing.T) {
	for pt, months := range map[PeriodType]int{
		PeriodBimonthly:  2,
		PeriodQuarterly:  3,
		PeriodSemiannual: 6,
		PeriodAnnual:     12,
	} {
		assert.Equal(t, months, pt.Months(), string(pt))
	}
	assert.Zero(t, PeriodType("weekly").Months())
}
