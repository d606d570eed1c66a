package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2025-03")
	require.NoError(t, err)
	assert.Equal(t, PeriodKey("2025-03"), p)

	for _, bad := range []string{"", "2025-13", "2025/03", "25-03", "2025-03-01"} {
		_, err := ParsePeriod(bad)
		assert.True(t, errors.Is(err, ErrInvalidPeriod), "input %q", bad)
	}
}

func TestPeriodArithmetic(t *testing.T) {
	tests := []struct {
		in, next, prev PeriodKey
		days           int
	}{
		{"2025-03", "2025-04", "2025-02", 31},
		{"2024-12", "2025-01", "2024-11", 31},
		{"2025-01", "2025-02", "2024-12", 31},
		{"2024-02", "2024-03", "2024-01", 29},
		{"2025-02", "2025-03", "2025-01", 28},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.next, tt.in.Next())
			assert.Equal(t, tt.prev, tt.in.Prev())
			assert.Equal(t, tt.days, tt.in.DaysIn())
		})
	}
}

func TestPeriodBounds(t *testing.T) {
	p := PeriodKey("2025-03")
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, 31, p.End().Day())
	assert.Equal(t, time.March, p.Month())
	assert.Equal(t, 2025, p.Year())
	assert.Equal(t, p, PeriodOf(time.Date(2025, 3, 17, 10, 0, 0, 0, time.UTC)))
}
