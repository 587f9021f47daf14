package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	midnight := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		period    string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"today", midnight, now.Add(time.Minute)},
		{"yesterday", midnight.AddDate(0, 0, -1), midnight},
		{"week", now.AddDate(0, 0, -7), now.Add(time.Minute)},
		{"month", now.AddDate(0, -1, 0), now.Add(time.Minute)},
		{"all", time.Time{}, now.Add(time.Minute)},
		{"", time.Time{}, now.Add(time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			start, end, err := ParsePeriod(tt.period, now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestParsePeriod_Unknown(t *testing.T) {
	_, _, err := ParsePeriod("fortnight", time.Now())
	assert.Error(t, err)
}

func TestFormatTokenCount(t *testing.T) {
	assert.Equal(t, "789", FormatTokenCount(789))
	assert.Equal(t, "456.0K", FormatTokenCount(456_000))
	assert.Equal(t, "1.23M", FormatTokenCount(1_234_567))
}
