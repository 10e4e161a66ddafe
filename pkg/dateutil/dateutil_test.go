package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeISODate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025-10-01", "2025-10-01T00:00:00.000Z"},
		{"15/07/2025", "2025-07-15T00:00:00.000Z"},
		{"1/2/2024", "2024-02-01T00:00:00.000Z"},
		{"  2024-02-29 ", "2024-02-29T00:00:00.000Z"},
		{"2025-10-01T10:00:00Z", "2025-10-01T10:00:00.000Z"},
		{"2025-10-01T23:30:00-02:00", "2025-10-02T01:30:00.000Z"},
	}
	for _, tt := range tests {
		got := NormalizeISODate(tt.in)
		require.NotNil(t, got, tt.in)
		assert.Equal(t, tt.want, *got, tt.in)
	}
}

func TestNormalizeISODateRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "2025-13-01", "Texto libre", "31/02/2025", "2023-02-29"} {
		assert.Nil(t, NormalizeISODate(in), in)
	}
}

func TestParseDateTimestamp(t *testing.T) {
	got, ok := ParseDate("2025-10-01T10:00:00Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), got)

	_, ok = ParseDate("2025-10-01T25:00:00Z")
	assert.False(t, ok)
}

func TestTruncateDay(t *testing.T) {
	in := time.Date(2025, 3, 4, 17, 45, 3, 9, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), TruncateDay(in))
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysUntil(now, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, DaysUntil(now, time.Date(2025, 2, 28, 12, 0, 0, 1, time.UTC).Add(24*time.Hour-1)))
	assert.Equal(t, -1, DaysUntil(now, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)))
}
