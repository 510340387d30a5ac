package printing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekday_MondayFirst(t *testing.T) {
	monday := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, Weekday(monday))
	assert.Equal(t, 6, Weekday(monday.Add(-time.Hour)))
}

func TestBuildHeatmap_PositiveDelta(t *testing.T) {
	// Wednesday 14:00 UTC.
	base := time.Date(2024, 5, 8, 14, 0, 0, 0, time.UTC)
	samples := []Sample{
		{Clock: base, Value: 100},
		{Clock: base.Add(time.Hour), Value: 140},
	}

	h := BuildHeatmap(samples, time.UTC, base.Add(2*time.Hour))
	assert.Equal(t, int64(40), h.Cells[2][15])
	assert.Equal(t, int64(40), h.Total)
	require.NotNil(t, h.Peak)
	assert.Equal(t, Cell{Weekday: 2, Hour: 15, Value: 40}, *h.Peak)
}

func TestBuildHeatmap_DecreasingPairIgnored(t *testing.T) {
	base := time.Date(2024, 5, 8, 14, 0, 0, 0, time.UTC)
	samples := []Sample{
		{Clock: base, Value: 140},
		{Clock: base.Add(time.Hour), Value: 100},
		{Clock: base.Add(2 * time.Hour), Value: 100},
	}

	h := BuildHeatmap(samples, time.UTC, base.Add(3*time.Hour))
	assert.Equal(t, int64(0), h.Total)
	assert.Equal(t, int64(0), h.Cells[2][15])
	assert.Nil(t, h.Peak)
}

func TestBuildHeatmap_TrailingWindowAndTimezone(t *testing.T) {
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	old := now.Add(-8 * day)
	recent := time.Date(2024, 5, 20, 2, 0, 0, 0, time.UTC)

	samples := []Sample{
		{Clock: old, Value: 0},
		{Clock: old.Add(time.Hour), Value: 500},
		{Clock: recent, Value: 510},
	}

	saoPaulo := time.FixedZone("BRT", -3*3600)
	h := BuildHeatmap(samples, saoPaulo, now)

	// 02:00 UTC Monday is 23:00 Sunday in UTC-3.
	assert.Equal(t, int64(10), h.Cells[6][23])
	assert.Equal(t, int64(10), h.Total)
}

func TestHeatmap_Merge(t *testing.T) {
	var a, b Heatmap
	a.Cells[0][9] = 5
	a.Total = 5
	b.Cells[0][9] = 7
	b.Cells[4][16] = 10
	b.Total = 17

	a.Merge(b)
	assert.Equal(t, int64(12), a.Cells[0][9])
	assert.Equal(t, int64(22), a.Total)
	require.NotNil(t, a.Peak)
	assert.Equal(t, Cell{Weekday: 0, Hour: 9, Value: 12}, *a.Peak)
}
