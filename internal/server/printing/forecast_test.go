package printing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func TestForecast_LinearRate(t *testing.T) {
	samples := []Sample{
		{Clock: t0.Add(10 * day), Value: 50},
		{Clock: t0, Value: 80},
	}
	now := t0.Add(10*day + time.Hour)

	f := Forecast(samples, 50, now)
	require.False(t, f.DataInsufficient)
	assert.InDelta(t, 3.0, f.DailyRate, 1e-9)
	require.NotNil(t, f.DaysRemaining)
	assert.Equal(t, 17, *f.DaysRemaining)
	require.NotNil(t, f.EstimatedExhaustion)
	assert.WithinDuration(t, now.Add(time.Duration(50.0/3.0*float64(day))), *f.EstimatedExhaustion, time.Second)
}

func TestForecast_Insufficient(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
		now     time.Time
	}{
		{"single sample", []Sample{{Clock: t0, Value: 80}}, t0},
		{"span under a day", []Sample{{Clock: t0, Value: 80}, {Clock: t0.Add(12 * time.Hour), Value: 70}}, t0.Add(13 * time.Hour)},
		{"stale latest sample", []Sample{{Clock: t0, Value: 80}, {Clock: t0.Add(2 * day), Value: 70}}, t0.Add(4 * day)},
		{"flat level", []Sample{{Clock: t0, Value: 60}, {Clock: t0.Add(5 * day), Value: 60}}, t0.Add(5 * day)},
		{"refilled", []Sample{{Clock: t0, Value: 10}, {Clock: t0.Add(5 * day), Value: 100}}, t0.Add(5 * day)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Forecast(tt.samples, 50, tt.now)
			assert.True(t, f.DataInsufficient)
			assert.Nil(t, f.DaysRemaining)
			assert.Nil(t, f.EstimatedExhaustion)
		})
	}
}
