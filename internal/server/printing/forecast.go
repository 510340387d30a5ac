package printing

import (
	"math"
	"sort"
	"time"
)

const (
	day = 24 * time.Hour
	// minDailyRate below which consumption is treated as flat.
	minDailyRate = 0.01
)

// Sample is one history point.
type Sample struct {
	Clock time.Time
	Value float64
}

// ForecastResult projects when a consumable runs out.
type ForecastResult struct {
	Level               float64    `json:"level"`
	DailyRate           float64    `json:"daily_rate"`
	DaysRemaining       *int       `json:"days_remaining"`
	EstimatedExhaustion *time.Time `json:"estimated_exhaustion"`
	DataInsufficient    bool       `json:"data_insufficient"`
}

// Forecast fits a straight line from the earliest to the latest sample.
// Fewer than two samples, a span under one day, a latest sample older than
// one day or a flat/rising level all yield DataInsufficient.
func Forecast(samples []Sample, currentLevel float64, now time.Time) ForecastResult {
	res := ForecastResult{Level: NormalizeLevel(currentLevel), DataInsufficient: true}
	if len(samples) < 2 {
		return res
	}

	sorted := sortedSamples(samples)
	first, last := sorted[0], sorted[len(sorted)-1]

	span := last.Clock.Sub(first.Clock)
	if span < day || now.Sub(last.Clock) > day {
		return res
	}

	rate := (first.Value - last.Value) / (span.Hours() / 24)
	if rate < minDailyRate || math.IsNaN(rate) {
		return res
	}

	days := res.Level / rate
	remaining := int(math.Round(days))
	exhaustion := now.Add(time.Duration(days * float64(day)))

	res.DailyRate = rate
	res.DaysRemaining = &remaining
	res.EstimatedExhaustion = &exhaustion
	res.DataInsufficient = false
	return res
}

func sortedSamples(samples []Sample) []Sample {
	out := append([]Sample(nil), samples...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Clock.Before(out[j].Clock) })
	return out
}
