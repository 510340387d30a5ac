package printing

import "time"

const heatmapWindow = 7 * day

// Cell is a single weekday/hour bucket. Weekday 0 is Monday.
type Cell struct {
	Weekday int   `json:"weekday"`
	Hour    int   `json:"hour"`
	Value   int64 `json:"value"`
}

// Heatmap is a weekday by hour grid of printed pages.
type Heatmap struct {
	Cells [7][24]int64 `json:"cells"`
	Total int64        `json:"total"`
	Peak  *Cell        `json:"peak"`
}

// Weekday maps t to a Monday-first index.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// BuildHeatmap buckets positive deltas between consecutive counter samples
// at the later sample's local time. Only pairs whose later sample falls in
// the trailing seven days count. Drops and repeats add nothing.
func BuildHeatmap(samples []Sample, loc *time.Location, now time.Time) Heatmap {
	if loc == nil {
		loc = time.UTC
	}
	var h Heatmap
	sorted := sortedSamples(samples)
	since := now.Add(-heatmapWindow)

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.Clock.Before(since) || cur.Clock.After(now) {
			continue
		}
		delta := int64(cur.Value - prev.Value)
		if delta <= 0 {
			continue
		}
		local := cur.Clock.In(loc)
		h.Cells[Weekday(local)][local.Hour()] += delta
		h.Total += delta
	}

	h.Peak = peak(&h)
	return h
}

// Merge adds other into h and recomputes the peak.
func (h *Heatmap) Merge(other Heatmap) {
	for d := range h.Cells {
		for hr := range h.Cells[d] {
			h.Cells[d][hr] += other.Cells[d][hr]
		}
	}
	h.Total += other.Total
	h.Peak = peak(h)
}

func peak(h *Heatmap) *Cell {
	var best *Cell
	for d := range h.Cells {
		for hr, v := range h.Cells[d] {
			if v > 0 && (best == nil || v > best.Value) {
				best = &Cell{Weekday: d, Hour: hr, Value: v}
			}
		}
	}
	return best
}
