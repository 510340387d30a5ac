package printing

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// LowSupplyThreshold is the level, in percent, under which a supply is low.
const LowSupplyThreshold = 10.0

// counterPatterns are matched against item keys in priority order.
var counterPatterns = []string{
	"prtMarkerLifeCount",
	"printer.counter.total",
	"printer.pages.total",
	"page.count",
	"pagecount",
	"counter",
}

var supplyPatterns = []string{
	"prtMarkerSuppliesLevel",
	"printer.supply",
	"toner",
	"ink",
	"drum",
}

// Item is the subset of an upstream telemetry item the engine reads.
type Item struct {
	ItemID    string `json:"itemid"`
	HostID    string `json:"hostid"`
	Name      string `json:"name"`
	Key       string `json:"key_"`
	LastValue string `json:"lastvalue"`
	ValueType string `json:"value_type"`
}

// Supply is a consumable level reading.
type Supply struct {
	ItemID string  `json:"item_id"`
	Name   string  `json:"name"`
	Level  float64 `json:"level"`
	Low    bool    `json:"low"`
}

// ResolveCounter returns the live page counter. The first pattern that
// matches any item with a numeric value wins.
func ResolveCounter(items []Item) (int64, bool) {
	it, ok := CounterItem(items)
	if !ok {
		return 0, false
	}
	v, _ := parseValue(it.LastValue)
	return int64(v), true
}

// CounterItem returns the item ResolveCounter reads from.
func CounterItem(items []Item) (Item, bool) {
	for _, pattern := range counterPatterns {
		p := strings.ToLower(pattern)
		for _, it := range items {
			if !strings.Contains(strings.ToLower(it.Key), p) {
				continue
			}
			if _, ok := parseValue(it.LastValue); ok {
				return it, true
			}
		}
	}
	return Item{}, false
}

func parseValue(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// NormalizeLevel clamps a supply level to [0,100].
func NormalizeLevel(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// LowSupply reports whether a level is under the threshold after clamping.
func LowSupply(level float64) bool {
	return NormalizeLevel(level) < LowSupplyThreshold
}

// Supplies extracts consumable levels from items.
func Supplies(items []Item) []Supply {
	var out []Supply
	for _, it := range items {
		if !isSupply(it.Key) {
			continue
		}
		v, ok := parseValue(it.LastValue)
		if !ok {
			continue
		}
		level := NormalizeLevel(v)
		name := it.Name
		if name == "" {
			name = it.Key
		}
		out = append(out, Supply{ItemID: it.ItemID, Name: name, Level: level, Low: level < LowSupplyThreshold})
	}
	return out
}

func isSupply(key string) bool {
	k := strings.ToLower(key)
	for _, p := range supplyPatterns {
		if strings.Contains(k, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Entry is one device's billing line.
type Entry struct {
	DeviceID       string   `json:"device_id"`
	Label          string   `json:"label"`
	BaseCounter    int64    `json:"base_counter"`
	LiveCounter    int64    `json:"live_counter"`
	BillingCounter int64    `json:"billing_counter"`
	CounterFound   bool     `json:"counter_found"`
	Supplies       []Supply `json:"supplies"`
	LowSupply      bool     `json:"low_supply"`
}

// NewEntry derives a billing line. The billing counter is always base plus
// live and is never stored on its own.
func NewEntry(deviceID, label string, base int64, items []Item) Entry {
	live, found := ResolveCounter(items)
	e := Entry{
		DeviceID:     deviceID,
		Label:        label,
		BaseCounter:  base,
		LiveCounter:  live,
		CounterFound: found,
		Supplies:     Supplies(items),
	}
	e.BillingCounter = base + live
	for _, s := range e.Supplies {
		if s.Low {
			e.LowSupply = true
			break
		}
	}
	if e.Supplies == nil {
		e.Supplies = []Supply{}
	}
	return e
}

// Total sums billing counters.
func Total(entries []Entry) int64 {
	var sum int64
	for _, e := range entries {
		sum += e.BillingCounter
	}
	return sum
}

// Period formats the billing period of t as YYYY-MM.
func Period(t time.Time) string {
	return t.Format("2006-01")
}
