package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/dmitrijs2005/nocgateway/internal/logging"
	"github.com/dmitrijs2005/nocgateway/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var printerNow = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

type upstreamCall struct {
	connID string
	method string
	params any
}

// fakeUpstream answers item.get with items and history.get from history,
// keyed by item id. Item ids listed in failing return an upstream error.
type fakeUpstream struct {
	items   string
	history map[string][]historyPoint
	failing map[string]bool
	calls   []upstreamCall
}

func (f *fakeUpstream) Call(_ context.Context, _, connID, method string, params any) (json.RawMessage, error) {
	f.calls = append(f.calls, upstreamCall{connID: connID, method: method, params: params})
	switch method {
	case "item.get":
		return json.RawMessage(f.items), nil
	case "history.get":
		id := params.(map[string]any)["itemids"].([]string)[0]
		if f.failing[id] {
			return nil, fmt.Errorf("%w: boom", common.ErrUpstreamUnreachable)
		}
		return json.Marshal(f.history[id])
	default:
		return json.RawMessage(`{"echo":"` + method + `"}`), nil
	}
}

func point(t time.Time, v float64) historyPoint {
	return historyPoint{Clock: strconv.FormatInt(t.Unix(), 10), Value: strconv.FormatFloat(v, 'f', -1, 64)}
}

const printerItems = `[
	{"itemid":"11","hostid":"h1","name":"Page counter","key_":"prtMarkerLifeCount[1]","lastvalue":"1500","value_type":"3"},
	{"itemid":"12","hostid":"h1","name":"Black toner","key_":"prtMarkerSuppliesLevel[1]","lastvalue":"50","value_type":"0"},
	{"itemid":"21","hostid":"h2","name":"Pages","key_":"page.count","lastvalue":"200","value_type":"3"},
	{"itemid":"22","hostid":"h2","name":"Cyan ink","key_":"ink.cyan","lastvalue":"5","value_type":"0"}
]`

func newPrinterService(t *testing.T, up *fakeUpstream) (*PrinterService, *fakePrintersRepo) {
	t.Helper()
	db, _ := newSQLMockDB(t)
	repo := &fakePrintersRepo{configs: []*models.PrinterConfig{
		{ID: "c1", TenantID: "t1", ConnectionID: "conn1", DeviceID: "h1", Label: "Lobby", BaseCounter: 10000},
		{ID: "c2", TenantID: "t1", ConnectionID: "conn1", DeviceID: "h2", Label: "NOC", BaseCounter: 0},
	}}
	s := NewPrinterService(db, &fakeRepoManager{printers: repo}, up, time.UTC, logging.Nop{})
	s.now = func() time.Time { return printerNow }
	return s, repo
}

func TestPrinterCounters(t *testing.T) {
	s, _ := newPrinterService(t, &fakeUpstream{items: printerItems})

	r, err := s.Counters(context.Background(), viewer, "conn1")
	require.NoError(t, err)

	require.Len(t, r.Entries, 2)
	assert.Equal(t, "2025-03", r.Period)
	assert.Equal(t, int64(11500), r.Entries[0].BillingCounter)
	assert.Equal(t, int64(200), r.Entries[1].BillingCounter)
	assert.Equal(t, int64(11700), r.Total)

	require.Len(t, r.Alerts, 1)
	assert.Equal(t, LowSupplyAlert{DeviceID: "h2", Label: "NOC", Supply: "Cyan ink", Level: 5}, r.Alerts[0])
}

func TestPrinterCounters_RequiresConnection(t *testing.T) {
	up := &fakeUpstream{items: printerItems}
	s, _ := newPrinterService(t, up)

	_, err := s.Counters(context.Background(), viewer, "")
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, up.calls)
}

func TestPrinterCounters_MalformedUpstream(t *testing.T) {
	s, _ := newPrinterService(t, &fakeUpstream{items: `{"not":"a list"}`})

	_, err := s.Counters(context.Background(), viewer, "conn1")
	assert.ErrorIs(t, err, common.ErrUpstreamError)
}

func TestPrinterSnapshot(t *testing.T) {
	s, repo := newPrinterService(t, &fakeUpstream{items: printerItems})

	snap, err := s.Snapshot(context.Background(), operator, "conn1")
	require.NoError(t, err)

	assert.Equal(t, "snap1", snap.ID)
	assert.Equal(t, "2025-03", repo.snapshot.Period)
	assert.Equal(t, int64(11700), repo.snapshot.Total)
	assert.Equal(t, "u1", repo.snapshot.CreatedBy)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(repo.snapshot.Entries, &entries))
	assert.Len(t, entries, 2)

	_, err = s.Snapshot(context.Background(), viewer, "conn1")
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestPrinterUpsertConfig(t *testing.T) {
	s, repo := newPrinterService(t, &fakeUpstream{})

	cfg, err := s.UpsertConfig(context.Background(), operator, models.PrinterConfig{TenantID: "t9", DeviceID: "h3", Label: "Lab", BaseCounter: 42})
	require.NoError(t, err)
	assert.Equal(t, "cfg1", cfg.ID)
	assert.Equal(t, "t1", repo.upserted.TenantID)
	assert.Equal(t, "u1", repo.actor)

	_, err = s.UpsertConfig(context.Background(), operator, models.PrinterConfig{DeviceID: "h3", BaseCounter: -1})
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = s.UpsertConfig(context.Background(), operator, models.PrinterConfig{})
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = s.UpsertConfig(context.Background(), viewer, models.PrinterConfig{DeviceID: "h3"})
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestPrinterForecast_DeviceFailureIsIsolated(t *testing.T) {
	up := &fakeUpstream{
		items: printerItems,
		history: map[string][]historyPoint{
			"12": {point(printerNow.Add(-10*24*time.Hour), 80), point(printerNow, 50)},
		},
		failing: map[string]bool{"22": true},
	}
	s, _ := newPrinterService(t, up)

	out, err := s.Forecast(context.Background(), viewer, "conn1")
	require.NoError(t, err)
	require.Len(t, out, 2)

	black := out[0].Supplies[0]
	assert.Equal(t, "Black toner", black.Name)
	assert.False(t, black.DataInsufficient)
	assert.InDelta(t, 3.0, black.DailyRate, 1e-9)
	require.NotNil(t, black.DaysRemaining)
	assert.Equal(t, 17, *black.DaysRemaining)

	cyan := out[1].Supplies[0]
	assert.True(t, cyan.DataInsufficient)
	assert.Equal(t, 5.0, cyan.Level)
}

func TestPrinterHeatmap(t *testing.T) {
	base := printerNow.Add(-48 * time.Hour).Truncate(time.Hour)
	up := &fakeUpstream{
		items: printerItems,
		history: map[string][]historyPoint{
			"11": {point(base, 100), point(base.Add(time.Hour), 140), point(base.Add(2*time.Hour), 120)},
		},
		failing: map[string]bool{"21": true},
	}
	s, _ := newPrinterService(t, up)

	r, err := s.Heatmap(context.Background(), viewer, "conn1")
	require.NoError(t, err)

	assert.Equal(t, "UTC", r.Timezone)
	require.Len(t, r.Devices, 2)
	assert.False(t, r.Devices[0].DataInsufficient)
	assert.True(t, r.Devices[1].DataInsufficient)

	assert.Equal(t, int64(40), r.Combined.Total)
	require.NotNil(t, r.Combined.Peak)
	later := base.Add(time.Hour)
	assert.Equal(t, later.Hour(), r.Combined.Peak.Hour)
	assert.Equal(t, (int(later.Weekday())+6)%7, r.Combined.Peak.Weekday)
}

func TestPrinterReports_NoConfigs(t *testing.T) {
	up := &fakeUpstream{}
	s, repo := newPrinterService(t, up)
	repo.configs = nil

	r, err := s.Counters(context.Background(), viewer, "conn1")
	require.NoError(t, err)
	assert.Empty(t, r.Entries)
	assert.Empty(t, up.calls)
}
