package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/dmitrijs2005/nocgateway/internal/logging"
	"github.com/dmitrijs2005/nocgateway/internal/server/auth"
	"github.com/dmitrijs2005/nocgateway/internal/server/models"
	"github.com/dmitrijs2005/nocgateway/internal/server/printing"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/nocgateway/internal/timex"
)

const (
	forecastWindow = 30 * 24 * time.Hour
	heatmapWindow  = 7 * 24 * time.Hour
)

// UpstreamCaller performs an allow-listed call on a tenant's connection.
// *upstream.Proxy implements it.
type UpstreamCaller interface {
	Call(ctx context.Context, tenantID, connID, method string, params any) (json.RawMessage, error)
}

// LowSupplyAlert names a consumable under the low threshold.
type LowSupplyAlert struct {
	DeviceID string  `json:"device_id"`
	Label    string  `json:"label"`
	Supply   string  `json:"supply"`
	Level    float64 `json:"level"`
}

// CountersReport is the printer-counters response.
type CountersReport struct {
	ConnectionID string           `json:"connection_id"`
	Period       string           `json:"period"`
	Entries      []printing.Entry `json:"entries"`
	Total        int64            `json:"total"`
	Alerts       []LowSupplyAlert `json:"alerts"`
}

// SupplyForecast is one consumable's projection.
type SupplyForecast struct {
	ItemID string `json:"item_id"`
	Name   string `json:"name"`
	printing.ForecastResult
}

// DeviceForecast groups a device's supply forecasts.
type DeviceForecast struct {
	DeviceID string           `json:"device_id"`
	Label    string           `json:"label"`
	Supplies []SupplyForecast `json:"supplies"`
}

// DeviceHeatmap is one device's usage grid.
type DeviceHeatmap struct {
	DeviceID         string           `json:"device_id"`
	Label            string           `json:"label"`
	DataInsufficient bool             `json:"data_insufficient"`
	Heatmap          printing.Heatmap `json:"heatmap"`
}

// HeatmapReport holds per-device grids and their sum.
type HeatmapReport struct {
	Timezone string           `json:"timezone"`
	Devices  []DeviceHeatmap  `json:"devices"`
	Combined printing.Heatmap `json:"combined"`
}

type historyPoint struct {
	Clock string `json:"clock"`
	Value string `json:"value"`
}

// PrinterService derives billing, forecasts and heatmaps from upstream
// telemetry of configured devices.
type PrinterService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	upstream    UpstreamCaller
	location    *time.Location
	logger      logging.Logger
	now         timex.Clock
}

func NewPrinterService(db *sql.DB, m repomanager.RepositoryManager, upstream UpstreamCaller, loc *time.Location, logger logging.Logger) *PrinterService {
	if loc == nil {
		loc = time.UTC
	}
	return &PrinterService{db: db, repomanager: m, upstream: upstream, location: loc, logger: logger, now: time.Now}
}

// Counters returns a billing line per configured device of connID and
// low-supply alerts.
func (s *PrinterService) Counters(ctx context.Context, id auth.Identity, connID string) (*CountersReport, error) {
	if connID == "" {
		return nil, fmt.Errorf("%w: connection_id is required", common.ErrValidation)
	}

	configs, items, err := s.telemetry(ctx, id, connID)
	if err != nil {
		return nil, err
	}

	report := &CountersReport{
		ConnectionID: connID,
		Period:       printing.Period(s.now().In(s.location)),
		Entries:      make([]printing.Entry, 0, len(configs)),
		Alerts:       []LowSupplyAlert{},
	}
	for _, cfg := range configs {
		e := printing.NewEntry(cfg.DeviceID, cfg.Label, cfg.BaseCounter, items[cfg.DeviceID])
		report.Entries = append(report.Entries, e)
		for _, sup := range e.Supplies {
			if sup.Low {
				report.Alerts = append(report.Alerts, LowSupplyAlert{
					DeviceID: cfg.DeviceID, Label: cfg.Label, Supply: sup.Name, Level: sup.Level,
				})
			}
		}
	}
	report.Total = printing.Total(report.Entries)
	return report, nil
}

// UpsertConfig stores a device's label and base counter.
func (s *PrinterService) UpsertConfig(ctx context.Context, id auth.Identity, cfg models.PrinterConfig) (*models.PrinterConfig, error) {
	if id.Role == auth.RoleViewer {
		return nil, fmt.Errorf("%w: viewers cannot change printer configs", common.ErrForbidden)
	}
	if cfg.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", common.ErrValidation)
	}
	if cfg.BaseCounter < 0 {
		return nil, fmt.Errorf("%w: base_counter must not be negative", common.ErrValidation)
	}
	cfg.TenantID = id.TenantID
	return s.repomanager.Printers(s.db).UpsertConfig(ctx, &cfg, id.UserID)
}

// Snapshot computes the current counters and appends them as a billing
// snapshot for the current period. Earlier snapshots are never touched.
func (s *PrinterService) Snapshot(ctx context.Context, id auth.Identity, connID string) (*models.BillingSnapshot, error) {
	if id.Role == auth.RoleViewer {
		return nil, fmt.Errorf("%w: viewers cannot take billing snapshots", common.ErrForbidden)
	}

	report, err := s.Counters(ctx, id, connID)
	if err != nil {
		return nil, err
	}

	entries, err := json.Marshal(report.Entries)
	if err != nil {
		return nil, err
	}

	return s.repomanager.Printers(s.db).AppendSnapshot(ctx, &models.BillingSnapshot{
		TenantID:     id.TenantID,
		ConnectionID: connID,
		Period:       report.Period,
		Entries:      entries,
		Total:        report.Total,
		CreatedBy:    id.UserID,
	})
}

// Forecast projects consumable exhaustion per device. History is fetched
// one supply at a time; a failed fetch marks that device insufficient and
// the report continues.
func (s *PrinterService) Forecast(ctx context.Context, id auth.Identity, connID string) ([]DeviceForecast, error) {
	if connID == "" {
		return nil, fmt.Errorf("%w: connection_id is required", common.ErrValidation)
	}

	configs, items, err := s.telemetry(ctx, id, connID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]DeviceForecast, 0, len(configs))
	for _, cfg := range configs {
		df := DeviceForecast{DeviceID: cfg.DeviceID, Label: cfg.Label, Supplies: []SupplyForecast{}}
		byID := make(map[string]printing.Item)
		for _, it := range items[cfg.DeviceID] {
			byID[it.ItemID] = it
		}

		failed := false
		for _, sup := range printing.Supplies(items[cfg.DeviceID]) {
			f := SupplyForecast{ItemID: sup.ItemID, Name: sup.Name}
			if failed {
				f.ForecastResult = printing.ForecastResult{Level: sup.Level, DataInsufficient: true}
				df.Supplies = append(df.Supplies, f)
				continue
			}

			samples, err := s.history(ctx, id, connID, byID[sup.ItemID], now.Add(-forecastWindow), now)
			if err != nil {
				s.logger.Warn(ctx, "supply history unavailable", "device_id", cfg.DeviceID, "item_id", sup.ItemID, "error", err)
				failed = true
				f.ForecastResult = printing.ForecastResult{Level: sup.Level, DataInsufficient: true}
				df.Supplies = append(df.Supplies, f)
				continue
			}
			f.ForecastResult = printing.Forecast(samples, sup.Level, now)
			df.Supplies = append(df.Supplies, f)
		}
		out = append(out, df)
	}
	return out, nil
}

// Heatmap buckets page counter growth over the last seven days per device.
func (s *PrinterService) Heatmap(ctx context.Context, id auth.Identity, connID string) (*HeatmapReport, error) {
	if connID == "" {
		return nil, fmt.Errorf("%w: connection_id is required", common.ErrValidation)
	}

	configs, items, err := s.telemetry(ctx, id, connID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	report := &HeatmapReport{Timezone: s.location.String(), Devices: make([]DeviceHeatmap, 0, len(configs))}
	for _, cfg := range configs {
		dh := DeviceHeatmap{DeviceID: cfg.DeviceID, Label: cfg.Label}

		counter, ok := printing.CounterItem(items[cfg.DeviceID])
		if !ok {
			dh.DataInsufficient = true
			report.Devices = append(report.Devices, dh)
			continue
		}

		samples, err := s.history(ctx, id, connID, counter, now.Add(-heatmapWindow-time.Hour), now)
		if err != nil {
			s.logger.Warn(ctx, "counter history unavailable", "device_id", cfg.DeviceID, "error", err)
			dh.DataInsufficient = true
			report.Devices = append(report.Devices, dh)
			continue
		}

		dh.Heatmap = printing.BuildHeatmap(samples, s.location, now)
		report.Combined.Merge(dh.Heatmap)
		report.Devices = append(report.Devices, dh)
	}
	return report, nil
}

// telemetry loads the tenant's device configs for connID and their current
// upstream items grouped by device id.
func (s *PrinterService) telemetry(ctx context.Context, id auth.Identity, connID string) ([]*models.PrinterConfig, map[string][]printing.Item, error) {
	configs, err := s.repomanager.Printers(s.db).ListConfigs(ctx, id.TenantID, connID)
	if err != nil {
		return nil, nil, err
	}
	if len(configs) == 0 {
		return configs, map[string][]printing.Item{}, nil
	}

	hostIDs := make([]string, 0, len(configs))
	for _, c := range configs {
		hostIDs = append(hostIDs, c.DeviceID)
	}

	raw, err := s.upstream.Call(ctx, id.TenantID, connID, "item.get", map[string]any{
		"output":  []string{"itemid", "hostid", "name", "key_", "lastvalue", "value_type"},
		"hostids": hostIDs,
	})
	if err != nil {
		return nil, nil, err
	}

	var list []printing.Item
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, nil, fmt.Errorf("%w: unexpected item.get result", common.ErrUpstreamError)
	}

	grouped := make(map[string][]printing.Item, len(configs))
	for _, it := range list {
		grouped[it.HostID] = append(grouped[it.HostID], it)
	}
	return configs, grouped, nil
}

func (s *PrinterService) history(ctx context.Context, id auth.Identity, connID string, item printing.Item, from, till time.Time) ([]printing.Sample, error) {
	valueType, err := strconv.Atoi(item.ValueType)
	if err != nil {
		valueType = 3
	}

	raw, err := s.upstream.Call(ctx, id.TenantID, connID, "history.get", map[string]any{
		"output":    "extend",
		"history":   valueType,
		"itemids":   []string{item.ItemID},
		"time_from": from.Unix(),
		"time_till": till.Unix(),
		"sortfield": "clock",
		"sortorder": "ASC",
	})
	if err != nil {
		return nil, err
	}

	var points []historyPoint
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, fmt.Errorf("%w: unexpected history.get result", common.ErrUpstreamError)
	}

	samples := make([]printing.Sample, 0, len(points))
	for _, p := range points {
		clock, err := strconv.ParseInt(p.Clock, 10, 64)
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(p.Value, 64)
		if err != nil {
			continue
		}
		samples = append(samples, printing.Sample{Clock: time.Unix(clock, 0), Value: v})
	}
	return samples, nil
}
