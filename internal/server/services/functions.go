package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/dmitrijs2005/nocgateway/internal/server/auth"
	"github.com/dmitrijs2005/nocgateway/internal/server/models"
)

// Function is one of the gateway functions under /functions/v1/{name}.
type Function int

const (
	FnUpstreamProxy Function = iota + 1
	FnPrinterCounters
	FnPrinterConfig
	FnPrinterSnapshot
	FnPrinterForecast
	FnPrinterHeatmap
)

var functionNames = map[string]Function{
	"upstream-proxy":           FnUpstreamProxy,
	"printer-counters":         FnPrinterCounters,
	"printer-config":           FnPrinterConfig,
	"printer-billing-snapshot": FnPrinterSnapshot,
	"printer-forecast":         FnPrinterForecast,
	"printer-heatmap":          FnPrinterHeatmap,
}

// ParseFunction maps a route name to a Function.
func ParseFunction(name string) (Function, error) {
	f, ok := functionNames[name]
	if !ok {
		return 0, fmt.Errorf("%w: function %s", common.ErrRelationNotFound, name)
	}
	return f, nil
}

func (f Function) String() string {
	for name, v := range functionNames {
		if v == f {
			return name
		}
	}
	return fmt.Sprintf("Function(%d)", int(f))
}

type proxyArgs struct {
	ConnectionID string          `json:"connection_id"`
	Method       string          `json:"method"`
	Params       json.RawMessage `json:"params"`
}

type connectionArgs struct {
	ConnectionID string `json:"connection_id"`
}

type printerConfigArgs struct {
	ConnectionID string `json:"connection_id"`
	DeviceID     string `json:"device_id"`
	Label        string `json:"label"`
	BaseCounter  int64  `json:"base_counter"`
}

// FunctionService dispatches gateway functions.
type FunctionService struct {
	upstream UpstreamCaller
	printers *PrinterService
}

func NewFunctionService(upstream UpstreamCaller, printers *PrinterService) *FunctionService {
	return &FunctionService{upstream: upstream, printers: printers}
}

// Invoke runs f with JSON arguments on behalf of id.
func (s *FunctionService) Invoke(ctx context.Context, id auth.Identity, f Function, args []byte) (any, error) {
	switch f {
	case FnUpstreamProxy:
		var a proxyArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if a.ConnectionID == "" || a.Method == "" {
			return nil, fmt.Errorf("%w: connection_id and method are required", common.ErrValidation)
		}
		var params any = map[string]any{}
		if len(a.Params) > 0 && string(a.Params) != "null" {
			params = a.Params
		}
		return s.upstream.Call(ctx, id.TenantID, a.ConnectionID, a.Method, params)
	case FnPrinterCounters:
		var a connectionArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return s.printers.Counters(ctx, id, a.ConnectionID)
	case FnPrinterConfig:
		var a printerConfigArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return s.printers.UpsertConfig(ctx, id, models.PrinterConfig{
			ConnectionID: a.ConnectionID,
			DeviceID:     a.DeviceID,
			Label:        a.Label,
			BaseCounter:  a.BaseCounter,
		})
	case FnPrinterSnapshot:
		var a connectionArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return s.printers.Snapshot(ctx, id, a.ConnectionID)
	case FnPrinterForecast:
		var a connectionArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return s.printers.Forecast(ctx, id, a.ConnectionID)
	case FnPrinterHeatmap:
		var a connectionArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return s.printers.Heatmap(ctx, id, a.ConnectionID)
	default:
		return nil, fmt.Errorf("%w: function %s", common.ErrRelationNotFound, f)
	}
}
