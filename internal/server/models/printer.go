package models

import (
	"encoding/json"
	"time"
)

// PrinterConfig maps an upstream device to a label and a billing offset.
type PrinterConfig struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	ConnectionID string `json:"connection_id"`
	DeviceID     string `json:"device_id"`
	Label        string `json:"label"`
	BaseCounter  int64  `json:"base_counter"`
}

// BillingSnapshot is an append-only monthly billing record.
type BillingSnapshot struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	ConnectionID string          `json:"connection_id"`
	Period       string          `json:"period"`
	Entries      json.RawMessage `json:"entries"`
	Total        int64           `json:"total"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}
