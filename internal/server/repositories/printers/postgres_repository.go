// Package printers persists printer device configs and billing snapshots.
package printers

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/nocgateway/internal/dbx"
	"github.com/dmitrijs2005/nocgateway/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListConfigs returns device configs of a connection, or of the whole tenant
// when connID is empty.
func (r *PostgresRepository) ListConfigs(ctx context.Context, tenantID, connID string) ([]*models.PrinterConfig, error) {
	query :=
		`SELECT id, tenant_id, COALESCE(connection_id::text, ''), device_id, label, base_counter
		 FROM printer_configs
		 WHERE tenant_id = $1 AND ($2 = '' OR connection_id::text = $2)
		 ORDER BY label, device_id
		 `

	rows, err := r.db.QueryContext(ctx, query, tenantID, connID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.PrinterConfig
	for rows.Next() {
		var c models.PrinterConfig
		if err := rows.Scan(&c.ID, &c.TenantID, &c.ConnectionID, &c.DeviceID, &c.Label, &c.BaseCounter); err != nil {
			return nil, err
		}
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertConfig inserts or updates the config keyed on (tenant, device).
func (r *PostgresRepository) UpsertConfig(ctx context.Context, cfg *models.PrinterConfig, actorID string) (*models.PrinterConfig, error) {
	query :=
		`INSERT INTO printer_configs (tenant_id, connection_id, device_id, label, base_counter, created_by)
		 VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6)
		 ON CONFLICT (tenant_id, device_id)
		 DO UPDATE SET
			connection_id = EXCLUDED.connection_id,
			label = EXCLUDED.label,
			base_counter = EXCLUDED.base_counter,
			updated_at = now()
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		cfg.TenantID, cfg.ConnectionID, cfg.DeviceID, cfg.Label, cfg.BaseCounter, actorID).Scan(&cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return cfg, nil
}

// AppendSnapshot inserts a new billing snapshot. Snapshots are never updated.
func (r *PostgresRepository) AppendSnapshot(ctx context.Context, s *models.BillingSnapshot) (*models.BillingSnapshot, error) {
	query :=
		`INSERT INTO billing_snapshots (tenant_id, connection_id, period, entries, total, created_by)
		 VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		s.TenantID, s.ConnectionID, s.Period, string(s.Entries), s.Total, s.CreatedBy).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

var _ Repository = (*PostgresRepository)(nil)
