// Package heartbeats records last-seen times of external webhook sources.
package heartbeats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/dbx"
	"github.com/dmitrijs2005/nocgateway/internal/server/models"
)

type Repository interface {
	Touch(ctx context.Context, tenantID, source string, payload json.RawMessage, at time.Time) (*models.Heartbeat, error)
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Touch upserts the source's last-seen time, counting every call.
func (r *PostgresRepository) Touch(ctx context.Context, tenantID, source string, payload json.RawMessage, at time.Time) (*models.Heartbeat, error) {
	query :=
		`INSERT INTO heartbeats (tenant_id, source, last_seen_at, payload)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant_id, source)
		 DO UPDATE SET
			last_seen_at = EXCLUDED.last_seen_at,
			payload = EXCLUDED.payload,
			event_count = heartbeats.event_count + 1
		 RETURNING source, last_seen_at, event_count
		 `

	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	var (
		hb   models.Heartbeat
		seen time.Time
	)
	err := r.db.QueryRowContext(ctx, query, tenantID, source, at, string(payload)).Scan(&hb.Source, &seen, &hb.EventCount)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	hb.LastSeenAt = seen.UTC().Format(time.RFC3339)
	return &hb, nil
}

var _ Repository = (*PostgresRepository)(nil)
