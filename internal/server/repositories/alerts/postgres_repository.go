// Package alerts persists alert state transitions and their audit events.
package alerts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/dmitrijs2005/nocgateway/internal/dbx"
	"github.com/dmitrijs2005/nocgateway/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get reads an alert within the tenant. No row lock is taken; the
// conditional stamps in ApplyTransition keep the first writer's values.
func (r *PostgresRepository) Get(ctx context.Context, tenantID, alertID string) (*models.AlertState, error) {
	query :=
		`SELECT id, status, acknowledged_at, acknowledged_by, resolved_at, resolved_by
		 FROM alerts
		 WHERE id = $1 AND tenant_id = $2
		 `

	s := &models.AlertState{}
	err := r.db.QueryRowContext(ctx, query, alertID, tenantID).Scan(
		&s.ID, &s.Status, &s.AcknowledgedAt, &s.AcknowledgedBy, &s.ResolvedAt, &s.ResolvedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// ApplyTransition sets the new status. Acknowledge and resolve stamps are
// written only while still NULL, so the first actor and instant are kept.
func (r *PostgresRepository) ApplyTransition(ctx context.Context, tenantID, alertID, status, actorID string, at time.Time) (*models.AlertState, error) {
	query :=
		`UPDATE alerts SET
			status = $1,
			acknowledged_at = CASE WHEN $1 = 'ack' THEN COALESCE(acknowledged_at, $2) ELSE acknowledged_at END,
			acknowledged_by = CASE WHEN $1 = 'ack' THEN COALESCE(acknowledged_by, $3) ELSE acknowledged_by END,
			resolved_at = CASE WHEN $1 = 'resolved' THEN COALESCE(resolved_at, $2) ELSE resolved_at END,
			resolved_by = CASE WHEN $1 = 'resolved' THEN COALESCE(resolved_by, $3) ELSE resolved_by END,
			updated_at = $2
		 WHERE id = $4 AND tenant_id = $5
		 RETURNING id, status, acknowledged_at, acknowledged_by, resolved_at, resolved_by
		 `

	s := &models.AlertState{}
	err := r.db.QueryRowContext(ctx, query, status, at, actorID, alertID, tenantID).Scan(
		&s.ID, &s.Status, &s.AcknowledgedAt, &s.AcknowledgedBy, &s.ResolvedAt, &s.ResolvedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) AppendEvent(ctx context.Context, e *models.AlertEvent) (*models.AlertEvent, error) {
	query :=
		`INSERT INTO alert_events (tenant_id, alert_id, event_type, from_status, to_status, actor_id, message, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at
		 `

	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	err := r.db.QueryRowContext(ctx, query,
		e.TenantID, e.AlertID, e.EventType, e.FromStatus, e.ToStatus, e.ActorID, e.Message, string(payload),
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	e.Payload = payload
	return e, nil
}

var _ Repository = (*PostgresRepository)(nil)
