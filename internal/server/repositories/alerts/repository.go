package alerts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, tenantID, alertID string) (*models.AlertState, error)
	ApplyTransition(ctx context.Context, tenantID, alertID, status, actorID string, at time.Time) (*models.AlertState, error)
	AppendEvent(ctx context.Context, event *models.AlertEvent) (*models.AlertEvent, error)
}
