package printers

import (
	"context"

	"github.com/dmitrijs2005/nocgateway/internal/server/models"
)

type Repository interface {
	ListConfigs(ctx context.Context, tenantID, connID string) ([]*models.PrinterConfig, error)
	UpsertConfig(ctx context.Context, cfg *models.PrinterConfig, actorID string) (*models.PrinterConfig, error)
	AppendSnapshot(ctx context.Context, snap *models.BillingSnapshot) (*models.BillingSnapshot, error)
}
