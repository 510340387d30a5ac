package nodes

import (
	"context"

	"github.com/dmitrijs2005/nocgateway/internal/server/models"
)

// Box is a latitude/longitude bounding box.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

type Repository interface {
	InBox(ctx context.Context, tenantID, mapID string, box Box) ([]*models.NearbyNode, error)
	MapStatus(ctx context.Context, tenantID, mapID string) ([]*models.NodeStatus, error)
}
