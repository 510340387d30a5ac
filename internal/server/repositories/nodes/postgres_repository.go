// Package nodes reads infrastructure nodes and their propagated status.
package nodes

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

// InBox returns the map's nodes inside box. Distance is left for the caller.
func (r *PostgresRepository) InBox(ctx context.Context, tenantID, mapID string, box Box) ([]*models.NearbyNode, error) {
	query :=
		`SELECT id, name, kind, lat, lng, capacity, used_ports
		 FROM nodes
		 WHERE tenant_id = $1 AND map_id = $2
		   AND lat BETWEEN $3 AND $4
		   AND lng BETWEEN $5 AND $6
		 `

	rows, err := r.db.QueryContext(ctx, query, tenantID, mapID, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.NearbyNode
	for rows.Next() {
		var n models.NearbyNode
		if err := rows.Scan(&n.ID, &n.Name, &n.Kind, &n.Lat, &n.Lng, &n.Capacity, &n.UsedPorts); err != nil {
			return nil, err
		}
		result = append(result, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MapStatus reads the precomputed status propagation for a map.
func (r *PostgresRepository) MapStatus(ctx context.Context, tenantID, mapID string) ([]*models.NodeStatus, error) {
	query :=
		`SELECT node_id, effective_status, is_root_cause, depth
		 FROM node_status_view
		 WHERE tenant_id = $1 AND map_id = $2
		 ORDER BY depth, node_id
		 `

	rows, err := r.db.QueryContext(ctx, query, tenantID, mapID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []*models.NodeStatus{}
	for rows.Next() {
		var s models.NodeStatus
		if err := rows.Scan(&s.NodeID, &s.EffectiveStatus, &s.IsRootCause, &s.Depth); err != nil {
			return nil, err
		}
		result = append(result, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

var _ Repository = (*PostgresRepository)(nil)
