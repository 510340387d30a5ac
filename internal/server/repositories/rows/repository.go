// Package rows executes translated row-store statements over a dbx.DBTX and
// returns generic JSON-ready records.
package rows

import (
	"context"

	"github.com/dmitrijs2005/nocgateway/internal/server/query"
)

// Record is one row keyed by column name.
type Record = map[string]any

type Repository interface {
	List(ctx context.Context, q *query.Query) ([]Record, error)
	Count(ctx context.Context, q *query.Query) (int64, error)
	Insert(ctx context.Context, schema query.Schema, tenantID string, records []Record, onConflict []string) ([]Record, error)
	Update(ctx context.Context, q *query.Query, set Record) ([]Record, error)
	Delete(ctx context.Context, q *query.Query) ([]Record, error)
	InTenant(ctx context.Context, parent, tenantID, id string) (bool, error)
}
