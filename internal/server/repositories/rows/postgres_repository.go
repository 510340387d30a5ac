package rows

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/nocgateway/internal/dbx"
	"github.com/dmitrijs2005/nocgateway/internal/server/query"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) List(ctx context.Context, q *query.Query) ([]Record, error) {
	return r.query(ctx, q.Schema, q.SelectSQL(), q.Args)
}

func (r *PostgresRepository) Count(ctx context.Context, q *query.Query) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, q.CountSQL(), q.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, schema query.Schema, tenantID string, records []Record, onConflict []string) ([]Record, error) {
	stmt, args := query.InsertSQL(schema, tenantID, records, onConflict)
	return r.query(ctx, schema, stmt, args)
}

func (r *PostgresRepository) Update(ctx context.Context, q *query.Query, set Record) ([]Record, error) {
	stmt := q.UpdateSQL(set)
	return r.query(ctx, q.Schema, stmt, q.Args)
}

func (r *PostgresRepository) Delete(ctx context.Context, q *query.Query) ([]Record, error) {
	return r.query(ctx, q.Schema, q.DeleteSQL(), q.Args)
}

// InTenant reports whether the parent relation holds row id under tenantID.
// parent must be an exposed relation with a tenant_id column.
func (r *PostgresRepository) InTenant(ctx context.Context, parent, tenantID, id string) (bool, error) {
	schema, err := query.Lookup(parent)
	if err != nil {
		return false, err
	}
	if schema.Scope != query.ScopeTenantColumn {
		return false, fmt.Errorf("%s has no tenant_id", parent)
	}

	var ok bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+schema.Name+` WHERE id = $1 AND tenant_id = $2)`,
		id, tenantID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) query(ctx context.Context, schema query.Schema, stmt string, args []any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns error: %w", err)
	}

	result := []Record{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}

		rec := make(Record, len(cols))
		for i, c := range cols {
			rec[c] = normalize(schema, c, values[i])
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func normalize(schema query.Schema, col string, v any) any {
	switch val := v.(type) {
	case []byte:
		if schema.IsJSON(col) && json.Valid(val) {
			return json.RawMessage(append([]byte(nil), val...))
		}
		return string(val)
	case string:
		if schema.IsJSON(col) && json.Valid([]byte(val)) {
			return json.RawMessage(val)
		}
		return val
	default:
		return v
	}
}

var _ Repository = (*PostgresRepository)(nil)
