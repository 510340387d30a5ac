package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/dmitrijs2005/nocgateway/internal/server/auth"
	"github.com/dmitrijs2005/nocgateway/internal/server/query"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/rows"
	"github.com/dmitrijs2005/nocgateway/internal/timex"
)

// immutableColumns are never taken from an update body.
var immutableColumns = []string{"id", "tenant_id", "created_by", "created_at"}

// ListResult is a page of rows and, when requested, the total match count.
type ListResult struct {
	Rows  []rows.Record
	Total *int64
}

// RowService is the generic row store behind /rest/v1/{relation}.
type RowService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	now         timex.Clock
}

func NewRowService(db *sql.DB, m repomanager.RepositoryManager) *RowService {
	return &RowService{db: db, repomanager: m, now: time.Now}
}

// List returns the rows matching params. With count set, Total carries the
// unpaginated match count.
func (s *RowService) List(ctx context.Context, id auth.Identity, relation string, params url.Values, count bool) (*ListResult, error) {
	schema, err := query.Lookup(relation)
	if err != nil {
		return nil, err
	}
	q, err := query.Translate(schema, id.TenantID, params)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Rows(s.db)
	records, err := repo.List(ctx, q)
	if err != nil {
		return nil, err
	}

	res := &ListResult{Rows: records}
	if count {
		n, err := repo.Count(ctx, q)
		if err != nil {
			return nil, err
		}
		res.Total = &n
	}
	return res, nil
}

// Create inserts one row (object body) or many (array body). tenant_id and
// created_by are stamped from the caller. With on_conflict in params the
// insert becomes an upsert on those columns.
func (s *RowService) Create(ctx context.Context, id auth.Identity, relation string, params url.Values, body []byte) ([]rows.Record, error) {
	schema, err := s.writable(id, relation)
	if err != nil {
		return nil, err
	}
	if schema.Scope == query.ScopeTenantRow {
		return nil, fmt.Errorf("%w: %s rows cannot be created here", common.ErrForbidden, relation)
	}
	onConflict, err := query.ParseConflict(schema, params.Get("on_conflict"))
	if err != nil {
		return nil, err
	}

	objects, err := decodeObjects(body)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Rows(s.db)
	refs := refChecker{repo: repo, tenantID: id.TenantID}
	records := make([]rows.Record, 0, len(objects))
	for _, obj := range objects {
		rec, err := bindRecord(schema, obj)
		if err != nil {
			return nil, err
		}
		switch schema.Scope {
		case query.ScopeTenantColumn:
			rec["tenant_id"] = id.TenantID
		case query.ScopeViaDashboard:
			if v, _ := rec["dashboard_id"].(string); v == "" {
				return nil, fmt.Errorf("%w: dashboard_id is required", common.ErrValidation)
			}
		}
		if err := refs.check(ctx, schema, rec); err != nil {
			return nil, err
		}
		if schema.HasCreatedBy() {
			rec["created_by"] = id.UserID
		}
		records = append(records, rec)
	}

	return repo.Insert(ctx, schema, id.TenantID, records, onConflict)
}

// Update patches every row matching params. A request without filters is
// rejected before any SQL runs.
func (s *RowService) Update(ctx context.Context, id auth.Identity, relation string, params url.Values, body []byte) ([]rows.Record, error) {
	schema, err := s.writable(id, relation)
	if err != nil {
		return nil, err
	}
	q, err := query.Translate(schema, id.TenantID, params)
	if err != nil {
		return nil, err
	}
	if !q.HasFilters() {
		return nil, fmt.Errorf("%w: update requires at least one filter", common.ErrValidation)
	}

	objects, err := decodeObjects(body)
	if err != nil {
		return nil, err
	}
	if len(objects) != 1 {
		return nil, fmt.Errorf("%w: update body must be a single object", common.ErrValidation)
	}
	for _, c := range immutableColumns {
		delete(objects[0], c)
	}
	set, err := bindRecord(schema, objects[0])
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", common.ErrValidation)
	}

	repo := s.repomanager.Rows(s.db)
	if v, ok := set["dashboard_id"]; ok && v == nil && schema.Scope == query.ScopeViaDashboard {
		return nil, fmt.Errorf("%w: dashboard_id cannot be cleared", common.ErrValidation)
	}
	refs := refChecker{repo: repo, tenantID: id.TenantID}
	if err := refs.check(ctx, schema, set); err != nil {
		return nil, err
	}
	if schema.Has("updated_at") {
		if _, ok := set["updated_at"]; !ok {
			set["updated_at"] = s.now().UTC()
		}
	}

	return repo.Update(ctx, q, set)
}

// Delete removes every row matching params. A request without filters is
// rejected before any SQL runs.
func (s *RowService) Delete(ctx context.Context, id auth.Identity, relation string, params url.Values) ([]rows.Record, error) {
	schema, err := s.writable(id, relation)
	if err != nil {
		return nil, err
	}
	if schema.Scope == query.ScopeTenantRow {
		return nil, fmt.Errorf("%w: %s rows cannot be deleted here", common.ErrForbidden, relation)
	}
	q, err := query.Translate(schema, id.TenantID, params)
	if err != nil {
		return nil, err
	}
	if !q.HasFilters() {
		return nil, fmt.Errorf("%w: delete requires at least one filter", common.ErrValidation)
	}
	return s.repomanager.Rows(s.db).Delete(ctx, q)
}

func (s *RowService) writable(id auth.Identity, relation string) (query.Schema, error) {
	schema, err := query.Lookup(relation)
	if err != nil {
		return query.Schema{}, err
	}
	switch {
	case schema.ReadOnly:
		return query.Schema{}, fmt.Errorf("%w: %s is read-only", common.ErrForbidden, relation)
	case schema.AdminWrite && !id.IsAdmin():
		return query.Schema{}, fmt.Errorf("%w: %s requires admin", common.ErrForbidden, relation)
	case id.Role == auth.RoleViewer:
		return query.Schema{}, fmt.Errorf("%w: viewers cannot modify rows", common.ErrForbidden)
	}
	return schema, nil
}

// refChecker verifies that reference columns name rows of the caller's
// tenant. Answers are remembered for the duration of one request.
type refChecker struct {
	repo     rows.Repository
	tenantID string
	seen     map[query.Ref]map[string]bool
}

func (c *refChecker) check(ctx context.Context, schema query.Schema, rec rows.Record) error {
	for _, ref := range schema.Refs() {
		v, present := rec[ref.Column]
		if !present || v == nil {
			continue
		}
		target, ok := v.(string)
		if !ok || target == "" {
			return fmt.Errorf("%w: %s must be an id", common.ErrValidation, ref.Column)
		}

		owned, known := c.seen[ref][target]
		if !known {
			var err error
			owned, err = c.repo.InTenant(ctx, ref.Parent, c.tenantID, target)
			if err != nil {
				return err
			}
			if c.seen == nil {
				c.seen = map[query.Ref]map[string]bool{}
			}
			if c.seen[ref] == nil {
				c.seen[ref] = map[string]bool{}
			}
			c.seen[ref][target] = owned
		}
		if !owned {
			return fmt.Errorf("%w: %s %s", common.ErrForbidden, ref.Parent, target)
		}
	}
	return nil
}

// decodeObjects accepts a JSON object or a non-empty array of objects.
func decodeObjects(body []byte) ([]map[string]any, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: request body is empty", common.ErrValidation)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	if body[0] == '[' {
		var out []map[string]any
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("%w: invalid JSON array body", common.ErrValidation)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: request body is an empty array", common.ErrValidation)
		}
		for _, o := range out {
			if o == nil {
				return nil, fmt.Errorf("%w: array items must be objects", common.ErrValidation)
			}
		}
		return out, nil
	}

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", common.ErrValidation)
	}
	return []map[string]any{obj}, nil
}

// bindRecord checks keys against the schema and converts JSON values into
// bind parameters. jsonb columns receive their JSON text.
func bindRecord(schema query.Schema, obj map[string]any) (rows.Record, error) {
	rec := make(rows.Record, len(obj))
	for k, v := range obj {
		if !schema.Has(k) {
			return nil, fmt.Errorf("%w: unknown column %q for %s", common.ErrValidation, k, schema.Name)
		}
		if schema.IsJSON(k) {
			if v == nil {
				rec[k] = nil
				continue
			}
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("%w: column %q", common.ErrValidation, k)
			}
			rec[k] = string(raw)
			continue
		}
		bound, err := scalar(v)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", common.ErrValidation, k, err)
		}
		rec[k] = bound
	}
	return rec, nil
}

func scalar(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool:
		return val, nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("expected a scalar value, got %T", v)
	}
}
