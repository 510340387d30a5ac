package query

import (
	"sort"
	"strconv"
	"strings"
)

// SelectSQL renders the list statement for q.
func (q *Query) SelectSQL() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(q.Projection())
	b.WriteString(" FROM ")
	b.WriteString(q.Schema.Name)
	q.writeWhere(&b)
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.OrderBy)
	}
	b.WriteString(" LIMIT ")
	b.WriteString(strconv.Itoa(q.Limit))
	if q.Offset > 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(q.Offset))
	}
	return b.String()
}

// CountSQL renders a count over the same predicate, ignoring paging.
func (q *Query) CountSQL() string {
	var b strings.Builder
	b.WriteString("SELECT count(*) FROM ")
	b.WriteString(q.Schema.Name)
	q.writeWhere(&b)
	return b.String()
}

// UpdateSQL renders an UPDATE of set under q's predicate. set must already be
// validated against the schema; its values are appended to q.Args.
func (q *Query) UpdateSQL(set map[string]any) string {
	cols := sortedKeys(set)
	assignments := make([]string, len(cols))
	for i, c := range cols {
		assignments[i] = c + " = " + q.Bind(set[c])
	}

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(q.Schema.Name)
	b.WriteString(" SET ")
	b.WriteString(strings.Join(assignments, ", "))
	q.writeWhere(&b)
	b.WriteString(" RETURNING ")
	b.WriteString(q.Schema.Returning())
	return b.String()
}

// DeleteSQL renders a DELETE under q's predicate.
func (q *Query) DeleteSQL() string {
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(q.Schema.Name)
	q.writeWhere(&b)
	b.WriteString(" RETURNING ")
	b.WriteString(q.Schema.Returning())
	return b.String()
}

func (q *Query) writeWhere(b *strings.Builder) {
	if q.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(q.Where)
	}
}

// InsertSQL renders a multi-row INSERT for rows. The column list is the union
// of keys across rows; a row lacking a key gets DEFAULT. With onConflict set,
// every other submitted column is updated from EXCLUDED, but only where the
// conflicting row already belongs to tenantID.
func InsertSQL(schema Schema, tenantID string, rows []map[string]any, onConflict []string) (string, []any) {
	seen := map[string]struct{}{}
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	cols := sortedKeys(seen)

	var (
		args   []any
		tuples = make([]string, len(rows))
	)
	for i, r := range rows {
		holders := make([]string, len(cols))
		for j, c := range cols {
			v, ok := r[c]
			if !ok {
				holders[j] = "DEFAULT"
				continue
			}
			args = append(args, v)
			holders[j] = "$" + strconv.Itoa(len(args))
		}
		tuples[i] = "(" + strings.Join(holders, ", ") + ")"
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(schema.Name)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")
	b.WriteString(strings.Join(tuples, ", "))

	if len(onConflict) > 0 {
		target := map[string]struct{}{}
		for _, c := range onConflict {
			target[c] = struct{}{}
		}
		var updates []string
		for _, c := range cols {
			if _, ok := target[c]; ok || c == "id" || c == "tenant_id" || c == "created_by" || c == "created_at" {
				continue
			}
			updates = append(updates, c+" = EXCLUDED."+c)
		}
		b.WriteString(" ON CONFLICT (")
		b.WriteString(strings.Join(onConflict, ", "))
		if len(updates) == 0 {
			b.WriteString(") DO NOTHING")
		} else {
			b.WriteString(") DO UPDATE SET ")
			b.WriteString(strings.Join(updates, ", "))
			args = append(args, tenantID)
			b.WriteString(" WHERE ")
			b.WriteString(conflictGuard(schema, "$"+strconv.Itoa(len(args))))
		}
	}
	b.WriteString(" RETURNING ")
	b.WriteString(schema.Returning())
	return b.String(), args
}

// conflictGuard restricts DO UPDATE to existing rows of the tenant bound at
// placeholder.
func conflictGuard(schema Schema, placeholder string) string {
	switch schema.Scope {
	case ScopeViaDashboard:
		return schema.Name + ".dashboard_id IN (SELECT id FROM dashboards WHERE tenant_id = " + placeholder + ")"
	case ScopeTenantRow:
		return schema.Name + ".id = " + placeholder
	default:
		return schema.Name + ".tenant_id = " + placeholder
	}
}

// ParseConflict validates an on_conflict=a,b parameter against schema.
func ParseConflict(schema Schema, raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var cols []string
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		if !schema.Has(c) {
			return nil, validationf("on_conflict column %q is unknown", c)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
