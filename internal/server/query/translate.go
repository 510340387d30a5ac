package query

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/nocgateway/internal/common"
)

const (
	DefaultLimit = 1000
	MaxLimit     = 1000
)

// passThrough keys are accepted in the query string but never become filters.
var passThrough = map[string]struct{}{
	"on_conflict": {},
	"columns":     {},
	"apikey":      {},
	"_":           {},
}

// Query is the translator's output: a WHERE clause over numbered
// placeholders plus everything needed to finish a statement.
type Query struct {
	Schema  Schema
	Columns []string
	Where   string
	Args    []any
	OrderBy string
	Limit   int
	Offset  int

	filters int
}

// HasFilters reports whether the caller supplied at least one column filter.
// The tenant predicate does not count.
func (q *Query) HasFilters() bool { return q.filters > 0 }

// Projection renders the SELECT list.
func (q *Query) Projection() string {
	if len(q.Columns) == 0 {
		return q.Schema.Returning()
	}
	return strings.Join(q.Columns, ", ")
}

// Bind appends v to the argument list and returns its placeholder.
func (q *Query) Bind(v any) string {
	q.Args = append(q.Args, v)
	return "$" + strconv.Itoa(len(q.Args))
}

// Translate parses params for the relation described by schema, scoped to
// tenantID. Invalid input is rejected with common.ErrValidation.
func Translate(schema Schema, tenantID string, params url.Values) (*Query, error) {
	q := &Query{Schema: schema, Limit: DefaultLimit}

	var preds []string

	switch schema.Scope {
	case ScopeTenantColumn:
		preds = append(preds, "tenant_id = "+q.Bind(tenantID))
	case ScopeViaDashboard:
		preds = append(preds, "dashboard_id IN (SELECT id FROM dashboards WHERE tenant_id = "+q.Bind(tenantID)+")")
	case ScopeTenantRow:
		preds = append(preds, "id = "+q.Bind(tenantID))
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		values := params[key]
		switch key {
		case "order":
			order, err := parseOrder(schema, last(values))
			if err != nil {
				return nil, err
			}
			q.OrderBy = order
			continue
		case "limit":
			n, err := parseNonNegative(key, last(values))
			if err != nil {
				return nil, err
			}
			q.Limit = min(n, MaxLimit)
			continue
		case "offset":
			n, err := parseNonNegative(key, last(values))
			if err != nil {
				return nil, err
			}
			q.Offset = n
			continue
		case "select":
			cols, err := parseSelect(schema, last(values))
			if err != nil {
				return nil, err
			}
			q.Columns = cols
			continue
		}
		if _, ok := passThrough[key]; ok {
			continue
		}

		if !schema.Readable(key) {
			return nil, validationf("unknown column %q", key)
		}
		for _, v := range values {
			pred, err := q.filter(key, v)
			if err != nil {
				return nil, err
			}
			preds = append(preds, pred)
			q.filters++
		}
	}

	if q.OrderBy == "" && schema.DefaultOrder != "" {
		q.OrderBy = schema.DefaultOrder + " DESC"
	}
	q.Where = strings.Join(preds, " AND ")

	return q, nil
}

func (q *Query) filter(col, raw string) (string, error) {
	op, value, ok := strings.Cut(raw, ".")
	if !ok {
		return "", validationf("filter %s=%q has no operator", col, raw)
	}

	negate := false
	if op == "not" {
		negate = true
		op, value, ok = strings.Cut(value, ".")
		if !ok {
			return "", validationf("filter %s=%q has no operator after not", col, raw)
		}
	}

	var pred string
	switch op {
	case "eq":
		pred = col + " = " + q.Bind(value)
	case "neq":
		pred = col + " <> " + q.Bind(value)
	case "gt":
		pred = col + " > " + q.Bind(value)
	case "gte":
		pred = col + " >= " + q.Bind(value)
	case "lt":
		pred = col + " < " + q.Bind(value)
	case "lte":
		pred = col + " <= " + q.Bind(value)
	case "like":
		pred = col + " LIKE " + q.Bind(strings.ReplaceAll(value, "*", "%"))
	case "ilike":
		pred = col + " ILIKE " + q.Bind(strings.ReplaceAll(value, "*", "%"))
	case "is":
		switch value {
		case "null":
			pred = col + " IS NULL"
		case "true":
			pred = col + " IS TRUE"
		case "false":
			pred = col + " IS FALSE"
		default:
			return "", validationf("is.%s is not one of null, true, false", value)
		}
	case "in":
		items, err := parseList(value)
		if err != nil {
			return "", err
		}
		holders := make([]string, len(items))
		for i, it := range items {
			holders[i] = q.Bind(it)
		}
		pred = col + " IN (" + strings.Join(holders, ", ") + ")"
	case "cs":
		pred = col + " @> " + q.Bind(value)
	default:
		return "", validationf("unknown operator %q", op)
	}

	if negate {
		switch op {
		case "eq", "is", "in", "like", "ilike":
			return "NOT (" + pred + ")", nil
		default:
			return "", validationf("not.%s is not supported", op)
		}
	}
	return pred, nil
}

// parseList reads "(a,b,"c,d")" into its items. Double quotes protect commas.
func parseList(value string) ([]string, error) {
	if len(value) < 2 || value[0] != '(' || value[len(value)-1] != ')' {
		return nil, validationf("in. list %q must be parenthesized", value)
	}
	body := value[1 : len(value)-1]
	if strings.TrimSpace(body) == "" {
		return nil, validationf("in. list is empty")
	}

	var (
		items   []string
		cur     strings.Builder
		quoted  bool
		wasQuot bool
	)
	for _, r := range body {
		switch {
		case r == '"':
			quoted = !quoted
			wasQuot = true
		case r == ',' && !quoted:
			items = append(items, finishItem(cur.String(), wasQuot))
			cur.Reset()
			wasQuot = false
		default:
			cur.WriteRune(r)
		}
	}
	if quoted {
		return nil, validationf("in. list %q has an unterminated quote", value)
	}
	items = append(items, finishItem(cur.String(), wasQuot))

	for _, it := range items {
		if it == "" {
			return nil, validationf("in. list %q has an empty item", value)
		}
	}
	return items, nil
}

func finishItem(s string, quoted bool) string {
	if quoted {
		return s
	}
	return strings.TrimSpace(s)
}

func parseOrder(schema Schema, raw string) (string, error) {
	var terms []string
	for _, term := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(term), ".")
		col := parts[0]
		if !schema.Readable(col) {
			return "", validationf("cannot order by unknown column %q", col)
		}

		dir, nulls := "ASC", ""
		for _, p := range parts[1:] {
			switch p {
			case "asc":
				dir = "ASC"
			case "desc":
				dir = "DESC"
			case "nullsfirst":
				nulls = " NULLS FIRST"
			case "nullslast":
				nulls = " NULLS LAST"
			default:
				return "", validationf("invalid order modifier %q", p)
			}
		}
		terms = append(terms, col+" "+dir+nulls)
	}
	return strings.Join(terms, ", "), nil
}

func parseSelect(schema Schema, raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "*" {
		return nil, nil
	}
	var cols []string
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		if !schema.Readable(c) {
			return nil, validationf("cannot select unknown column %q", c)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

func parseNonNegative(key, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, validationf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func last(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrValidation, fmt.Sprintf(format, args...))
}
