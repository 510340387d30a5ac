// Package query translates the BaaS URL filter language into parameterized,
// tenant-scoped SQL. Columns are validated against a fixed per-relation
// schema; values only ever travel as bind parameters.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/nocgateway/internal/common"
)

// Scope says how a relation is tied to a tenant.
type Scope int

const (
	// ScopeTenantColumn relations carry tenant_id directly.
	ScopeTenantColumn Scope = iota
	// ScopeViaDashboard relations (widgets) are scoped through their parent dashboard.
	ScopeViaDashboard
	// ScopeTenantRow is the tenants relation itself: a caller only sees the
	// row whose id is their tenant.
	ScopeTenantRow
)

// Ref ties a column to the tenant-scoped relation its value points at.
type Ref struct {
	Column string
	Parent string
}

// Schema describes one relation exposed through the row store.
type Schema struct {
	Name    string
	Scope   Scope
	columns   map[string]struct{}
	json      map[string]struct{}
	writeOnly map[string]struct{}
	refs      []Ref
	// DefaultOrder is sorted DESC when the caller gives no order.
	DefaultOrder string
	// ReadOnly relations accept List only.
	ReadOnly bool
	// AdminWrite relations accept mutations from admins only.
	AdminWrite bool
}

// Has reports whether column belongs to the relation.
func (s Schema) Has(column string) bool {
	_, ok := s.columns[column]
	return ok
}

// IsJSON reports whether column holds jsonb.
func (s Schema) IsJSON(column string) bool {
	_, ok := s.json[column]
	return ok
}

// Readable reports whether column may be selected, filtered, ordered on or
// returned. Write-only columns are accepted in bodies and never read back.
func (s Schema) Readable(column string) bool {
	if !s.Has(column) {
		return false
	}
	_, hidden := s.writeOnly[column]
	return !hidden
}

// Returning renders the column list handed back to callers: "*" unless the
// relation hides write-only columns.
func (s Schema) Returning() string {
	if len(s.writeOnly) == 0 {
		return "*"
	}
	var cols []string
	for _, c := range s.Columns() {
		if s.Readable(c) {
			cols = append(cols, c)
		}
	}
	return strings.Join(cols, ", ")
}

// Refs lists the columns whose values must name a row of the caller's tenant.
func (s Schema) Refs() []Ref { return s.refs }

// HasCreatedBy reports whether rows are stamped with their author.
func (s Schema) HasCreatedBy() bool { return s.Has("created_by") }

// Columns returns the relation's columns in sorted order.
func (s Schema) Columns() []string {
	out := make([]string, 0, len(s.columns))
	for c := range s.columns {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func relation(name string, scope Scope, cols ...string) Schema {
	s := Schema{Name: name, Scope: scope, columns: make(map[string]struct{}, len(cols))}
	for _, c := range cols {
		if !validIdent(c) {
			panic(fmt.Sprintf("query: invalid column %q in relation %q", c, name))
		}
		s.columns[c] = struct{}{}
	}
	if s.Has("created_at") {
		s.DefaultOrder = "created_at"
	}
	return s
}

func (s Schema) readOnly() Schema   { s.ReadOnly = true; return s }
func (s Schema) adminWrite() Schema { s.AdminWrite = true; return s }

func (s Schema) hidden(cols ...string) Schema {
	s.writeOnly = make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if !s.Has(c) {
			panic(fmt.Sprintf("query: write-only column %q is not in relation %q", c, s.Name))
		}
		s.writeOnly[c] = struct{}{}
	}
	return s
}

// ref declares column -> parent pairs.
func (s Schema) ref(pairs ...string) Schema {
	for i := 0; i+1 < len(pairs); i += 2 {
		if !s.Has(pairs[i]) {
			panic(fmt.Sprintf("query: ref column %q is not in relation %q", pairs[i], s.Name))
		}
		s.refs = append(s.refs, Ref{Column: pairs[i], Parent: pairs[i+1]})
	}
	return s
}

func (s Schema) jsonb(cols ...string) Schema {
	s.json = make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if !s.Has(c) {
			panic(fmt.Sprintf("query: jsonb column %q is not in relation %q", c, s.Name))
		}
		s.json[c] = struct{}{}
	}
	return s
}

var registry = func() map[string]Schema {
	rels := []Schema{
		relation("tenants", ScopeTenantRow,
			"id", "name", "created_at").adminWrite(),
		relation("profiles", ScopeTenantColumn,
			"id", "tenant_id", "email", "full_name", "phone", "avatar_url", "locale", "created_at", "updated_at").adminWrite(),
		relation("user_roles", ScopeTenantColumn,
			"id", "user_id", "tenant_id", "role", "created_at").ref("user_id", "profiles").adminWrite(),
		relation("maps", ScopeTenantColumn,
			"id", "tenant_id", "name", "description", "center_lat", "center_lng", "zoom", "created_by", "created_at", "updated_at"),
		relation("nodes", ScopeTenantColumn,
			"id", "tenant_id", "map_id", "name", "kind", "lat", "lng", "capacity", "used_ports", "status",
			"upstream_host_id", "metadata", "created_by", "created_at", "updated_at").jsonb("metadata").
			ref("map_id", "maps"),
		relation("links", ScopeTenantColumn,
			"id", "tenant_id", "map_id", "source_node_id", "target_node_id", "kind", "status", "metadata", "created_by", "created_at").jsonb("metadata").
			ref("map_id", "maps", "source_node_id", "nodes", "target_node_id", "nodes"),
		relation("node_status_view", ScopeTenantColumn,
			"tenant_id", "map_id", "node_id", "effective_status", "is_root_cause", "depth", "updated_at").readOnly(),
		relation("dashboards", ScopeTenantColumn,
			"id", "tenant_id", "name", "layout", "is_default", "created_by", "created_at", "updated_at").jsonb("layout"),
		relation("widgets", ScopeViaDashboard,
			"id", "dashboard_id", "kind", "title", "config", "position", "created_by", "created_at", "updated_at").jsonb("config", "position").
			ref("dashboard_id", "dashboards"),
		relation("alerts", ScopeTenantColumn,
			"id", "tenant_id", "title", "description", "severity", "status", "source", "node_id",
			"acknowledged_at", "acknowledged_by", "resolved_at", "resolved_by", "created_by", "created_at", "updated_at").
			ref("node_id", "nodes"),
		relation("alert_events", ScopeTenantColumn,
			"id", "tenant_id", "alert_id", "event_type", "from_status", "to_status", "actor_id", "message", "payload", "created_at").jsonb("payload").readOnly(),
		relation("upstream_connections", ScopeTenantColumn,
			"id", "tenant_id", "name", "base_url", "username", "password_ciphertext", "password_iv", "password_tag",
			"created_by", "created_at", "updated_at").hidden("password_ciphertext", "password_iv", "password_tag"),
		relation("printer_configs", ScopeTenantColumn,
			"id", "tenant_id", "connection_id", "device_id", "label", "base_counter", "created_by", "created_at", "updated_at").
			ref("connection_id", "upstream_connections"),
		relation("billing_snapshots", ScopeTenantColumn,
			"id", "tenant_id", "connection_id", "period", "entries", "total", "created_by", "created_at").jsonb("entries").readOnly(),
		relation("heartbeats", ScopeTenantColumn,
			"id", "tenant_id", "source", "last_seen_at", "event_count", "payload", "created_at").jsonb("payload"),
		relation("sla_reports", ScopeTenantColumn,
			"id", "tenant_id", "name", "period", "availability", "details", "created_by", "created_at").jsonb("details"),
	}

	m := make(map[string]Schema, len(rels))
	for _, r := range rels {
		m[r.Name] = r
	}
	for _, r := range rels {
		for _, ref := range r.refs {
			if m[ref.Parent].Scope != ScopeTenantColumn {
				panic(fmt.Sprintf("query: %s.%s refers to %q, which has no tenant_id", r.Name, ref.Column, ref.Parent))
			}
		}
	}
	return m
}()

// Lookup returns the schema of an exposed relation.
func Lookup(name string) (Schema, error) {
	s, ok := registry[name]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", common.ErrRelationNotFound, name)
	}
	return s, nil
}

func validIdent(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
