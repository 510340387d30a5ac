package query

import (
	"net/url"
	"strings"
	"testing"

	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountSQL(t *testing.T) {
	q, err := Translate(mustLookup(t, "alerts"), tenant, url.Values{"status": {"eq.open"}, "limit": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT count(*) FROM alerts WHERE tenant_id = $1 AND status = $2", q.CountSQL())
}

func TestUpdateSQL(t *testing.T) {
	q, err := Translate(mustLookup(t, "alerts"), tenant, url.Values{"id": {"eq.a1"}})
	require.NoError(t, err)

	sql := q.UpdateSQL(map[string]any{"title": "t", "severity": "low"})
	assert.Equal(t, "UPDATE alerts SET severity = $3, title = $4 WHERE tenant_id = $1 AND id = $2 RETURNING *", sql)
	assert.Equal(t, []any{tenant, "a1", "low", "t"}, q.Args)
}

func TestDeleteSQL(t *testing.T) {
	q, err := Translate(mustLookup(t, "widgets"), tenant, url.Values{"id": {"eq.w1"}})
	require.NoError(t, err)
	assert.Equal(t,
		"DELETE FROM widgets WHERE dashboard_id IN (SELECT id FROM dashboards WHERE tenant_id = $1) AND id = $2 RETURNING *",
		q.DeleteSQL())
}

func TestInsertSQL(t *testing.T) {
	s := mustLookup(t, "maps")

	t.Run("union of keys with defaults", func(t *testing.T) {
		sql, args := InsertSQL(s, tenant, []map[string]any{
			{"name": "a", "tenant_id": tenant},
			{"name": "b", "zoom": int64(3), "tenant_id": tenant},
		}, nil)
		assert.Equal(t, "INSERT INTO maps (name, tenant_id, zoom) VALUES ($1, $2, DEFAULT), ($3, $4, $5) RETURNING *", sql)
		assert.Equal(t, []any{"a", tenant, "b", tenant, int64(3)}, args)
	})

	t.Run("upsert only touches the caller's rows", func(t *testing.T) {
		sql, args := InsertSQL(s, tenant, []map[string]any{
			{"id": "foreign-map", "name": "a", "tenant_id": tenant, "created_by": "u1"},
		}, []string{"id"})
		assert.Equal(t,
			"INSERT INTO maps (created_by, id, name, tenant_id) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name WHERE maps.tenant_id = $5 RETURNING *",
			sql)
		assert.Equal(t, []any{"u1", "foreign-map", "a", tenant, tenant}, args)
	})

	t.Run("nothing to update", func(t *testing.T) {
		sql, _ := InsertSQL(s, tenant, []map[string]any{{"id": "m1", "tenant_id": tenant}}, []string{"id"})
		assert.Equal(t, "INSERT INTO maps (id, tenant_id) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING RETURNING *", sql)
	})
}

func TestInsertSQL_WidgetUpsertGuard(t *testing.T) {
	sql, args := InsertSQL(mustLookup(t, "widgets"), tenant, []map[string]any{
		{"id": "w1", "dashboard_id": "d1", "title": "x"},
	}, []string{"id"})
	assert.Equal(t,
		"INSERT INTO widgets (dashboard_id, id, title) VALUES ($1, $2, $3) ON CONFLICT (id) DO UPDATE SET dashboard_id = EXCLUDED.dashboard_id, title = EXCLUDED.title "+
			"WHERE widgets.dashboard_id IN (SELECT id FROM dashboards WHERE tenant_id = $4) RETURNING *",
		sql)
	assert.Equal(t, []any{"d1", "w1", "x", tenant}, args)
}

func TestWriteOnlyColumnsNeverReturned(t *testing.T) {
	s := mustLookup(t, "upstream_connections")
	const visible = "base_url, created_at, created_by, id, name, tenant_id, updated_at, username"

	sql, _ := InsertSQL(s, tenant, []map[string]any{
		{"name": "zbx", "password_ciphertext": "aa", "password_iv": "bb", "password_tag": "cc", "tenant_id": tenant},
	}, nil)
	assert.True(t, strings.HasSuffix(sql, " RETURNING "+visible), sql)

	q, err := Translate(s, tenant, url.Values{"id": {"eq.c1"}})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(q.DeleteSQL(), " RETURNING "+visible))

	q, err = Translate(s, tenant, url.Values{"id": {"eq.c1"}})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(q.UpdateSQL(map[string]any{"password_tag": "dd"}), " RETURNING "+visible))
}

func TestParseConflict(t *testing.T) {
	s := mustLookup(t, "printer_configs")

	cols, err := ParseConflict(s, "tenant_id, device_id")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant_id", "device_id"}, cols)

	cols, err = ParseConflict(s, "")
	require.NoError(t, err)
	assert.Nil(t, cols)

	_, err = ParseConflict(s, "nope")
	require.ErrorIs(t, err, common.ErrValidation)
}
