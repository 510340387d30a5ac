package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/dmitrijs2005/nocgateway/internal/dbx"
	"github.com/dmitrijs2005/nocgateway/internal/server/models"
	"github.com/dmitrijs2005/nocgateway/internal/server/query"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/alerts"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/connections"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/heartbeats"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/nodes"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/printers"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/rows"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/users"
)

var errBoom = errors.New("boom")

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

type fakeRepoManager struct {
	rows     *fakeRowsRepo
	users    *fakeUsersRepo
	alerts   *fakeAlertsRepo
	nodes    *fakeNodesRepo
	hb       *fakeHeartbeatsRepo
	conns    *fakeConnectionsRepo
	printers *fakePrintersRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error        { return nil }
func (m *fakeRepoManager) Rows(dbx.DBTX) rows.Repository                       { return m.rows }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                     { return m.users }
func (m *fakeRepoManager) Alerts(dbx.DBTX) alerts.Repository                   { return m.alerts }
func (m *fakeRepoManager) Nodes(dbx.DBTX) nodes.Repository                     { return m.nodes }
func (m *fakeRepoManager) Heartbeats(dbx.DBTX) heartbeats.Repository           { return m.hb }
func (m *fakeRepoManager) Connections(dbx.DBTX) connections.Repository         { return m.conns }
func (m *fakeRepoManager) Printers(dbx.DBTX) printers.Repository               { return m.printers }

// --- rows ---

type fakeRowsRepo struct {
	listed     *query.Query
	count      int64
	inserted   []rows.Record
	insertedTn string
	onConflict []string
	updatedQ   *query.Query
	updatedSet rows.Record
	deletedQ   *query.Query
	owners     map[string]string // "parent/id" -> tenant id
	lookups    int
	calls      int
}

func (f *fakeRowsRepo) List(_ context.Context, q *query.Query) ([]rows.Record, error) {
	f.calls++
	f.listed = q
	return []rows.Record{{"id": "r1"}}, nil
}

func (f *fakeRowsRepo) Count(_ context.Context, q *query.Query) (int64, error) {
	f.calls++
	return f.count, nil
}

func (f *fakeRowsRepo) Insert(_ context.Context, _ query.Schema, tenantID string, records []rows.Record, onConflict []string) ([]rows.Record, error) {
	f.calls++
	f.inserted = records
	f.insertedTn = tenantID
	f.onConflict = onConflict
	return records, nil
}

func (f *fakeRowsRepo) Update(_ context.Context, q *query.Query, set rows.Record) ([]rows.Record, error) {
	f.calls++
	f.updatedQ = q
	f.updatedSet = set
	return []rows.Record{set}, nil
}

func (f *fakeRowsRepo) Delete(_ context.Context, q *query.Query) ([]rows.Record, error) {
	f.calls++
	f.deletedQ = q
	return []rows.Record{}, nil
}

func (f *fakeRowsRepo) InTenant(_ context.Context, parent, tenantID, id string) (bool, error) {
	f.calls++
	f.lookups++
	return f.owners[parent+"/"+id] == tenantID, nil
}

// --- users ---

type fakeUsersRepo struct {
	byEmail map[string]*models.Account
	byID    map[string]*models.Account
	getErr  error

	createErr  error
	created    *models.User
	profile    *models.Profile
	roleUser   string
	roleTenant string
	role       string
	newHash    []byte
	profileSet map[string]any
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	out := *u
	out.ID = "new-user"
	out.CreatedAt = time.Now()
	f.created = &out
	return &out, nil
}

func (f *fakeUsersRepo) CreateProfile(_ context.Context, p *models.Profile) error {
	f.profile = p
	return nil
}

func (f *fakeUsersRepo) AssignRole(_ context.Context, userID, tenantID, role string) error {
	f.roleUser, f.roleTenant, f.role = userID, tenantID, role
	return nil
}

func (f *fakeUsersRepo) GetAccountByEmail(_ context.Context, email string) (*models.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return a, nil
}

func (f *fakeUsersRepo) GetAccountByID(_ context.Context, id string) (*models.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return a, nil
}

func (f *fakeUsersRepo) UpdatePassword(_ context.Context, _ string, hash []byte) error {
	f.newHash = hash
	return nil
}

func (f *fakeUsersRepo) UpdateProfile(_ context.Context, _ string, fields map[string]any) error {
	f.profileSet = fields
	return nil
}

// --- alerts ---

type fakeAlertsRepo struct {
	current   *models.AlertState
	next      *models.AlertState
	getErr    error
	appendErr error
	event     *models.AlertEvent
	applied   string
}

func (f *fakeAlertsRepo) Get(_ context.Context, _, _ string) (*models.AlertState, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.current, nil
}

func (f *fakeAlertsRepo) ApplyTransition(_ context.Context, _, _, status, _ string, _ time.Time) (*models.AlertState, error) {
	f.applied = status
	return f.next, nil
}

func (f *fakeAlertsRepo) AppendEvent(_ context.Context, e *models.AlertEvent) (*models.AlertEvent, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	e.ID = "ev1"
	f.event = e
	return e, nil
}

// --- nodes ---

type fakeNodesRepo struct {
	candidates []*models.NearbyNode
	box        nodes.Box
	status     []*models.NodeStatus
}

func (f *fakeNodesRepo) InBox(_ context.Context, _, _ string, box nodes.Box) ([]*models.NearbyNode, error) {
	f.box = box
	return f.candidates, nil
}

func (f *fakeNodesRepo) MapStatus(_ context.Context, _, _ string) ([]*models.NodeStatus, error) {
	return f.status, nil
}

// --- heartbeats ---

type fakeHeartbeatsRepo struct {
	source  string
	payload json.RawMessage
}

func (f *fakeHeartbeatsRepo) Touch(_ context.Context, _, source string, payload json.RawMessage, at time.Time) (*models.Heartbeat, error) {
	f.source, f.payload = source, payload
	return &models.Heartbeat{Source: source, LastSeenAt: at.Format(time.RFC3339), EventCount: 1}, nil
}

// --- connections ---

type fakeConnectionsRepo struct{}

func (f *fakeConnectionsRepo) Get(context.Context, string, string) (*models.UpstreamConnection, error) {
	return nil, common.ErrorNotFound
}

// --- printers ---

type fakePrintersRepo struct {
	configs  []*models.PrinterConfig
	upserted *models.PrinterConfig
	actor    string
	snapshot *models.BillingSnapshot
}

func (f *fakePrintersRepo) ListConfigs(context.Context, string, string) ([]*models.PrinterConfig, error) {
	return f.configs, nil
}

func (f *fakePrintersRepo) UpsertConfig(_ context.Context, cfg *models.PrinterConfig, actorID string) (*models.PrinterConfig, error) {
	f.upserted, f.actor = cfg, actorID
	out := *cfg
	out.ID = "cfg1"
	return &out, nil
}

func (f *fakePrintersRepo) AppendSnapshot(_ context.Context, s *models.BillingSnapshot) (*models.BillingSnapshot, error) {
	f.snapshot = s
	s.ID = "snap1"
	return s, nil
}
