package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/nocgateway/internal/dbx"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/alerts"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/connections"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/heartbeats"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/nodes"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/printers"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/rows"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Rows(db dbx.DBTX) rows.Repository
	Users(db dbx.DBTX) users.Repository
	Alerts(db dbx.DBTX) alerts.Repository
	Nodes(db dbx.DBTX) nodes.Repository
	Heartbeats(db dbx.DBTX) heartbeats.Repository
	Connections(db dbx.DBTX) connections.Repository
	Printers(db dbx.DBTX) printers.Repository
}
