// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/nocgateway/internal/dbx"
	"github.com/dmitrijs2005/nocgateway/internal/server/migrations"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/alerts"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/connections"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/heartbeats"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/nodes"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/printers"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/rows"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends repositories bound to a *sql.DB or *sql.Tx.
type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Rows(db dbx.DBTX) rows.Repository {
	return rows.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Alerts(db dbx.DBTX) alerts.Repository {
	return alerts.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Nodes(db dbx.DBTX) nodes.Repository {
	return nodes.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Heartbeats(db dbx.DBTX) heartbeats.Repository {
	return heartbeats.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Connections(db dbx.DBTX) connections.Repository {
	return connections.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Printers(db dbx.DBTX) printers.Repository {
	return printers.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
