// Package connections loads upstream monitoring API connections.
package connections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/dmitrijs2005/nocgateway/internal/dbx"
	"github.com/dmitrijs2005/nocgateway/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, tenantID, connID string) (*models.UpstreamConnection, error)
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, tenantID, connID string) (*models.UpstreamConnection, error) {
	query :=
		`SELECT id, tenant_id, name, base_url, username, password_ciphertext, password_iv, password_tag
		 FROM upstream_connections
		 WHERE id = $1 AND tenant_id = $2
		 `

	c := &models.UpstreamConnection{}
	err := r.db.QueryRowContext(ctx, query, connID, tenantID).Scan(
		&c.ID, &c.TenantID, &c.Name, &c.BaseURL, &c.Username,
		&c.PasswordCiphertext, &c.PasswordIV, &c.PasswordTag)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

var _ Repository = (*PostgresRepository)(nil)
