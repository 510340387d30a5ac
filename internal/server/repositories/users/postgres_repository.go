// Package users persists credentials, profiles and tenant role assignments.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/dmitrijs2005/nocgateway/internal/dbx"
	"github.com/dmitrijs2005/nocgateway/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (email, password_hash)
		 VALUES ($1, $2)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query, user.Email, string(user.PasswordHash)).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) CreateProfile(ctx context.Context, p *models.Profile) error {
	query :=
		`INSERT INTO profiles (id, tenant_id, email, full_name, phone, avatar_url, locale)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 `

	if _, err := r.db.ExecContext(ctx, query,
		p.ID, p.TenantID, p.Email, p.FullName, p.Phone, p.AvatarURL, p.Locale); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AssignRole(ctx context.Context, userID, tenantID, role string) error {
	query :=
		`INSERT INTO user_roles (user_id, tenant_id, role)
		 VALUES ($1, $2, $3)
		 `

	if _, err := r.db.ExecContext(ctx, query, userID, tenantID, role); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectAccount = `SELECT u.id, u.email, u.password_hash, p.tenant_id, p.full_name, p.phone, p.avatar_url, p.locale,
		COALESCE(r.role, 'viewer')
	 FROM users u
	 JOIN profiles p ON p.id = u.id
	 LEFT JOIN user_roles r ON r.user_id = u.id AND r.tenant_id = p.tenant_id
	 `

// GetAccountByEmail resolves a login identifier. Emails are stored lowercased.
func (r *PostgresRepository) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getAccount(ctx, selectAccount+`WHERE u.email = $1`, email)
}

// GetAccountByID re-reads an account with its current role and tenant.
func (r *PostgresRepository) GetAccountByID(ctx context.Context, userID string) (*models.Account, error) {
	return r.getAccount(ctx, selectAccount+`WHERE u.id = $1`, userID)
}

func (r *PostgresRepository) getAccount(ctx context.Context, query string, arg string) (*models.Account, error) {
	a := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&a.User.ID, &a.User.Email, &a.User.PasswordHash,
		&a.Profile.TenantID, &a.Profile.FullName, &a.Profile.Phone, &a.Profile.AvatarURL, &a.Profile.Locale,
		&a.Role,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	a.Profile.ID = a.User.ID
	a.Profile.Email = a.User.Email
	return a, nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, userID string, hash []byte) error {
	query :=
		`UPDATE users SET password_hash = $1, updated_at = now()
		 WHERE id = $2
		 `

	res, err := r.db.ExecContext(ctx, query, string(hash), userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

// UpdateProfile sets whitelisted profile columns. Unknown keys are rejected.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, userID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !slices.Contains(ProfileFields, k) {
			return fmt.Errorf("%w: profile field %q", common.ErrValidation, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys)+1)
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, fields[k])
		sets = append(sets, k+" = $"+strconv.Itoa(len(args)))
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, userID)

	query := `UPDATE profiles SET ` + strings.Join(sets, ", ") + ` WHERE id = $` + strconv.Itoa(len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repository = (*PostgresRepository)(nil)
