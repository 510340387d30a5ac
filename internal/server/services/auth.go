// Package services contains server-side business logic. This file implements
// AuthService: password and refresh grants, profile reads and updates, and
// admin-only account creation.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/dmitrijs2005/nocgateway/internal/dbx"
	"github.com/dmitrijs2005/nocgateway/internal/server/auth"
	"github.com/dmitrijs2005/nocgateway/internal/server/config"
	"github.com/dmitrijs2005/nocgateway/internal/server/models"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/users"
	"github.com/dmitrijs2005/nocgateway/internal/timex"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// UserView is the account shape returned to clients.
type UserView struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Role      string  `json:"role"`
	TenantID  string  `json:"tenant_id"`
	FullName  string  `json:"full_name"`
	Phone     *string `json:"phone"`
	AvatarURL *string `json:"avatar_url"`
	Locale    string  `json:"locale"`
}

// Session is the token grant response.
type Session struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    int64     `json:"expires_at"`
	RefreshToken string    `json:"refresh_token"`
	User         *UserView `json:"user"`
}

// SignupInput describes an account created by an admin.
type SignupInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
	Locale   string `json:"locale"`
}

// AuthService issues and verifies session tokens. It keeps no server-side
// session state: logout is client-side and tokens live until they expire.
type AuthService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	localDomain                 string
	bcryptCost                  int
	now                         timex.Clock
	dummyHash                   []byte
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *AuthService {
	s := &AuthService{
		db:                          db,
		repomanager:                 m,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		localDomain:                 cfg.LocalEmailDomain,
		bcryptCost:                  bcrypt.DefaultCost,
		now:                         time.Now,
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword(common.GenerateRandByteArray(16), s.bcryptCost)
	return s
}

// NormalizeLogin lowercases the identifier and maps bare names to the
// local email domain.
func NormalizeLogin(login, domain string) string {
	login = strings.ToLower(strings.TrimSpace(login))
	if login != "" && !strings.Contains(login, "@") {
		login += "@" + strings.ToLower(domain)
	}
	return login
}

// PasswordGrant verifies credentials. Unknown logins and wrong passwords are
// indistinguishable to the caller.
func (s *AuthService) PasswordGrant(ctx context.Context, login, password string) (*Session, error) {
	email := NormalizeLogin(login, s.localDomain)
	if email == "" || password == "" {
		return nil, common.ErrInvalidGrant
	}

	account, err := s.repomanager.Users(s.db).GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, common.ErrInvalidGrant
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(account.User.PasswordHash, []byte(password)); err != nil {
		return nil, common.ErrInvalidGrant
	}

	return s.issue(account)
}

// RefreshGrant accepts an expired but correctly signed token and re-reads the
// subject, so role and tenant changes apply on refresh.
func (s *AuthService) RefreshGrant(ctx context.Context, token string) (*Session, error) {
	id, err := auth.ParseTokenIgnoringExpiry(token, s.jwtSecret)
	if err != nil {
		return nil, common.ErrInvalidGrant
	}

	account, err := s.repomanager.Users(s.db).GetAccountByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidGrant
		}
		return nil, err
	}

	return s.issue(account)
}

// Authenticate fully verifies a bearer token.
func (s *AuthService) Authenticate(token string) (auth.Identity, error) {
	id, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %v", common.ErrNotAuthenticated, err)
	}
	return id, nil
}

// GetUser returns the caller's current account.
func (s *AuthService) GetUser(ctx context.Context, id auth.Identity) (*UserView, error) {
	account, err := s.repomanager.Users(s.db).GetAccountByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrNotAuthenticated
		}
		return nil, err
	}
	return viewOf(account), nil
}

// UpdateUser applies a self-service change: an optional new password and
// whitelisted profile fields under "data". Role and tenant never change here.
func (s *AuthService) UpdateUser(ctx context.Context, id auth.Identity, body map[string]any) (*UserView, error) {
	var (
		password *string
		fields   = map[string]any{}
	)

	for k, v := range body {
		switch k {
		case "password":
			pw, ok := v.(string)
			if !ok || len(pw) < minPasswordLength {
				return nil, fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, minPasswordLength)
			}
			password = &pw
		case "data":
			data, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: data must be an object", common.ErrValidation)
			}
			for dk, dv := range data {
				if err := checkProfileField(dk, dv); err != nil {
					return nil, err
				}
				fields[dk] = dv
			}
		case "role", "tenant_id":
			return nil, fmt.Errorf("%w: %s cannot be changed", common.ErrForbidden, k)
		default:
			return nil, fmt.Errorf("%w: unsupported field %q", common.ErrValidation, k)
		}
	}

	var hash []byte
	if password != nil {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(*password), s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		if hash != nil {
			if err := repo.UpdatePassword(ctx, id.UserID, hash); err != nil {
				return err
			}
		}
		return repo.UpdateProfile(ctx, id.UserID, fields)
	})
	if err != nil {
		return nil, err
	}

	return s.GetUser(ctx, id)
}

func checkProfileField(key string, v any) error {
	switch key {
	case "role", "tenant_id":
		return fmt.Errorf("%w: %s cannot be changed", common.ErrForbidden, key)
	}
	for _, f := range users.ProfileFields {
		if f == key {
			if _, ok := v.(string); !ok && v != nil {
				return fmt.Errorf("%w: %s must be a string", common.ErrValidation, key)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: profile field %q cannot be changed", common.ErrValidation, key)
}

// Signup creates credential, profile and role rows in one transaction.
// Only admins may call it, and only for their own tenant.
func (s *AuthService) Signup(ctx context.Context, caller auth.Identity, in SignupInput) (*UserView, error) {
	if !caller.IsAdmin() {
		return nil, common.ErrForbidden
	}
	if in.TenantID != "" && in.TenantID != caller.TenantID {
		return nil, fmt.Errorf("%w: cannot create accounts in another tenant", common.ErrForbidden)
	}

	email := NormalizeLogin(in.Email, s.localDomain)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", common.ErrValidation)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, minPasswordLength)
	}
	role := in.Role
	if role == "" {
		role = auth.RoleViewer
	}
	switch role {
	case auth.RoleAdmin, auth.RoleOperator, auth.RoleViewer:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrValidation, role)
	}
	locale := in.Locale
	if locale == "" {
		locale = "pt-BR"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := &models.Account{Role: role}
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		u, err := repo.Create(ctx, &models.User{Email: email, PasswordHash: hash})
		if err != nil {
			return err
		}
		account.User = *u

		account.Profile = models.Profile{
			ID:       u.ID,
			TenantID: caller.TenantID,
			Email:    email,
			FullName: in.FullName,
			Locale:   locale,
		}
		if err := repo.CreateProfile(ctx, &account.Profile); err != nil {
			return err
		}
		return repo.AssignRole(ctx, u.ID, caller.TenantID, role)
	})
	if err != nil {
		return nil, err
	}

	return viewOf(account), nil
}

func (s *AuthService) issue(a *models.Account) (*Session, error) {
	now := s.now()
	token, expiresAt, err := auth.GenerateToken(auth.Identity{
		UserID:   a.User.ID,
		TenantID: a.Profile.TenantID,
		Role:     a.Role,
		Name:     a.Profile.FullName,
		Email:    a.User.Email,
	}, s.jwtSecret, now, s.accessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Session{
		AccessToken:  token,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTokenValidityDuration.Seconds()),
		ExpiresAt:    expiresAt.Unix(),
		RefreshToken: token,
		User:         viewOf(a),
	}, nil
}

func viewOf(a *models.Account) *UserView {
	return &UserView{
		ID:        a.User.ID,
		Email:     a.User.Email,
		Role:      a.Role,
		TenantID:  a.Profile.TenantID,
		FullName:  a.Profile.FullName,
		Phone:     a.Profile.Phone,
		AvatarURL: a.Profile.AvatarURL,
		Locale:    a.Profile.Locale,
	}
}
