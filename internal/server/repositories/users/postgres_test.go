package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/dmitrijs2005/nocgateway/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var accountColumns = []string{"id", "email", "password_hash", "tenant_id", "full_name", "phone", "avatar_url", "locale", "role"}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+users\s*\(email,\s*password_hash\)\s*VALUES\s*\(\$1,\s*\$2\)\s*RETURNING\s+id\s*$`
	mock.ExpectQuery(q).
		WithArgs("ana@noc.local", "hash").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u-1"))

	got, err := repo.Create(context.Background(), &models.User{Email: "ana@noc.local", PasswordHash: []byte("hash")})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != "u-1" {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.User{Email: "ana@noc.local", PasswordHash: []byte("hash")})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want common.ErrConflict, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.User{Email: "a@b"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestCreateProfileAndRole(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+profiles`).
		WithArgs("u-1", "t-1", "ana@noc.local", "Ana", nil, nil, "pt-BR").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+user_roles`).
		WithArgs("u-1", "t-1", "operator").
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := &models.Profile{ID: "u-1", TenantID: "t-1", Email: "ana@noc.local", FullName: "Ana", Locale: "pt-BR"}
	if err := repo.CreateProfile(context.Background(), p); err != nil {
		t.Fatalf("CreateProfile error: %v", err)
	}
	if err := repo.AssignRole(context.Background(), "u-1", "t-1", "operator"); err != nil {
		t.Fatalf("AssignRole error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetAccountByEmail_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+users\s+u.*WHERE\s+u\.email\s*=\s*\$1$`).
		WithArgs("ana@noc.local").
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow("u-1", "ana@noc.local", []byte("hash"), "t-1", "Ana", nil, nil, "pt-BR", "admin"))

	got, err := repo.GetAccountByEmail(context.Background(), "ana@noc.local")
	if err != nil {
		t.Fatalf("GetAccountByEmail error: %v", err)
	}
	if got.User.ID != "u-1" || got.Role != "admin" || got.Profile.TenantID != "t-1" || got.Profile.ID != "u-1" {
		t.Fatalf("unexpected account: %+v", got)
	}
	if string(got.User.PasswordHash) != "hash" || got.Profile.Phone != nil {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestGetAccountByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)WHERE\s+u\.id\s*=\s*\$1$`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetAccountByID(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$1`).
		WithArgs("new-hash", "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdatePassword(context.Background(), "u-1", []byte("new-hash")); err != nil {
		t.Fatalf("UpdatePassword error: %v", err)
	}
}

func TestUpdatePassword_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+users`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdatePassword(context.Background(), "ghost", []byte("h"))
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `^UPDATE profiles SET full_name = \$1, locale = \$2, updated_at = now\(\) WHERE id = \$3$`
	mock.ExpectExec(q).
		WithArgs("Ana Souza", "en", "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateProfile(context.Background(), "u-1", map[string]any{"locale": "en", "full_name": "Ana Souza"})
	if err != nil {
		t.Fatalf("UpdateProfile error: %v", err)
	}
}

func TestUpdateProfile_RejectsOtherColumns(t *testing.T) {
	repo, _, db := newRepoWithMock(t)
	defer db.Close()

	err := repo.UpdateProfile(context.Background(), "u-1", map[string]any{"tenant_id": "t-2"})
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want common.ErrValidation, got %v", err)
	}
}
