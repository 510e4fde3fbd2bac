package accountsvc

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMock(t *testing.T) (sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return mock, db
}

var userRows = []string{
	"id", "email", "username", "password_hash", "first_name", "last_name",
	"date_of_birth", "gender", "blood_group", "image", "date_joined", "last_update",
	"is_active", "is_staff", "is_superuser",
}

func TestPostgresUserRepository_FindByEmail(t *testing.T) {
	mock, db := newMock(t)
	defer db.Close()
	repo := NewPostgresUserRepository(db)

	joined := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(userRows).AddRow(
		"u-1", "a@x.com", "a", "hash", "", "",
		nil, "male", "", "", joined, joined,
		true, false, false,
	)
	mock.ExpectQuery(`(?s)SELECT .* FROM users WHERE email = \$1`).
		WithArgs("a@x.com").
		WillReturnRows(rows)

	u, err := repo.FindByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("FindByEmail error: %v", err)
	}
	if u.ID != "u-1" || u.Username != "a" || u.passwordHash != "hash" || !u.IsActive {
		t.Fatalf("unexpected user: %+v", u)
	}
	if !u.DateOfBirth.IsZero() {
		t.Fatalf("expected unset date of birth, got %v", u.DateOfBirth)
	}
	if u.DateJoined.String() != "2026-01-02" {
		t.Fatalf("unexpected date joined: %v", u.DateJoined)
	}
}

func TestPostgresUserRepository_FindByID_NotFound(t *testing.T) {
	mock, db := newMock(t)
	defer db.Close()
	repo := NewPostgresUserRepository(db)

	mock.ExpectQuery(`(?s)SELECT .* FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresUserRepository_Store_UniqueViolations(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{constraint: "users_email_key", want: ErrExistingEmail},
		{constraint: "users_username_key", want: ErrExistingUsername},
	}

	for _, tt := range tests {
		mock, db := newMock(t)
		repo := NewPostgresUserRepository(db)

		mock.ExpectExec(`INSERT INTO users`).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tt.constraint})

		u := &User{ID: "u-1", Email: "a@x.com", Username: "a", Gender: GenderMale}
		if err := repo.Store(context.Background(), u); !errors.Is(err, tt.want) {
			t.Fatalf("constraint %s: expected %v, got %v", tt.constraint, tt.want, err)
		}
		db.Close()
	}
}

func TestPostgresUserRepository_Update_NoRows(t *testing.T) {
	mock, db := newMock(t)
	defer db.Close()
	repo := NewPostgresUserRepository(db)

	mock.ExpectExec(`UPDATE users`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	u := &User{ID: "ghost", Email: "a@x.com", Username: "a", Gender: GenderMale}
	if err := repo.Update(context.Background(), u); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresTokenRepository_IssueOrReuse(t *testing.T) {
	mock, db := newMock(t)
	defer db.Close()
	repo := NewPostgresTokenRepository(db)

	// insert is a no-op for a user that already holds a token; the
	// select returns the existing one
	mock.ExpectExec(`(?s)INSERT INTO auth_tokens .* ON CONFLICT \(user_id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT token FROM auth_tokens WHERE user_id = \$1`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"token"}).AddRow("existing-token"))

	token, err := repo.IssueOrReuse(context.Background(), "u-1", "candidate-token")
	if err != nil {
		t.Fatalf("IssueOrReuse error: %v", err)
	}
	if token != "existing-token" {
		t.Fatalf("expected existing token, got %q", token)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresTokenRepository_Resolve(t *testing.T) {
	mock, db := newMock(t)
	defer db.Close()
	repo := NewPostgresTokenRepository(db)

	mock.ExpectQuery(`SELECT user_id FROM auth_tokens WHERE token = \$1`).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u-1"))

	id, err := repo.Resolve(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if id != "u-1" {
		t.Fatalf("unexpected user id: %q", id)
	}

	mock.ExpectQuery(`SELECT user_id FROM auth_tokens WHERE token = \$1`).
		WithArgs("revoked").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.Resolve(context.Background(), "revoked"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestPostgresTokenRepository_Revoke(t *testing.T) {
	mock, db := newMock(t)
	defer db.Close()
	repo := NewPostgresTokenRepository(db)

	mock.ExpectExec(`DELETE FROM auth_tokens WHERE user_id = \$1`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Revoke(context.Background(), "u-1"); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}

	mock.ExpectExec(`DELETE FROM auth_tokens WHERE user_id = \$1`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Revoke(context.Background(), "u-1"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}
