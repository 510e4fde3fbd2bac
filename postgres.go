package accountsvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of database/sql used by the repositories. Both
// *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const uniqueViolation = "23505"

type postgresUserRepository struct {
	db DBTX
}

func NewPostgresUserRepository(db DBTX) Repository {
	return &postgresUserRepository{db: db}
}

const userColumns = `id, email, username, password_hash, first_name, last_name,
	 date_of_birth, gender, blood_group, image, date_joined, last_update,
	 is_active, is_staff, is_superuser`

func (r *postgresUserRepository) FindByID(ctx context.Context, id ID) (*User, error) {
	return r.findBy(ctx, "id", string(id))
}

func (r *postgresUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findBy(ctx, "email", email)
}

func (r *postgresUserRepository) FindByName(ctx context.Context, username string) (*User, error) {
	return r.findBy(ctx, "username", username)
}

func (r *postgresUserRepository) findBy(ctx context.Context, column, value string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`

	u := &User{}
	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&u.ID, &u.Email, &u.Username, &u.passwordHash, &u.FirstName, &u.LastName,
		&u.DateOfBirth, &u.Gender, &u.BloodGroup, &u.Image, &u.DateJoined, &u.LastUpdate,
		&u.IsActive, &u.IsStaff, &u.IsSuperuser,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return u, nil
}

func (r *postgresUserRepository) Store(ctx context.Context, u *User) error {
	query :=
		`INSERT INTO users (` + userColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 `

	_, err := r.db.ExecContext(ctx, query,
		u.ID, u.Email, u.Username, u.passwordHash, u.FirstName, u.LastName,
		u.DateOfBirth, u.Gender, u.BloodGroup, u.Image, u.DateJoined, u.LastUpdate,
		u.IsActive, u.IsStaff, u.IsSuperuser,
	)

	if err != nil {
		return mapUserConstraint(err)
	}
	return nil
}

func (r *postgresUserRepository) Update(ctx context.Context, u *User) error {
	query :=
		`UPDATE users
		 SET email = $2, username = $3, password_hash = $4, first_name = $5,
		     last_name = $6, date_of_birth = $7, gender = $8, blood_group = $9,
		     image = $10, last_update = $11, is_active = $12, is_staff = $13,
		     is_superuser = $14
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query,
		u.ID, u.Email, u.Username, u.passwordHash, u.FirstName, u.LastName,
		u.DateOfBirth, u.Gender, u.BloodGroup, u.Image, u.LastUpdate,
		u.IsActive, u.IsStaff, u.IsSuperuser,
	)

	if err != nil {
		return mapUserConstraint(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// mapUserConstraint turns unique violations on the users table into the
// domain uniqueness errors. The service pre-checks uniqueness, so this
// only fires when two registrations race.
func mapUserConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if strings.Contains(pgErr.ConstraintName, "email") {
			return ErrExistingEmail
		}
		return ErrExistingUsername
	}
	return fmt.Errorf("db error: %w", err)
}

type postgresTokenRepository struct {
	db DBTX
}

func NewPostgresTokenRepository(db DBTX) TokenRepository {
	return &postgresTokenRepository{db: db}
}

// IssueOrReuse relies on the unique constraint on user_id: the insert is
// a no-op when a token already exists, and the follow-up select returns
// whichever token won.
func (r *postgresTokenRepository) IssueOrReuse(ctx context.Context, userID ID, candidate string) (string, error) {
	insert :=
		`INSERT INTO auth_tokens (token, user_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO NOTHING
		 `

	if _, err := r.db.ExecContext(ctx, insert, candidate, userID, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}

	query := `SELECT token FROM auth_tokens WHERE user_id = $1`

	var token string
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&token); err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}

	return token, nil
}

func (r *postgresTokenRepository) Resolve(ctx context.Context, token string) (ID, error) {
	query := `SELECT user_id FROM auth_tokens WHERE token = $1`

	var userID ID
	err := r.db.QueryRowContext(ctx, query, token).Scan(&userID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}

	return userID, nil
}

func (r *postgresTokenRepository) Revoke(ctx context.Context, userID ID) error {
	query := `DELETE FROM auth_tokens WHERE user_id = $1`

	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}
