// Package postgres is the durable credential store.
package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/auth-service/internal/errors"
	"github.com/jrsteele09/auth-service/users"
)

var _ users.Repo = (*UserRepo)(nil)

const (
	insertUserSQL = `INSERT INTO users (email, password_hash, requires_2fa)
VALUES ($1, $2, $3)
ON CONFLICT (email) DO NOTHING`
	selectUserSQL = `SELECT email, password_hash, requires_2fa FROM users WHERE email = $1`
)

// UserRepo stores accounts in the users table. Uniqueness is enforced by the primary key,
// so concurrent signups for the same email cannot both succeed.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo returns a credential store over an open pool (see internal/db.Open).
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Add(ctx context.Context, user *users.User) error {
	res, err := r.db.ExecContext(ctx, insertUserSQL, user.Email.String(), user.PasswordHash, user.Requires2FA)
	if err != nil {
		return apperrors.Wrapf(users.ErrUnexpected, "[postgres.UserRepo.Add] %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrapf(users.ErrUnexpected, "[postgres.UserRepo.Add] RowsAffected %v", err)
	}
	if n == 0 {
		return users.ErrUserAlreadyExists
	}
	return nil
}

func (r *UserRepo) Get(ctx context.Context, email users.Email) (*users.User, error) {
	var (
		stored string
		u      users.User
	)
	err := r.db.QueryRowContext(ctx, selectUserSQL, email.String()).Scan(&stored, &u.PasswordHash, &u.Requires2FA)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, users.ErrUserNotFound
		}
		return nil, apperrors.Wrapf(users.ErrUnexpected, "[postgres.UserRepo.Get] %v", err)
	}
	parsed, err := users.ParseEmail(stored)
	if err != nil {
		return nil, apperrors.Wrapf(users.ErrUnexpected, "[postgres.UserRepo.Get] stored email %v", err)
	}
	u.Email = parsed
	return &u, nil
}

func (r *UserRepo) Validate(ctx context.Context, email users.Email, password users.Password) error {
	u, err := r.Get(ctx, email)
	if err != nil {
		return err
	}
	if !u.CheckPassword(password) {
		return users.ErrInvalidCredentials
	}
	return nil
}
