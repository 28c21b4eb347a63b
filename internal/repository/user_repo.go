package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"identity-service/internal/model"
)

// pgxQuerier is the subset of *pgxpool.Pool the repository needs.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UserRepository struct {
	pool pgxQuerier
}

func NewUserRepository(pool pgxQuerier) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at, updated_at
		 FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, oops.Code("USER_FIND_BY_ID_FAILED").
			With("id", id).
			Wrap(err)
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at, updated_at
		 FROM users WHERE email = $1`, model.NormalizeEmail(email)).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, oops.Code("USER_FIND_BY_EMAIL_FAILED").Wrap(err)
	}
	return u, nil
}

// Insert stores a new user. A duplicate email returns model.ErrConflict;
// the unique index on users.email makes the check atomic.
func (r *UserRepository) Insert(ctx context.Context, nu model.NewUser) (model.User, error) {
	u := model.User{
		ID:           nu.ID,
		Email:        model.NormalizeEmail(nu.Email),
		PasswordHash: nu.PasswordHash,
		CreatedAt:    nu.CreatedAt,
		UpdatedAt:    nu.CreatedAt,
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return model.User{}, model.ErrConflict
		}
		return model.User{}, oops.Code("USER_INSERT_FAILED").
			With("id", u.ID).
			Wrap(err)
	}
	return u, nil
}
