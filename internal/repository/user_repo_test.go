package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-service/internal/event"
	"identity-service/internal/model"
)

func strPtr(s string) *string { return &s }

func TestUserRepository_FindByEmail(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	columns := []string{"id", "email", "password_hash", "created_at", "updated_at"}

	tests := []struct {
		name      string
		email     string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		want      model.User
	}{
		{
			name:  "normalizes email and returns user",
			email: "  A@X.com ",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(columns).
					AddRow("u-1", "a@x.com", strPtr("$argon2id$hash"), created, created)
				mock.ExpectQuery(`SELECT id, email, password_hash, created_at, updated_at\s+FROM users WHERE email = \$1`).
					WithArgs("a@x.com").
					WillReturnRows(rows)
			},
			want: model.User{ID: "u-1", Email: "a@x.com", PasswordHash: strPtr("$argon2id$hash"), CreatedAt: created, UpdatedAt: created},
		},
		{
			name:  "external identity without password hash",
			email: "sso@x.com",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(columns).
					AddRow("u-2", "sso@x.com", (*string)(nil), created, created)
				mock.ExpectQuery(`FROM users WHERE email`).
					WithArgs("sso@x.com").
					WillReturnRows(rows)
			},
			want: model.User{ID: "u-2", Email: "sso@x.com", CreatedAt: created, UpdatedAt: created},
		},
		{
			name:  "not found",
			email: "nouser@x.com",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM users WHERE email`).
					WithArgs("nouser@x.com").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: model.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewUserRepository(mock)
			got, err := repo.FindByEmail(context.Background(), tt.email)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want.ID, got.ID)
				assert.Equal(t, tt.want.Email, got.Email)
				assert.Equal(t, tt.want.PasswordHash, got.PasswordHash)
				assert.Equal(t, tt.want.HasPassword(), got.HasPassword())
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_FindByEmail_DatabaseError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM users WHERE email`).
		WithArgs("a@x.com").
		WillReturnError(errors.New("connection refused"))

	_, err = NewUserRepository(mock).FindByEmail(context.Background(), "a@x.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrUserNotFound)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestUserRepository_Insert(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	hash := strPtr("$argon2id$hash")
	newUser := model.NewUser{ID: "u-1", Email: "A@x.com", PasswordHash: hash, CreatedAt: created}

	t.Run("inserts normalized user", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs("u-1", "a@x.com", hash, created, created).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		got, err := NewUserRepository(mock).Insert(context.Background(), newUser)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", got.Email)
		assert.Equal(t, created, got.UpdatedAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation is a conflict", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs("u-1", "a@x.com", hash, created, created).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"})

		_, err = NewUserRepository(mock).Insert(context.Background(), newUser)
		require.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("other database errors are not conflicts", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs("u-1", "a@x.com", hash, created, created).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.NotNullViolation})

		_, err = NewUserRepository(mock).Insert(context.Background(), newUser)
		require.Error(t, err)
		assert.NotErrorIs(t, err, model.ErrConflict)
	})
}

func TestUserRepository_FindByID(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("u-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}).
			AddRow("u-1", "a@x.com", strPtr("h"), created, created))
	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("u-404").
		WillReturnError(pgx.ErrNoRows)

	repo := NewUserRepository(mock)
	got, err := repo.FindByID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)

	_, err = repo.FindByID(context.Background(), "u-404")
	require.ErrorIs(t, err, model.ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryUserRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryUserRepository()

	created, err := repo.Insert(ctx, model.NewUser{ID: "u-1", Email: " A@X.com", PasswordHash: strPtr("h"), CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", created.Email)

	found, err := repo.FindByEmail(ctx, "a@x.COM")
	require.NoError(t, err)
	assert.Equal(t, "u-1", found.ID)

	byID, err := repo.FindByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, found, byID)

	_, err = repo.Insert(ctx, model.NewUser{ID: "u-2", Email: "a@x.com", CreatedAt: time.Now()})
	require.ErrorIs(t, err, model.ErrConflict)

	_, err = repo.FindByEmail(ctx, "nouser@x.com")
	require.ErrorIs(t, err, model.ErrUserNotFound)
	_, err = repo.FindByID(ctx, "u-2")
	require.ErrorIs(t, err, model.ErrUserNotFound)
}

func TestMemoryUserRepository_ConcurrentInsertSameEmail(t *testing.T) {
	t.Parallel()

	repo := NewMemoryUserRepository()
	const workers = 32

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Insert(context.Background(), model.NewUser{
				ID:        string(rune('a' + i)),
				Email:     "race@x.com",
				CreatedAt: time.Now(),
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, model.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
}

func TestAuditRepository_Record(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := event.Event{
		ID:        "0190c1d2-0000-7000-8000-000000000001",
		Type:      event.TypeLoginFailed,
		Timestamp: at.Format(time.RFC3339Nano),
		Email:     "a@x.com",
		Reason:    event.ReasonWrongPassword,
	}

	mock.ExpectExec(`INSERT INTO auth_events`).
		WithArgs(e.ID, "auth.login_failed", at, "", "a@x.com", "wrong_password").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO auth_events`).
		WithArgs(e.ID, "auth.login_failed", at, "", "a@x.com", "wrong_password").
		WillReturnError(errors.New("disk full"))

	repo := NewAuditRepository(mock)
	require.NoError(t, repo.Record(context.Background(), e))

	err = repo.Record(context.Background(), e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}
