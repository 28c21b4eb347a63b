package repository

import (
	"context"
	"sync"

	"identity-service/internal/model"
)

// MemoryUserRepository keeps users in process memory. Email uniqueness is
// checked and claimed under one lock, matching the database unique index.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]model.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    map[string]model.User{},
		byEmail: map[string]string{},
	}
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[model.NormalizeEmail(email)]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryUserRepository) Insert(_ context.Context, nu model.NewUser) (model.User, error) {
	key := model.NormalizeEmail(nu.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[key]; exists {
		return model.User{}, model.ErrConflict
	}

	u := model.User{
		ID:           nu.ID,
		Email:        key,
		PasswordHash: nu.PasswordHash,
		CreatedAt:    nu.CreatedAt,
		UpdatedAt:    nu.CreatedAt,
	}
	r.byID[u.ID] = u
	r.byEmail[key] = u.ID

	return u, nil
}
