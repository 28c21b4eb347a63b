package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"identity-service/internal/event"
	"identity-service/internal/model"
	"identity-service/internal/token"
)

// UserStore persists user records. FindByEmail and FindByID return
// model.ErrUserNotFound when nothing matches; Insert returns
// model.ErrConflict when the email is taken.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByID(ctx context.Context, id string) (model.User, error)
	Insert(ctx context.Context, user model.NewUser) (model.User, error)
}

type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password string, encoded string) (bool, error)
	NeedsRehash(encoded string) bool
}

type TokenIssuer interface {
	IssuePair(subject string, identity string) (model.TokenPair, error)
	VerifyType(tokenString string, typ string) (token.Claims, error)
}

type AuthService struct {
	users  UserStore
	hasher PasswordHasher
	tokens TokenIssuer
	bus    event.Bus
	now    func() time.Time

	// dummyHash is verified when a login has no stored hash to check, so
	// unknown and known emails cost the same.
	dummyHash string
}

func NewAuthService(ctx context.Context, users UserStore, hasher PasswordHasher, tokens TokenIssuer, bus event.Bus) (*AuthService, error) {
	filler := make([]byte, 24)
	if _, err := rand.Read(filler); err != nil {
		return nil, fmt.Errorf("generate dummy password: %w", err)
	}
	dummy, err := hasher.Hash(ctx, base64.RawURLEncoding.EncodeToString(filler))
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}

	return &AuthService{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		bus:       bus,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// Register hashes password and stores a new user under a fresh UUIDv7.
// A taken email returns model.ErrConflict.
func (s *AuthService) Register(ctx context.Context, email string, password string) (model.UserResponse, error) {
	email = model.NormalizeEmail(email)

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return model.UserResponse{}, fmt.Errorf("hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return model.UserResponse{}, fmt.Errorf("generate user id: %w", err)
	}

	user, err := s.users.Insert(ctx, model.NewUser{
		ID:           id.String(),
		Email:        email,
		PasswordHash: &hash,
		CreatedAt:    s.now().UTC(),
	})
	if errors.Is(err, model.ErrConflict) {
		registrations.WithLabelValues("conflict").Inc()
		s.publish(event.Event{Type: event.TypeRegisterFailed, Email: email, Reason: event.ReasonDuplicate})
		return model.UserResponse{}, model.ErrConflict
	}
	if err != nil {
		registrations.WithLabelValues("error").Inc()
		return model.UserResponse{}, fmt.Errorf("insert user: %w", err)
	}

	registrations.WithLabelValues("created").Inc()
	s.publish(event.Event{Type: event.TypeUserRegistered, ActorID: user.ID, Email: user.Email})
	slog.Info("user registered", "user_id", user.ID)

	return model.UserResponse{ID: user.ID, Email: user.Email}, nil
}

// Login checks credentials and issues a token pair. Unknown email, missing
// password hash, corrupt hash and wrong password all return
// model.ErrInvalidCredentials; the reason goes to the log and the event bus.
func (s *AuthService) Login(ctx context.Context, email string, password string) (model.TokenPair, error) {
	email = model.NormalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, model.ErrUserNotFound):
		if err := s.burnVerify(ctx, password); err != nil {
			return model.TokenPair{}, err
		}
		return s.rejectLogin(email, "", event.ReasonUnknownEmail)
	case err != nil:
		loginAttempts.WithLabelValues("error").Inc()
		return model.TokenPair{}, fmt.Errorf("find user: %w", err)
	}

	if !user.HasPassword() {
		if err := s.burnVerify(ctx, password); err != nil {
			return model.TokenPair{}, err
		}
		return s.rejectLogin(email, user.ID, event.ReasonNoPassword)
	}

	ok, err := s.hasher.Verify(ctx, password, *user.PasswordHash)
	switch {
	case errors.Is(err, model.ErrInvalidHashFormat):
		slog.Error("stored password hash is unreadable", "user_id", user.ID, "error", err)
		if err := s.burnVerify(ctx, password); err != nil {
			return model.TokenPair{}, err
		}
		return s.rejectLogin(email, user.ID, event.ReasonCorruptHash)
	case err != nil:
		loginAttempts.WithLabelValues("error").Inc()
		return model.TokenPair{}, fmt.Errorf("verify password: %w", err)
	case !ok:
		return s.rejectLogin(email, user.ID, event.ReasonWrongPassword)
	}

	if s.hasher.NeedsRehash(*user.PasswordHash) {
		rehashNeeded.Inc()
		slog.Info("stored password hash uses outdated parameters", "user_id", user.ID)
	}

	pair, err := s.tokens.IssuePair(user.ID, user.Email)
	if err != nil {
		loginAttempts.WithLabelValues("error").Inc()
		return model.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}

	loginAttempts.WithLabelValues("success").Inc()
	s.publish(event.Event{Type: event.TypeLoginSucceeded, ActorID: user.ID, Email: user.Email})

	return pair, nil
}

// Refresh exchanges a valid refresh token for a new pair. Every rejection
// returns model.ErrUnauthorized.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	claims, err := s.tokens.VerifyType(refreshToken, token.TypeRefresh)
	if err != nil {
		slog.Warn("refresh rejected", "reason", event.ReasonInvalidToken, "error", err)
		s.publish(event.Event{Type: event.TypeRefreshRejected, Reason: event.ReasonInvalidToken})
		return model.TokenPair{}, model.ErrUnauthorized
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if errors.Is(err, model.ErrUserNotFound) {
		slog.Warn("refresh rejected", "reason", event.ReasonUnknownUser, "user_id", claims.Subject)
		s.publish(event.Event{Type: event.TypeRefreshRejected, ActorID: claims.Subject, Reason: event.ReasonUnknownUser})
		return model.TokenPair{}, model.ErrUnauthorized
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("find user: %w", err)
	}

	pair, err := s.tokens.IssuePair(user.ID, user.Email)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}

	s.publish(event.Event{Type: event.TypeTokenRefreshed, ActorID: user.ID})
	return pair, nil
}

// Me returns the profile of userID, the subject of a verified access token.
func (s *AuthService) Me(ctx context.Context, userID string) (model.UserResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.UserResponse{}, model.ErrUnauthorized
	}
	if err != nil {
		return model.UserResponse{}, fmt.Errorf("find user: %w", err)
	}
	return model.UserResponse{ID: user.ID, Email: user.Email}, nil
}

func (s *AuthService) burnVerify(ctx context.Context, password string) error {
	if _, err := s.hasher.Verify(ctx, password, s.dummyHash); err != nil {
		loginAttempts.WithLabelValues("error").Inc()
		return fmt.Errorf("verify password: %w", err)
	}
	return nil
}

func (s *AuthService) rejectLogin(email string, userID string, reason string) (model.TokenPair, error) {
	loginAttempts.WithLabelValues("rejected").Inc()
	slog.Warn("login rejected", "reason", reason, "user_id", userID)
	s.publish(event.Event{Type: event.TypeLoginFailed, ActorID: userID, Email: email, Reason: reason})
	return model.TokenPair{}, model.ErrInvalidCredentials
}

func (s *AuthService) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}
