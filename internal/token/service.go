// Package token mints and verifies signed session tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"identity-service/internal/model"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"

	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 24 * time.Hour
)

// KeyProvider supplies the key material and the algorithm it implies.
type KeyProvider interface {
	Method() jwt.SigningMethod
	SigningKey() any
	VerificationKey() any
}

// Claims is the token payload: {sub, identity, exp, id, typ}.
type Claims struct {
	Subject   string           `json:"sub"`
	Identity  string           `json:"identity"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
	ID        string           `json:"id"`
	Type      string           `json:"typ,omitempty"`
}

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c Claims) GetIssuedAt() (*jwt.NumericDate, error)       { return nil, nil }
func (c Claims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c Claims) GetIssuer() (string, error)                   { return "", nil }
func (c Claims) GetSubject() (string, error)                  { return c.Subject, nil }
func (c Claims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }

type Option func(*Service)

func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock replaces time.Now for issuing and for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service is stateless apart from its configuration; it is safe for
// concurrent use.
type Service struct {
	keys       KeyProvider
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewService(keys KeyProvider, opts ...Option) *Service {
	s := &Service{
		keys:       keys,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) AccessTTL() time.Duration {
	return s.accessTTL
}

// BuildClaims sets exp to now+ttl and assigns a fresh UUIDv7 token id.
// Ids from one process are unique and increase with issuance order.
func (s *Service) BuildClaims(subject string, identity string, typ string, ttl time.Duration) (Claims, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Claims{}, fmt.Errorf("generate token id: %w", err)
	}

	return Claims{
		Subject:   subject,
		Identity:  identity,
		ExpiresAt: jwt.NewNumericDate(s.now().Add(ttl)),
		ID:        id.String(),
		Type:      typ,
	}, nil
}

// Sign serializes claims as a compact JWT signed with the provider's key.
func (s *Service) Sign(claims Claims) (string, error) {
	signed, err := jwt.NewWithClaims(s.keys.Method(), claims).SignedString(s.keys.SigningKey())
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// IssuePair mints an access token carrying identity and a refresh token
// with an empty identity. ExpiresIn is taken from the signed access exp.
func (s *Service) IssuePair(subject string, identity string) (model.TokenPair, error) {
	issuedAt := s.now()

	access, err := s.BuildClaims(subject, identity, TypeAccess, s.accessTTL)
	if err != nil {
		return model.TokenPair{}, err
	}
	refresh, err := s.BuildClaims(subject, "", TypeRefresh, s.refreshTTL)
	if err != nil {
		return model.TokenPair{}, err
	}

	accessToken, err := s.Sign(access)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("access token: %w", err)
	}
	refreshToken, err := s.Sign(refresh)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("refresh token: %w", err)
	}
	tokensIssued.WithLabelValues(TypeAccess).Inc()
	tokensIssued.WithLabelValues(TypeRefresh).Inc()

	return model.TokenPair{
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		RefreshTokenID: refresh.ID,
		TokenType:      "Bearer",
		ExpiresIn:      access.ExpiresAt.Unix() - issuedAt.Unix(),
		IssuedAt:       issuedAt.Unix(),
	}, nil
}

// Verify checks the signature with the expected algorithm only, then the
// expiry. Failures wrap model.ErrSignatureInvalid, model.ErrTokenExpired or
// model.ErrMalformedToken.
func (s *Service) Verify(tokenString string) (Claims, error) {
	method := s.keys.Method()

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return s.keys.VerificationKey(), nil
	},
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		mapped := mapParseError(err)
		verifyFailures.WithLabelValues(reasonLabel(mapped)).Inc()
		return Claims{}, fmt.Errorf("%w: %w", mapped, err)
	}

	if claims.Subject == "" {
		verifyFailures.WithLabelValues(reasonLabel(model.ErrMalformedToken)).Inc()
		return Claims{}, fmt.Errorf("%w: missing sub claim", model.ErrMalformedToken)
	}

	return claims, nil
}

// VerifyType is Verify plus a check of the typ claim.
func (s *Service) VerifyType(tokenString string, typ string) (Claims, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return Claims{}, err
	}
	if claims.Type != typ {
		verifyFailures.WithLabelValues(reasonLabel(model.ErrMalformedToken)).Inc()
		return Claims{}, fmt.Errorf("%w: expected %s token, got %q", model.ErrMalformedToken, typ, claims.Type)
	}
	return claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return model.ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return model.ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.ErrTokenExpired
	default:
		return model.ErrMalformedToken
	}
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, model.ErrTokenExpired):
		return "expired"
	case errors.Is(err, model.ErrSignatureInvalid):
		return "signature"
	default:
		return "malformed"
	}
}
