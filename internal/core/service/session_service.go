package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/rl1809/book-lending/internal/port"
)

// Claims is the payload of a session token. User is opaque to the server.
type Claims struct {
	User string `json:"user"`
	jwt.RegisteredClaims
}

type Session struct {
	Token     string
	User      string
	ExpiresAt time.Time
}

// SessionService issues and verifies HS256 session tokens.
type SessionService struct {
	secret []byte
	ttl    time.Duration
	store  port.SessionStore
	now    func() time.Time
}

func NewSessionService(secret string, ttl time.Duration, store port.SessionStore) *SessionService {
	return &SessionService{
		secret: []byte(secret),
		ttl:    ttl,
		store:  store,
		now:    time.Now,
	}
}

func (s *SessionService) Issue(user string) (Session, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return Session{}, validationError("user is required")
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		User: user,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: token, User: user, ExpiresAt: expiresAt}, nil
}

// Authenticate verifies a token presented to a protected endpoint. No token at
// all is ErrForbidden, a bad one is ErrUnauthorized.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: a token is required for authentication", ErrForbidden)
	}
	return s.Verify(ctx, token)
}

// Verify parses the token and checks it was not revoked.
func (s *SessionService) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.store.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, storeError("check revocation", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: token revoked", ErrUnauthorized)
	}
	return claims, nil
}

// Revoke blocks the token for the rest of its lifetime. Tokens that no longer
// verify need no revocation.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}

	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.store.Revoke(ctx, claims.ID, ttl); err != nil {
		return storeError("revoke token", err)
	}
	return nil
}

func (s *SessionService) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, fmt.Errorf("%w: token expired", ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	if !parsed.Valid || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	return claims, nil
}
