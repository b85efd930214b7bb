package port

import (
	"context"
	"time"
)

type SessionStore interface {
	// Revoke marks a token ID as revoked for ttl
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error

	// IsRevoked reports whether a token ID was revoked
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type IdempotencyStore interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency deletes a key so the request it guarded can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
