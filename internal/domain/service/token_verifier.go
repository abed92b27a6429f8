package service

import (
	"context"
	"time"
)

type Identity struct {
	UID       string
	ExpiresAt time.Time
}

// TokenVerifier checks that a bearer token is well-formed, unexpired and not
// revoked. Any failure is an AUTH_REJECTED error.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}
