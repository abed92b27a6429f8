package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"schoolchat/internal/domain/service"
	"schoolchat/pkg/errors"
	"schoolchat/pkg/logger"
)

// JWTVerifier validates bearer tokens signed with a shared HS256 secret or by
// a key published in a JWKS document.
type JWTVerifier struct {
	secret  []byte
	jwks    *keyfunc.JWKS
	revoked *RevocationList
}

var _ service.TokenVerifier = (*JWTVerifier)(nil)

func NewHMACVerifier(secret string, revoked *RevocationList) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), revoked: revoked}
}

// NewJWKSVerifier fetches the key set once and refreshes it in the background.
func NewJWKSVerifier(ctx context.Context, jwksURL string, revoked *RevocationList) (*JWTVerifier, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Warn("JWKS refresh failed: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", jwksURL, err)
	}
	return &JWTVerifier{jwks: jwks, revoked: revoked}, nil
}

func (v *JWTVerifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if v.jwks != nil {
		return v.jwks.Keyfunc(token)
	}
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
	return v.secret, nil
}

func (v *JWTVerifier) Verify(_ context.Context, raw string) (*service.Identity, error) {
	if raw == "" {
		return nil, errors.AuthRejected("Missing token", nil)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, v.keyFunc)
	if err != nil || !token.Valid {
		return nil, errors.AuthRejected("Invalid or expired token", err)
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, errors.AuthRejected("Token is missing subject or expiry", nil)
	}

	var issuedAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	if v.revoked != nil && v.revoked.IsRevoked(claims.ID, claims.Subject, issuedAt) {
		return nil, errors.AuthRejected("Token has been revoked", nil)
	}

	return &service.Identity{UID: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Issue signs an HS256 token for uid. Only meaningful for the shared-secret mode.
func (v *JWTVerifier) Issue(uid string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New(errors.CodeInternal, "Token issuing requires a shared secret", 500, nil)
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Subject:   uid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *JWTVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// RevocationList rejects single tokens by ID and every token a user was
// issued before a cutoff.
type RevocationList struct {
	mu       sync.RWMutex
	tokenIDs map[string]time.Time
	users    map[string]time.Time
}

func NewRevocationList() *RevocationList {
	return &RevocationList{
		tokenIDs: make(map[string]time.Time),
		users:    make(map[string]time.Time),
	}
}

// RevokeToken rejects the token with jti until it would have expired anyway.
func (l *RevocationList) RevokeToken(jti string, expiresAt time.Time) {
	l.mu.Lock()
	l.tokenIDs[jti] = expiresAt
	l.mu.Unlock()
}

// RevokeUser rejects every token of uid issued before now.
func (l *RevocationList) RevokeUser(uid string) {
	l.mu.Lock()
	l.users[uid] = time.Now()
	l.mu.Unlock()
}

func (l *RevocationList) IsRevoked(jti, uid string, issuedAt time.Time) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if jti != "" {
		if _, ok := l.tokenIDs[jti]; ok {
			return true
		}
	}
	if cutoff, ok := l.users[uid]; ok && !issuedAt.After(cutoff) {
		return true
	}
	return false
}

// Prune drops token entries that have expired on their own.
func (l *RevocationList) Prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for jti, exp := range l.tokenIDs {
		if now.After(exp) {
			delete(l.tokenIDs, jti)
		}
	}
}
