package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolchat/pkg/errors"
)

func TestJWTVerifier_AcceptsIssuedToken(t *testing.T) {
	v := NewHMACVerifier("secret", NewRevocationList())
	token, err := v.Issue("user-1", time.Minute)
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UID)
	assert.True(t, id.ExpiresAt.After(time.Now()))
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewHMACVerifier("secret", NewRevocationList())

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	otherKey, err := NewHMACVerifier("other", nil).Issue("user-1", time.Minute)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-1"}).
		SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"missing":   "",
		"malformed": "not-a-jwt",
		"expired":   expired,
		"wrong key": otherKey,
		"no expiry": noExpiry,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			assert.True(t, errors.Is(err, errors.CodeAuthRejected))
		})
	}
}

func TestJWTVerifier_RevokedUser(t *testing.T) {
	revoked := NewRevocationList()
	v := NewHMACVerifier("secret", revoked)
	token, err := v.Issue("user-1", time.Minute)
	require.NoError(t, err)

	revoked.RevokeUser("user-1")

	_, err = v.Verify(context.Background(), token)
	assert.True(t, errors.Is(err, errors.CodeAuthRejected))
}

func TestRevocationList_TokenIDAndPrune(t *testing.T) {
	l := NewRevocationList()
	l.RevokeToken("jti-1", time.Now().Add(time.Minute))

	assert.True(t, l.IsRevoked("jti-1", "u", time.Now()))
	assert.False(t, l.IsRevoked("jti-2", "u", time.Now()))

	l.Prune(time.Now().Add(2 * time.Minute))
	assert.False(t, l.IsRevoked("jti-1", "u", time.Now()))
}
