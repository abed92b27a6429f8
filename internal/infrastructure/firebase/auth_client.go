package firebase

import (
	"context"
	"time"

	"firebase.google.com/go/v4/auth"

	"schoolchat/internal/domain/service"
	"schoolchat/pkg/errors"
)

type FirebaseAuthClient struct {
	client *auth.Client
}

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

var _ service.TokenVerifier = (*FirebaseAuthClient)(nil)

// Verify accepts only ID tokens that are valid and have not been revoked.
func (f *FirebaseAuthClient) Verify(ctx context.Context, idToken string) (*service.Identity, error) {
	if idToken == "" {
		return nil, errors.AuthRejected("Missing token", nil)
	}

	token, err := f.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	if err != nil {
		if auth.IsIDTokenRevoked(err) {
			return nil, errors.AuthRejected("Token has been revoked", err)
		}
		return nil, errors.AuthRejected("Invalid or expired token", err)
	}

	return &service.Identity{
		UID:       token.UID,
		ExpiresAt: time.Unix(token.Expires, 0).UTC(),
	}, nil
}
