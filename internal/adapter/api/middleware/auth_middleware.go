package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"schoolchat/internal/domain/service"
	"schoolchat/pkg/errors"
	"schoolchat/pkg/response"
)

type AuthMiddleware struct {
	verifier service.TokenVerifier
}

func NewAuthMiddleware(verifier service.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return response.Error(c, errors.AuthRejected("Authorization header is required", nil))
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return response.Error(c, errors.AuthRejected("Invalid authorization format", nil))
		}

		identity, err := m.verifier.Verify(c.Request().Context(), parts[1])
		if err != nil {
			return response.Error(c, err)
		}

		c.Set("uid", identity.UID)
		return next(c)
	}
}

// Verify checks a raw token outside the header flow, e.g. the gateway's query token.
func (m *AuthMiddleware) Verify(c echo.Context, token string) (string, error) {
	identity, err := m.verifier.Verify(c.Request().Context(), token)
	if err != nil {
		return "", err
	}
	return identity.UID, nil
}
