package middleware

import (
	"github.com/labstack/echo/v4"

	"schoolchat/internal/domain/entity"
	"schoolchat/internal/domain/repository"
	"schoolchat/pkg/errors"
	"schoolchat/pkg/response"
)

type AdminMiddleware struct {
	userRepo repository.UserRepository
}

func NewAdminMiddleware(userRepo repository.UserRepository) *AdminMiddleware {
	return &AdminMiddleware{
		userRepo: userRepo,
	}
}

// SuperAdminOnly must run after Authenticate.
func (m *AdminMiddleware) SuperAdminOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, ok := c.Get("uid").(string)
		if !ok || uid == "" {
			return response.Error(c, errors.AuthRejected("Authentication required", nil))
		}

		user, err := m.userRepo.GetByID(c.Request().Context(), uid)
		if err != nil {
			if errors.Is(err, errors.CodeNotFound) {
				return response.Error(c, errors.Forbidden("Super admin privileges required", nil))
			}
			return response.Error(c, errors.Internal("Failed to verify admin privileges", err))
		}

		if user.Role != entity.RoleSuperAdmin {
			return response.Error(c, errors.Forbidden("Super admin privileges required", nil))
		}

		return next(c)
	}
}
