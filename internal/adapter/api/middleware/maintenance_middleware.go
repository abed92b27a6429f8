package middleware

import (
	"github.com/labstack/echo/v4"

	"schoolchat/internal/domain/repository"
	"schoolchat/pkg/config"
	"schoolchat/pkg/errors"
	"schoolchat/pkg/logger"
	"schoolchat/pkg/response"
)

type MaintenanceMiddleware struct {
	settings *config.Store
	userRepo repository.UserRepository
}

func NewMaintenanceMiddleware(settings *config.Store, userRepo repository.UserRepository) *MaintenanceMiddleware {
	return &MaintenanceMiddleware{
		settings: settings,
		userRepo: userRepo,
	}
}

// Check answers 503 while maintenance mode is on, except for users on the
// bypass list. It must run after Authenticate.
func (m *MaintenanceMiddleware) Check(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		settings := m.settings.Get()
		if !settings.MaintenanceMode {
			return next(c)
		}

		uid, _ := c.Get("uid").(string)
		username := ""
		if uid != "" {
			if user, err := m.userRepo.GetByID(c.Request().Context(), uid); err == nil {
				username = user.Username
			}
		}
		if settings.CanBypassMaintenance(uid, username) {
			return next(c)
		}

		logger.Debug("Maintenance mode: rejecting %s %s for %q", c.Request().Method, c.Path(), uid)
		return response.Error(c, errors.Unavailable("The chat service is under maintenance"))
	}
}
