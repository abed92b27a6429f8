package handler

import (
	"github.com/labstack/echo/v4"

	"schoolchat/internal/usecase"
	"schoolchat/pkg/config"
	"schoolchat/pkg/logger"
	"schoolchat/pkg/response"
)

type AdminHandler struct {
	membershipUseCase *usecase.MembershipUseCase
	settings          *config.Store
}

func NewAdminHandler(membershipUseCase *usecase.MembershipUseCase, settings *config.Store) *AdminHandler {
	return &AdminHandler{
		membershipUseCase: membershipUseCase,
		settings:          settings,
	}
}

// ProvisionRooms seeds the role-pair and staff rooms of a school.
func (h *AdminHandler) ProvisionRooms(c echo.Context) error {
	result, err := h.membershipUseCase.ProvisionRolePairRooms(c.Request().Context(), c.Param("school_id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, result)
}

type settingsResponse struct {
	MaintenanceMode        bool     `json:"maintenance_mode"`
	MaxFileSizeMB          int64    `json:"max_file_size_mb"`
	AllowedAttachmentTypes []string `json:"allowed_attachment_types"`
	NotifyOnMessage        bool     `json:"notify_on_message"`
}

func toSettingsResponse(s *config.Settings) settingsResponse {
	return settingsResponse{
		MaintenanceMode:        s.MaintenanceMode,
		MaxFileSizeMB:          s.MaxFileSizeMB,
		AllowedAttachmentTypes: s.AllowedAttachmentTypes,
		NotifyOnMessage:        s.NotifyOnMessage,
	}
}

func (h *AdminHandler) GetSettings(c echo.Context) error {
	return response.Success(c, toSettingsResponse(h.settings.Get()))
}

// ReloadSettings re-reads the environment, the same as sending SIGHUP.
func (h *AdminHandler) ReloadSettings(c echo.Context) error {
	next := h.settings.Reload()
	logger.Info("Settings reloaded by %s (maintenance=%v)", getUserIDFromContext(c), next.MaintenanceMode)
	return response.Success(c, toSettingsResponse(next))
}
