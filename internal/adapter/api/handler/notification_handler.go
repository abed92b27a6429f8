package handler

import (
	"github.com/labstack/echo/v4"

	"schoolchat/internal/usecase"
	"schoolchat/pkg/response"
	"schoolchat/pkg/utils"
)

type NotificationHandler struct {
	notificationUseCase *usecase.NotificationUseCase
}

func NewNotificationHandler(notificationUseCase *usecase.NotificationUseCase) *NotificationHandler {
	return &NotificationHandler{
		notificationUseCase: notificationUseCase,
	}
}

func (h *NotificationHandler) list(c echo.Context, unreadOnly bool) error {
	params := utils.GetPaginationParams(c)
	items, total, err := h.notificationUseCase.List(c.Request().Context(), getUserIDFromContext(c), unreadOnly, params.PageSize, params.Offset)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Paginated(c, items, total, params.Page, params.PageSize)
}

func (h *NotificationHandler) ListNotifications(c echo.Context) error {
	return h.list(c, queryBool(c, "unread_only"))
}

func (h *NotificationHandler) ListUnread(c echo.Context) error {
	return h.list(c, true)
}

func (h *NotificationHandler) MarkRead(c echo.Context) error {
	if err := h.notificationUseCase.MarkRead(c.Request().Context(), getUserIDFromContext(c), c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"message": "Notification marked as read"})
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	marked, err := h.notificationUseCase.MarkAllRead(c.Request().Context(), getUserIDFromContext(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]int64{"marked": marked})
}
