package router

import (
	"github.com/labstack/echo/v4"

	"schoolchat/internal/adapter/api/handler"
)

func SetupNotificationRouter(g *echo.Group, notificationHandler *handler.NotificationHandler) {
	notifications := g.Group("/notifications")

	notifications.GET("", notificationHandler.ListNotifications)
	notifications.GET("/unread", notificationHandler.ListUnread)
	notifications.POST("/read-all", notificationHandler.MarkAllRead)
	notifications.POST("/:id/read", notificationHandler.MarkRead)
}
