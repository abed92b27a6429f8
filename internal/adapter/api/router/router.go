package router

import (
	"github.com/labstack/echo/v4"

	"schoolchat/internal/adapter/api/handler"
	"schoolchat/internal/adapter/api/middleware"
)

// Handlers bundles everything the routes dispatch to.
type Handlers struct {
	Room         *handler.RoomHandler
	Chat         *handler.ChatHandler
	File         *handler.FileHandler
	Notification *handler.NotificationHandler
	Admin        *handler.AdminHandler
	WebSocket    *handler.WebSocketHandler
	Health       *handler.HealthHandler
}

// Middlewares are applied to the authenticated /v1/chat group.
type Middlewares struct {
	Auth        *middleware.AuthMiddleware
	Admin       *middleware.AdminMiddleware
	Maintenance *middleware.MaintenanceMiddleware
	RateLimit   *middleware.IPRateLimiter
}

func Setup(e *echo.Echo, h Handlers, m Middlewares) {
	SetupHealthRouter(e, h.Health)
	SetupWebSocketRouter(e, h.WebSocket)

	chat := e.Group("/v1/chat")
	if m.RateLimit != nil {
		chat.Use(m.RateLimit.Middleware())
	}
	chat.Use(m.Auth.Authenticate)
	if m.Maintenance != nil {
		chat.Use(m.Maintenance.Check)
	}

	SetupRoomRouter(chat, h.Room)
	SetupChatRouter(chat, h.Chat)
	SetupFileRouter(chat, h.File)
	SetupNotificationRouter(chat, h.Notification)
	SetupAdminRouter(chat, h.Admin, m.Admin)
}
