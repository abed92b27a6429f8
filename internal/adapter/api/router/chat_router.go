package router

import (
	"github.com/labstack/echo/v4"

	"schoolchat/internal/adapter/api/handler"
)

// SetupChatRouter sets up the message routes. The gateway lives in websocket_router.go.
func SetupChatRouter(g *echo.Group, chatHandler *handler.ChatHandler) {
	messages := g.Group("/messages")

	// GET /v1/chat/messages?room=<id>&cursor=<seq>&limit=<n>
	messages.GET("", chatHandler.ListMessages)
	// JSON, or multipart with a "file" part
	messages.POST("", chatHandler.SendMessage)
	messages.GET("/unread-count", chatHandler.UnreadCount)
	messages.GET("/:id", chatHandler.GetMessage)
	messages.PATCH("/:id", chatHandler.EditMessage)
	messages.DELETE("/:id", chatHandler.DeleteMessage)
	messages.POST("/:id/read", chatHandler.MarkRead)
}
