package router

import (
	"github.com/labstack/echo/v4"

	"schoolchat/internal/adapter/api/handler"
)

// SetupWebSocketRouter registers the gateway. Auth is done inside the handler
// from the token query parameter.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	e.GET("/ws/chat/:room_id", wsHandler.HandleWebSocket)
}
