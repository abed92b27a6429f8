package router

import (
	"github.com/labstack/echo/v4"

	"schoolchat/internal/adapter/api/handler"
)

func SetupRoomRouter(g *echo.Group, roomHandler *handler.RoomHandler) {
	rooms := g.Group("/rooms")

	rooms.GET("", roomHandler.ListRooms)
	rooms.POST("", roomHandler.CreateRoom)
	rooms.GET("/:id", roomHandler.GetRoom)
	rooms.POST("/:id/join", roomHandler.JoinRoom)
	rooms.POST("/:id/leave", roomHandler.LeaveRoom)
	rooms.GET("/:id/participants", roomHandler.ListParticipants)
	rooms.POST("/:id/read", roomHandler.MarkRoomRead)
}
