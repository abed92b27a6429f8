package router

import (
	"github.com/labstack/echo/v4"

	"schoolchat/internal/adapter/api/handler"
	"schoolchat/internal/adapter/api/middleware"
)

func SetupAdminRouter(g *echo.Group, adminHandler *handler.AdminHandler, adminMiddleware *middleware.AdminMiddleware) {
	admin := g.Group("/admin")
	admin.Use(adminMiddleware.SuperAdminOnly)

	admin.POST("/schools/:school_id/provision-rooms", adminHandler.ProvisionRooms)
	admin.GET("/settings", adminHandler.GetSettings)
	admin.POST("/settings/reload", adminHandler.ReloadSettings)
}
