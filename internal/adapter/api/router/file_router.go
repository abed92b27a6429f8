package router

import (
	"github.com/labstack/echo/v4"

	"schoolchat/internal/adapter/api/handler"
)

func SetupFileRouter(g *echo.Group, fileHandler *handler.FileHandler) {
	g.GET("/messages/:id/file", fileHandler.DownloadAttachment)
	g.GET("/messages/:id/file/info", fileHandler.AttachmentInfo)
	g.DELETE("/messages/:id/file", fileHandler.RemoveAttachment)
}
