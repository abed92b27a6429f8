package handler

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"

	"schoolchat/internal/usecase"
	"schoolchat/pkg/logger"
	"schoolchat/pkg/response"
)

type FileHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewFileHandler(chatUseCase *usecase.ChatUseCase) *FileHandler {
	return &FileHandler{
		chatUseCase: chatUseCase,
	}
}

// DownloadAttachment streams a message's attachment to a room member.
func (h *FileHandler) DownloadAttachment(c echo.Context) error {
	messageID := c.Param("id")
	logger.Debug("Attachment download for message %s", messageID)

	rc, info, err := h.chatUseCase.OpenAttachment(c.Request().Context(), getUserIDFromContext(c), messageID)
	if err != nil {
		return response.Error(c, err)
	}
	defer rc.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": info.Filename})
	if disposition == "" {
		disposition = "attachment"
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, disposition)
	if info.Size > 0 {
		c.Response().Header().Set(echo.HeaderContentLength, fmt.Sprint(info.Size))
	}
	return c.Stream(http.StatusOK, info.ContentType, rc)
}

func (h *FileHandler) AttachmentInfo(c echo.Context) error {
	info, err := h.chatUseCase.AttachmentInfo(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, info)
}

func (h *FileHandler) RemoveAttachment(c echo.Context) error {
	if err := h.chatUseCase.RemoveAttachment(c.Request().Context(), getUserIDFromContext(c), c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"message": "Attachment removed"})
}
