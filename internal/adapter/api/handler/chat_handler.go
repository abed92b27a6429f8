package handler

import (
	"strings"

	"github.com/labstack/echo/v4"

	"schoolchat/internal/domain/entity"
	"schoolchat/internal/usecase"
	"schoolchat/pkg/errors"
	"schoolchat/pkg/logger"
	"schoolchat/pkg/response"
	"schoolchat/pkg/utils"
)

type ChatHandler struct {
	chatUseCase         *usecase.ChatUseCase
	readTrackingUseCase *usecase.ReadTrackingUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase, readTrackingUseCase *usecase.ReadTrackingUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase:         chatUseCase,
		readTrackingUseCase: readTrackingUseCase,
	}
}

type sendMessageRequest struct {
	Room        string `json:"room" form:"room" validate:"required"`
	Content     string `json:"content" form:"content" validate:"max=10000"`
	MessageType string `json:"message_type" form:"message_type" validate:"omitempty,oneof=text image file system notification"`
	ReplyToID   string `json:"reply_to_id" form:"reply_to_id"`
}

type editMessageRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
}

// ListMessages pages through a room's history: ?room=<id>&cursor=<seq>&limit=<n>.
func (h *ChatHandler) ListMessages(c echo.Context) error {
	roomID := c.QueryParam("room")
	if roomID == "" {
		return response.Error(c, errors.BadRequest("room query parameter is required", nil))
	}
	params := utils.GetCursorParams(c)

	page, err := h.chatUseCase.ListByRoom(c.Request().Context(), getUserIDFromContext(c), roomID, params.After, params.Limit)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Cursor(c, page.Items, page.NextCursor)
}

// SendMessage accepts JSON, or multipart form data when a file is attached.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid message payload", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	input := usecase.SendMessageInput{
		RoomID:      req.Room,
		Content:     req.Content,
		MessageType: entity.MessageType(req.MessageType),
		ReplyToID:   req.ReplyToID,
	}

	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		file, err := c.FormFile("file")
		if err == nil {
			src, err := file.Open()
			if err != nil {
				logger.Error("Error opening uploaded file: %v", err)
				return response.Error(c, errors.BadRequest("Unable to read file", err))
			}
			defer src.Close()
			input.Attachment = &usecase.AttachmentUpload{Reader: src, Filename: file.Filename}
		}
	}

	message, err := h.chatUseCase.SendMessage(c.Request().Context(), getUserIDFromContext(c), input)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, message)
}

func (h *ChatHandler) GetMessage(c echo.Context) error {
	message, err := h.chatUseCase.GetMessage(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, message)
}

func (h *ChatHandler) EditMessage(c echo.Context) error {
	var req editMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid message payload", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	message, err := h.chatUseCase.EditMessage(c.Request().Context(), getUserIDFromContext(c), c.Param("id"), req.Content)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, message)
}

func (h *ChatHandler) DeleteMessage(c echo.Context) error {
	if err := h.chatUseCase.DeleteMessage(c.Request().Context(), getUserIDFromContext(c), c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"message": "Message deleted"})
}

func (h *ChatHandler) MarkRead(c echo.Context) error {
	updated, err := h.readTrackingUseCase.MarkRead(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]bool{"updated": updated})
}

// UnreadCount reports the caller's unread total, or one room's with ?room=<id>.
func (h *ChatHandler) UnreadCount(c echo.Context) error {
	ctx := c.Request().Context()
	userID := getUserIDFromContext(c)

	var (
		count int64
		err   error
	)
	if roomID := c.QueryParam("room"); roomID != "" {
		count, err = h.readTrackingUseCase.UnreadCountForRoom(ctx, userID, roomID)
	} else {
		count, err = h.readTrackingUseCase.UnreadCount(ctx, userID)
	}
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]int64{"unread_count": count})
}
