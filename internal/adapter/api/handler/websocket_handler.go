package handler

import (
	"context"
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"schoolchat/internal/adapter/api/middleware"
	"schoolchat/internal/domain/repository"
	ws "schoolchat/internal/infrastructure/websocket"
	"schoolchat/internal/usecase"
	"schoolchat/pkg/errors"
	"schoolchat/pkg/logger"
)

type WebSocketHandler struct {
	wsManager         *ws.Manager
	authMiddleware    *middleware.AuthMiddleware
	userRepo          repository.UserRepository
	membershipUseCase *usecase.MembershipUseCase
	chatUseCase       *usecase.ChatUseCase
}

var _ ws.InboundHandler = (*WebSocketHandler)(nil)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func NewWebSocketHandler(
	wsManager *ws.Manager,
	authMiddleware *middleware.AuthMiddleware,
	userRepo repository.UserRepository,
	membershipUseCase *usecase.MembershipUseCase,
	chatUseCase *usecase.ChatUseCase,
) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:         wsManager,
		authMiddleware:    authMiddleware,
		userRepo:          userRepo,
		membershipUseCase: membershipUseCase,
		chatUseCase:       chatUseCase,
	}
}

// HandleWebSocket serves GET /ws/chat/:room_id?token=<bearer>. Any failure
// before the upgrade ends the handshake with a bare status and no body.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	roomID := c.Param("room_id")
	token := c.QueryParam("token")
	if token == "" {
		return c.NoContent(http.StatusForbidden)
	}

	uid, err := h.authMiddleware.Verify(c, token)
	if err != nil {
		logger.Info("WebSocket rejected for room %s: %v", roomID, err)
		return c.NoContent(http.StatusForbidden)
	}

	ctx := c.Request().Context()
	user, err := h.userRepo.GetByID(ctx, uid)
	if err != nil {
		logger.Info("WebSocket rejected for %s: unknown user: %v", uid, err)
		return c.NoContent(http.StatusForbidden)
	}

	if _, err := h.membershipUseCase.RequireMember(ctx, roomID, user.ID); err != nil {
		logger.Info("WebSocket rejected for %s in room %s: %v", uid, roomID, err)
		if errors.Is(err, errors.CodeNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return c.NoContent(http.StatusForbidden)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already answered the client.
		logger.Warn("WebSocket upgrade failed for %s: %v", uid, err)
		return nil
	}

	client := ws.NewClient(conn, user.ID, user.Username, roomID)
	client.Serve(ctx, h.wsManager, h)
	return nil
}

// HandleInbound stores a frame through the same path as POST /messages.
func (h *WebSocketHandler) HandleInbound(ctx context.Context, client *ws.Client, content string) error {
	_, err := h.chatUseCase.SendMessage(ctx, client.UserID, usecase.SendMessageInput{
		RoomID:  client.RoomID,
		Content: content,
	})
	return err
}
