package handler

import (
	"github.com/labstack/echo/v4"

	"schoolchat/internal/domain/entity"
	"schoolchat/internal/usecase"
	"schoolchat/pkg/response"
)

type RoomHandler struct {
	membershipUseCase   *usecase.MembershipUseCase
	readTrackingUseCase *usecase.ReadTrackingUseCase
}

func NewRoomHandler(membershipUseCase *usecase.MembershipUseCase, readTrackingUseCase *usecase.ReadTrackingUseCase) *RoomHandler {
	return &RoomHandler{
		membershipUseCase:   membershipUseCase,
		readTrackingUseCase: readTrackingUseCase,
	}
}

type createRoomRequest struct {
	Name           string   `json:"name" validate:"required,max=200"`
	Description    string   `json:"description" validate:"max=2000"`
	RoomType       string   `json:"room_type" validate:"required"`
	ClassID        string   `json:"class_id" validate:"max=64"`
	SchoolID       string   `json:"school_id" validate:"max=64"`
	IsPrivate      bool     `json:"is_private"`
	ParticipantIDs []string `json:"participant_ids" validate:"max=500,dive,required"`
}

func (h *RoomHandler) ListRooms(c echo.Context) error {
	rooms, err := h.membershipUseCase.ListVisibleRooms(c.Request().Context(), getUserIDFromContext(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, rooms)
}

func (h *RoomHandler) CreateRoom(c echo.Context) error {
	var req createRoomRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	room, err := h.membershipUseCase.CreateRoom(c.Request().Context(), getUserIDFromContext(c), usecase.CreateRoomInput{
		Name:           req.Name,
		Description:    req.Description,
		RoomType:       entity.RoomType(req.RoomType),
		ClassID:        req.ClassID,
		SchoolID:       req.SchoolID,
		IsPrivate:      req.IsPrivate,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, room)
}

func (h *RoomHandler) GetRoom(c echo.Context) error {
	room, err := h.membershipUseCase.GetRoom(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, room)
}

func (h *RoomHandler) JoinRoom(c echo.Context) error {
	participant, err := h.membershipUseCase.Join(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, participant)
}

func (h *RoomHandler) LeaveRoom(c echo.Context) error {
	if err := h.membershipUseCase.Leave(c.Request().Context(), getUserIDFromContext(c), c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"message": "Left room"})
}

func (h *RoomHandler) ListParticipants(c echo.Context) error {
	participants, err := h.membershipUseCase.ListParticipants(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, participants)
}

// MarkRoomRead marks every unread message of the room as read for the caller.
func (h *RoomHandler) MarkRoomRead(c echo.Context) error {
	marked, err := h.readTrackingUseCase.MarkRoomRead(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]int64{"marked": marked})
}
