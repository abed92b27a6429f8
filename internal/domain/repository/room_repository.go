package repository

import (
	"context"

	"schoolchat/internal/domain/entity"
)

type RoomRepository interface {
	// Create stores the room and its initial participants together.
	Create(ctx context.Context, room *entity.Room, participants []*entity.Participant) error
	GetByID(ctx context.Context, id string) (*entity.Room, error)
	GetByName(ctx context.Context, name string) (*entity.Room, error)
	ListActive(ctx context.Context) ([]*entity.Room, error)
	ListByIDs(ctx context.Context, ids []string) ([]*entity.Room, error)
	ListByClassIDs(ctx context.Context, classIDs []string) ([]*entity.Room, error)
	Update(ctx context.Context, room *entity.Room) error
	// Delete removes the room with its participants, messages and read markers.
	Delete(ctx context.Context, id string) error

	// Participant methods
	AddParticipant(ctx context.Context, participant *entity.Participant) error
	RemoveParticipant(ctx context.Context, roomID, userID string) error
	GetParticipant(ctx context.Context, roomID, userID string) (*entity.Participant, error)
	ListParticipants(ctx context.Context, roomID string) ([]*entity.Participant, error)
	ListRoomIDsForUser(ctx context.Context, userID string) ([]string, error)
}
