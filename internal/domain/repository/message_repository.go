package repository

import (
	"context"

	"schoolchat/internal/domain/entity"
)

type MessageRepository interface {
	// Append assigns the next per-room sequence number and stores the message
	// together with one unread marker per recipient. Either all of it is
	// persisted or none of it is.
	Append(ctx context.Context, message *entity.Message, recipientIDs []string) error
	GetByID(ctx context.Context, id string) (*entity.Message, error)
	// ListByRoom returns messages with Seq > afterSeq in ascending order.
	ListByRoom(ctx context.Context, roomID string, afterSeq int64, limit int) ([]*entity.Message, error)
	LastInRoom(ctx context.Context, roomID string) (*entity.Message, error)
	Update(ctx context.Context, message *entity.Message) error
}
