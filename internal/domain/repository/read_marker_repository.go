package repository

import (
	"context"
	"time"

	"schoolchat/internal/domain/entity"
)

type ReadMarkerRepository interface {
	// CreateUnread inserts a null marker for each user that has none yet and
	// returns how many were inserted.
	CreateUnread(ctx context.Context, messageID, roomID string, userIDs []string) (int, error)
	// MarkRead sets ReadAt on an existing unread marker. It never inserts.
	MarkRead(ctx context.Context, messageID, userID string, at time.Time) (bool, error)
	MarkRoomRead(ctx context.Context, roomID, userID string, at time.Time) (int64, error)
	Get(ctx context.Context, messageID, userID string) (*entity.ReadMarker, error)
	ListByMessage(ctx context.Context, messageID string) ([]*entity.ReadMarker, error)
	CountUnread(ctx context.Context, userID string, roomIDs []string) (int64, error)
	CountUnreadByRoom(ctx context.Context, userID string, roomIDs []string) (map[string]int64, error)
}
