package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schoolchat/internal/domain/entity"
	"schoolchat/internal/domain/repository"
	"schoolchat/pkg/errors"
)

type gormReadMarkerRepository struct {
	db *gorm.DB
}

func NewGormReadMarkerRepository(db *gorm.DB) repository.ReadMarkerRepository {
	return &gormReadMarkerRepository{db: db}
}

func (r *gormReadMarkerRepository) CreateUnread(ctx context.Context, messageID, roomID string, userIDs []string) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	markers := make([]*entity.ReadMarker, 0, len(userIDs))
	for _, userID := range userIDs {
		markers = append(markers, &entity.ReadMarker{
			MessageID: messageID,
			UserID:    userID,
			RoomID:    roomID,
			CreatedAt: now,
		})
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&markers)
	if result.Error != nil {
		return 0, errors.Internal("Failed to create read markers", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (r *gormReadMarkerRepository) MarkRead(ctx context.Context, messageID, userID string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.ReadMarker{}).
		Where("message_id = ? AND user_id = ? AND read_at IS NULL", messageID, userID).
		Update("read_at", at.UTC())
	if result.Error != nil {
		return false, errors.Internal("Failed to mark message as read", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *gormReadMarkerRepository) MarkRoomRead(ctx context.Context, roomID, userID string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&entity.ReadMarker{}).
		Where("room_id = ? AND user_id = ? AND read_at IS NULL", roomID, userID).
		Update("read_at", at.UTC())
	if result.Error != nil {
		return 0, errors.Internal("Failed to mark room as read", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *gormReadMarkerRepository) Get(ctx context.Context, messageID, userID string) (*entity.ReadMarker, error) {
	var marker entity.ReadMarker
	err := r.db.WithContext(ctx).
		First(&marker, "message_id = ? AND user_id = ?", messageID, userID).Error
	if err != nil {
		return nil, translateError(err, "Read marker", "Failed to get read marker")
	}
	return &marker, nil
}

func (r *gormReadMarkerRepository) ListByMessage(ctx context.Context, messageID string) ([]*entity.ReadMarker, error) {
	var markers []*entity.ReadMarker
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("user_id ASC").
		Find(&markers).Error
	if err != nil {
		return nil, errors.Internal("Failed to list read markers", err)
	}
	return markers, nil
}

func (r *gormReadMarkerRepository) CountUnread(ctx context.Context, userID string, roomIDs []string) (int64, error) {
	if len(roomIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.ReadMarker{}).
		Where("user_id = ? AND read_at IS NULL AND room_id IN ?", userID, roomIDs).
		Count(&count).Error
	if err != nil {
		return 0, errors.Internal("Failed to count unread messages", err)
	}
	return count, nil
}

func (r *gormReadMarkerRepository) CountUnreadByRoom(ctx context.Context, userID string, roomIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(roomIDs))
	if len(roomIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		RoomID string
		Unread int64
	}
	err := r.db.WithContext(ctx).Model(&entity.ReadMarker{}).
		Select("room_id, COUNT(*) AS unread").
		Where("user_id = ? AND read_at IS NULL AND room_id IN ?", userID, roomIDs).
		Group("room_id").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Internal("Failed to count unread messages", err)
	}
	for _, row := range rows {
		counts[row.RoomID] = row.Unread
	}
	return counts, nil
}
