package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schoolchat/internal/domain/entity"
	"schoolchat/internal/domain/repository"
	"schoolchat/pkg/errors"
)

type gormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) repository.MessageRepository {
	return &gormMessageRepository{db: db}
}

func (r *gormMessageRepository) Append(ctx context.Context, message *entity.Message, recipientIDs []string) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room entity.Room
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&room, "id = ?", message.RoomID).Error; err != nil {
			return err
		}

		// Timestamps are taken under the room lock so created_at follows seq.
		now := time.Now().UTC()
		message.Seq = room.LastSeq + 1
		message.CreatedAt = now
		message.UpdatedAt = now

		if err := tx.Omit(clause.Associations).Create(message).Error; err != nil {
			return err
		}

		if err := tx.Model(&entity.Room{}).Where("id = ?", room.ID).Updates(map[string]interface{}{
			"last_seq":        message.Seq,
			"last_message_at": now,
		}).Error; err != nil {
			return err
		}

		if len(recipientIDs) == 0 {
			return nil
		}
		markers := make([]*entity.ReadMarker, 0, len(recipientIDs))
		for _, userID := range recipientIDs {
			if userID == message.SenderID {
				continue
			}
			markers = append(markers, &entity.ReadMarker{
				MessageID: message.ID,
				UserID:    userID,
				RoomID:    message.RoomID,
				CreatedAt: now,
			})
		}
		if len(markers) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&markers).Error
	})
	if err != nil {
		return translateError(err, "Room", "Failed to create message")
	}
	return nil
}

func (r *gormMessageRepository) GetByID(ctx context.Context, id string) (*entity.Message, error) {
	var message entity.Message
	if err := r.db.WithContext(ctx).First(&message, "id = ?", id).Error; err != nil {
		return nil, translateError(err, "Message", "Failed to get message")
	}
	return &message, nil
}

func (r *gormMessageRepository) ListByRoom(ctx context.Context, roomID string, afterSeq int64, limit int) ([]*entity.Message, error) {
	query := r.db.WithContext(ctx).
		Where("room_id = ? AND seq > ?", roomID, afterSeq).
		Order("seq ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var messages []*entity.Message
	if err := query.Find(&messages).Error; err != nil {
		return nil, errors.Internal("Failed to list messages", err)
	}
	return messages, nil
}

func (r *gormMessageRepository) LastInRoom(ctx context.Context, roomID string) (*entity.Message, error) {
	var message entity.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("seq DESC").
		First(&message).Error
	if err != nil {
		return nil, translateError(err, "Message", "Failed to get last message")
	}
	return &message, nil
}

func (r *gormMessageRepository) Update(ctx context.Context, message *entity.Message) error {
	message.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).Model(message).
		Select("content", "attachment", "attachment_name", "attachment_type", "attachment_size",
			"is_edited", "is_deleted", "edited_at", "updated_at").
		Updates(message).Error
	return translateError(err, "Message", "Failed to update message")
}
