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

type gormRoomRepository struct {
	db *gorm.DB
}

func NewGormRoomRepository(db *gorm.DB) repository.RoomRepository {
	return &gormRoomRepository{db: db}
}

func (r *gormRoomRepository) Create(ctx context.Context, room *entity.Room, participants []*entity.Participant) error {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	room.CreatedAt = now
	room.UpdatedAt = now

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		for _, p := range participants {
			p.RoomID = room.ID
			if p.JoinedAt.IsZero() {
				p.JoinedAt = now
			}
		}
		if len(participants) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&participants).Error
	})
	return translateError(err, "Room", "Failed to create room")
}

func (r *gormRoomRepository) GetByID(ctx context.Context, id string) (*entity.Room, error) {
	var room entity.Room
	if err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		return nil, translateError(err, "Room", "Failed to get room")
	}
	return &room, nil
}

func (r *gormRoomRepository) GetByName(ctx context.Context, name string) (*entity.Room, error) {
	var room entity.Room
	if err := r.db.WithContext(ctx).First(&room, "name = ?", name).Error; err != nil {
		return nil, translateError(err, "Room", "Failed to get room")
	}
	return &room, nil
}

func (r *gormRoomRepository) ListActive(ctx context.Context) ([]*entity.Room, error) {
	var rooms []*entity.Room
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&rooms).Error
	if err != nil {
		return nil, errors.Internal("Failed to list rooms", err)
	}
	return rooms, nil
}

func (r *gormRoomRepository) ListByIDs(ctx context.Context, ids []string) ([]*entity.Room, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rooms []*entity.Room
	err := r.db.WithContext(ctx).
		Where("id IN ? AND is_active = ?", ids, true).
		Order("created_at ASC").
		Find(&rooms).Error
	if err != nil {
		return nil, errors.Internal("Failed to list rooms", err)
	}
	return rooms, nil
}

func (r *gormRoomRepository) ListByClassIDs(ctx context.Context, classIDs []string) ([]*entity.Room, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	var rooms []*entity.Room
	err := r.db.WithContext(ctx).
		Where("room_type = ? AND class_id IN ? AND is_active = ?", entity.RoomTypeClass, classIDs, true).
		Order("created_at ASC").
		Find(&rooms).Error
	if err != nil {
		return nil, errors.Internal("Failed to list class rooms", err)
	}
	return rooms, nil
}

func (r *gormRoomRepository) Update(ctx context.Context, room *entity.Room) error {
	room.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).Model(room).
		Select("name", "description", "is_active", "is_private", "updated_at").
		Updates(room).Error
	return translateError(err, "Room", "Failed to update room")
}

func (r *gormRoomRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&entity.ReadMarker{}).Error; err != nil {
			return err
		}
		// Replies point inside the same room, so detach them before the rows go.
		if err := tx.Model(&entity.Message{}).Where("room_id = ?", id).Update("reply_to_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", id).Delete(&entity.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", id).Delete(&entity.Participant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&entity.Room{}, "id = ?", id).Error
	})
	return translateError(err, "Room", "Failed to delete room")
}

func (r *gormRoomRepository) AddParticipant(ctx context.Context, participant *entity.Participant) error {
	if participant.JoinedAt.IsZero() {
		participant.JoinedAt = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "is_active"}),
	}).Create(participant).Error
	return translateError(err, "Participant", "Failed to add participant")
}

func (r *gormRoomRepository) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&entity.Participant{}).Error
	return translateError(err, "Participant", "Failed to remove participant")
}

func (r *gormRoomRepository) GetParticipant(ctx context.Context, roomID, userID string) (*entity.Participant, error) {
	var participant entity.Participant
	err := r.db.WithContext(ctx).
		First(&participant, "room_id = ? AND user_id = ?", roomID, userID).Error
	if err != nil {
		return nil, translateError(err, "Participant", "Failed to get participant")
	}
	return &participant, nil
}

func (r *gormRoomRepository) ListParticipants(ctx context.Context, roomID string) ([]*entity.Participant, error) {
	var participants []*entity.Participant
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at ASC").
		Find(&participants).Error
	if err != nil {
		return nil, errors.Internal("Failed to list participants", err)
	}
	return participants, nil
}

func (r *gormRoomRepository) ListRoomIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&entity.Participant{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Pluck("room_id", &ids).Error
	if err != nil {
		return nil, errors.Internal("Failed to list user rooms", err)
	}
	return ids, nil
}
