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

type gormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) repository.UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) Create(ctx context.Context, user *entity.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return errors.Internal("Failed to create user", err)
	}
	return nil
}

func (r *gormUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	var user entity.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translateError(err, "User", "Failed to get user")
	}
	return &user, nil
}

func (r *gormUserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*entity.User, error) {
	users := make(map[string]*entity.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	var rows []*entity.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, errors.Internal("Failed to get users", err)
	}
	for _, u := range rows {
		users[u.ID] = u
	}
	return users, nil
}

func (r *gormUserRepository) ListByRole(ctx context.Context, role entity.UserRole, schoolID string) ([]*entity.User, error) {
	query := r.db.WithContext(ctx).Where("role = ? AND is_active = ?", role, true)
	if schoolID != "" {
		query = query.Where("school_id = ?", schoolID)
	}

	var users []*entity.User
	if err := query.Order("username ASC").Find(&users).Error; err != nil {
		return nil, errors.Internal("Failed to list users by role", err)
	}
	return users, nil
}

type gormProfileRepository struct {
	db *gorm.DB
}

func NewGormProfileRepository(db *gorm.DB) repository.ProfileRepository {
	return &gormProfileRepository{db: db}
}

func (r *gormProfileRepository) Get(ctx context.Context, userID string) (*entity.Profile, error) {
	var record entity.ProfileRecord
	err := r.db.WithContext(ctx).First(&record, "user_id = ?", userID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.NoProfile(userID)
	}
	if err != nil {
		return nil, errors.Internal("Failed to get profile", err)
	}

	var classIDs []string
	err = r.db.WithContext(ctx).Model(&entity.ClassAssignment{}).
		Where("user_id = ?", userID).
		Order("class_id ASC").
		Pluck("class_id", &classIDs).Error
	if err != nil {
		return nil, errors.Internal("Failed to get class assignments", err)
	}

	return &entity.Profile{UserID: record.UserID, Kind: record.Kind, ClassIDs: classIDs}, nil
}

func (r *gormProfileRepository) Save(ctx context.Context, profile *entity.Profile) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := &entity.ProfileRecord{UserID: profile.UserID, Kind: profile.Kind}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(record).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", profile.UserID).Delete(&entity.ClassAssignment{}).Error; err != nil {
			return err
		}
		if len(profile.ClassIDs) == 0 {
			return nil
		}
		assignments := make([]*entity.ClassAssignment, 0, len(profile.ClassIDs))
		for _, classID := range profile.ClassIDs {
			assignments = append(assignments, &entity.ClassAssignment{UserID: profile.UserID, ClassID: classID})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&assignments).Error
	})
	if err != nil {
		return errors.Internal("Failed to save profile", err)
	}
	return nil
}

func (r *gormProfileRepository) ListUserIDsByClass(ctx context.Context, classID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&entity.ClassAssignment{}).
		Where("class_id = ?", classID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, errors.Internal("Failed to list class members", err)
	}
	return ids, nil
}
