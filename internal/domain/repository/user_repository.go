package repository

import (
	"context"

	"schoolchat/internal/domain/entity"
)

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*entity.User, error)
	ListByRole(ctx context.Context, role entity.UserRole, schoolID string) ([]*entity.User, error)
}

type ProfileRepository interface {
	// Get returns a NO_PROFILE error when the user has no teacher or student profile.
	Get(ctx context.Context, userID string) (*entity.Profile, error)
	Save(ctx context.Context, profile *entity.Profile) error
	ListUserIDsByClass(ctx context.Context, classID string) ([]string, error)
}
