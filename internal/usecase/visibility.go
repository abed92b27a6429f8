package usecase

import (
	"context"

	"schoolchat/internal/domain/entity"
	"schoolchat/pkg/errors"
)

// visibilityPolicy decides which rooms a user may see and join.
type visibilityPolicy interface {
	canSee(ctx context.Context, uc *MembershipUseCase, user *entity.User, room *entity.Room) (bool, error)
	visibleRooms(ctx context.Context, uc *MembershipUseCase, user *entity.User) ([]*entity.Room, error)
}

func policyFor(role entity.UserRole) visibilityPolicy {
	switch {
	case role.IsPrivileged():
		return privilegedPolicy{}
	case role == entity.RoleTeacher:
		return classPolicy{kind: entity.ProfileTeacher}
	case role == entity.RoleStudent:
		return classPolicy{kind: entity.ProfileStudent}
	default:
		return participantPolicy{}
	}
}

// privilegedPolicy sees every active room. School-scoped roles only see
// rooms of their own school, or rooms with no school.
type privilegedPolicy struct{}

func (privilegedPolicy) inScope(user *entity.User, room *entity.Room) bool {
	if user.Role == entity.RoleSuperAdmin || room.SchoolID == "" || user.SchoolID == "" {
		return true
	}
	return room.SchoolID == user.SchoolID
}

func (p privilegedPolicy) canSee(_ context.Context, _ *MembershipUseCase, user *entity.User, room *entity.Room) (bool, error) {
	return room.IsActive && p.inScope(user, room), nil
}

func (p privilegedPolicy) visibleRooms(ctx context.Context, uc *MembershipUseCase, user *entity.User) ([]*entity.Room, error) {
	rooms, err := uc.roomRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]*entity.Room, 0, len(rooms))
	for _, room := range rooms {
		if p.inScope(user, room) {
			visible = append(visible, room)
		}
	}
	return visible, nil
}

// participantPolicy sees only rooms with an active participant record.
type participantPolicy struct{}

func (participantPolicy) canSee(ctx context.Context, uc *MembershipUseCase, user *entity.User, room *entity.Room) (bool, error) {
	if !room.IsActive {
		return false, nil
	}
	return uc.isParticipant(ctx, room.ID, user.ID)
}

func (participantPolicy) visibleRooms(ctx context.Context, uc *MembershipUseCase, user *entity.User) ([]*entity.Room, error) {
	ids, err := uc.roomRepo.ListRoomIDsForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return uc.roomRepo.ListByIDs(ctx, ids)
}

// classPolicy adds the class rooms of the user's profile to the participant
// rooms. Without a profile it behaves like participantPolicy.
type classPolicy struct {
	kind entity.ProfileKind
}

func (p classPolicy) classIDs(ctx context.Context, uc *MembershipUseCase, userID string) ([]string, error) {
	profile, err := uc.profileRepo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, errors.CodeNoProfile) {
			return nil, nil
		}
		return nil, err
	}
	if profile.Kind != p.kind {
		return nil, nil
	}
	return profile.ClassIDs, nil
}

func (p classPolicy) canSee(ctx context.Context, uc *MembershipUseCase, user *entity.User, room *entity.Room) (bool, error) {
	ok, err := participantPolicy{}.canSee(ctx, uc, user, room)
	if err != nil || ok || !room.IsActive || !room.IsClassRoom() {
		return ok, err
	}
	classIDs, err := p.classIDs(ctx, uc, user.ID)
	if err != nil {
		return false, err
	}
	for _, id := range classIDs {
		if id == room.ClassID {
			return true, nil
		}
	}
	return false, nil
}

func (p classPolicy) visibleRooms(ctx context.Context, uc *MembershipUseCase, user *entity.User) ([]*entity.Room, error) {
	rooms, err := participantPolicy{}.visibleRooms(ctx, uc, user)
	if err != nil {
		return nil, err
	}
	classIDs, err := p.classIDs(ctx, uc, user.ID)
	if err != nil {
		return nil, err
	}
	if len(classIDs) == 0 {
		return rooms, nil
	}
	classRooms, err := uc.roomRepo.ListByClassIDs(ctx, classIDs)
	if err != nil {
		return nil, err
	}
	return mergeRooms(rooms, classRooms), nil
}

func mergeRooms(sets ...[]*entity.Room) []*entity.Room {
	seen := make(map[string]bool)
	var merged []*entity.Room
	for _, set := range sets {
		for _, room := range set {
			if seen[room.ID] {
				continue
			}
			seen[room.ID] = true
			merged = append(merged, room)
		}
	}
	return merged
}
