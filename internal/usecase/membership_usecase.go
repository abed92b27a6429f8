package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"schoolchat/internal/domain/entity"
	"schoolchat/internal/domain/repository"
	"schoolchat/internal/infrastructure/ratelimit"
	"schoolchat/pkg/errors"
	"schoolchat/pkg/logger"
)

type MembershipUseCase struct {
	roomRepo    repository.RoomRepository
	userRepo    repository.UserRepository
	profileRepo repository.ProfileRepository
	messageRepo repository.MessageRepository
	markerRepo  repository.ReadMarkerRepository
	rateLimiter *ratelimit.RateLimiter
}

func NewMembershipUseCase(
	roomRepo repository.RoomRepository,
	userRepo repository.UserRepository,
	profileRepo repository.ProfileRepository,
	messageRepo repository.MessageRepository,
	markerRepo repository.ReadMarkerRepository,
	rateLimiter *ratelimit.RateLimiter,
) *MembershipUseCase {
	return &MembershipUseCase{
		roomRepo:    roomRepo,
		userRepo:    userRepo,
		profileRepo: profileRepo,
		messageRepo: messageRepo,
		markerRepo:  markerRepo,
		rateLimiter: rateLimiter,
	}
}

type CreateRoomInput struct {
	Name           string
	Description    string
	RoomType       entity.RoomType
	ClassID        string
	SchoolID       string
	IsPrivate      bool
	ParticipantIDs []string
}

type RoomSummary struct {
	*entity.Room
	LastMessage *entity.Message `json:"last_message,omitempty"`
	UnreadCount int64           `json:"unread_count"`
}

type ParticipantResponse struct {
	*entity.Participant
	User *entity.UserSummary `json:"user,omitempty"`
}

type ProvisionResult struct {
	Created []*entity.Room `json:"created"`
	Skipped int            `json:"skipped"`
}

func (uc *MembershipUseCase) isParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	p, err := uc.roomRepo.GetParticipant(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.IsActive, nil
}

// IsEffectiveMember is true for active participants and, in class rooms,
// for users whose profile assigns them to the class.
func (uc *MembershipUseCase) IsEffectiveMember(ctx context.Context, room *entity.Room, userID string) (bool, error) {
	ok, err := uc.isParticipant(ctx, room.ID, userID)
	if err != nil || ok || !room.IsClassRoom() {
		return ok, err
	}

	profile, err := uc.profileRepo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, errors.CodeNoProfile) {
			return false, nil
		}
		return false, err
	}
	return profile.InClass(room.ClassID), nil
}

// EffectiveMembers returns the sorted, de-duplicated member ids of room.
func (uc *MembershipUseCase) EffectiveMembers(ctx context.Context, room *entity.Room) ([]string, error) {
	return uc.MembersAt(ctx, room, time.Time{})
}

// MembersAt is EffectiveMembers restricted to participants who had joined
// by at. A zero at applies no cutoff.
func (uc *MembershipUseCase) MembersAt(ctx context.Context, room *entity.Room, at time.Time) ([]string, error) {
	participants, err := uc.roomRepo.ListParticipants(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if !p.IsActive {
			continue
		}
		if !at.IsZero() && p.JoinedAt.After(at) {
			continue
		}
		seen[p.UserID] = true
	}

	if room.IsClassRoom() {
		classMembers, err := uc.profileRepo.ListUserIDsByClass(ctx, room.ClassID)
		if err != nil {
			return nil, err
		}
		for _, id := range classMembers {
			seen[id] = true
		}
	}

	members := make([]string, 0, len(seen))
	for id := range seen {
		members = append(members, id)
	}
	sort.Strings(members)
	return members, nil
}

// ActiveRoom loads a room and hides inactive ones as not found.
func (uc *MembershipUseCase) ActiveRoom(ctx context.Context, roomID string) (*entity.Room, error) {
	room, err := uc.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, errors.NotFound("Room", nil)
	}
	return room, nil
}

// RequireMember loads an active room and fails with NOT_MEMBER unless userID
// is an effective member.
func (uc *MembershipUseCase) RequireMember(ctx context.Context, roomID, userID string) (*entity.Room, error) {
	room, err := uc.ActiveRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	ok, err := uc.IsEffectiveMember(ctx, room, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NotMember(roomID)
	}
	return room, nil
}

func (uc *MembershipUseCase) CanSee(ctx context.Context, user *entity.User, room *entity.Room) (bool, error) {
	return policyFor(user.Role).canSee(ctx, uc, user, room)
}

// MemberRoomIDs lists every active room where userID is an effective member.
func (uc *MembershipUseCase) MemberRoomIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := uc.roomRepo.ListRoomIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	rooms, err := uc.roomRepo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	profile, err := uc.profileRepo.Get(ctx, userID)
	if err != nil && !errors.Is(err, errors.CodeNoProfile) {
		return nil, err
	}
	if profile != nil && len(profile.ClassIDs) > 0 {
		classRooms, err := uc.roomRepo.ListByClassIDs(ctx, profile.ClassIDs)
		if err != nil {
			return nil, err
		}
		rooms = mergeRooms(rooms, classRooms)
	}

	roomIDs := make([]string, 0, len(rooms))
	for _, room := range rooms {
		roomIDs = append(roomIDs, room.ID)
	}
	return roomIDs, nil
}

func (uc *MembershipUseCase) CreateRoom(ctx context.Context, actorID string, input CreateRoomInput) (*entity.Room, error) {
	ctx, span := tracer.Start(ctx, "MembershipUseCase.CreateRoom")
	defer span.End()

	if uc.rateLimiter != nil {
		if allowed, wait := uc.rateLimiter.Allow(actorID, ratelimit.ActionCreateRoom); !allowed {
			logger.Info("CreateRoom Rate Limited: User %s must wait %v", actorID, wait)
			return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before creating another room", nil)
		}
	}

	actor, err := uc.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsPrivileged() && actor.Role != entity.RoleTeacher {
		return nil, errors.Forbidden("Only administrators and teachers can create rooms", nil)
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errors.ValidationFailed("Room name is required", nil)
	}
	if !input.RoomType.Valid() {
		return nil, errors.ValidationFailed(fmt.Sprintf("Unknown room type %q", input.RoomType), nil)
	}
	if input.RoomType == entity.RoomTypeClass && input.ClassID == "" {
		return nil, errors.ValidationFailed("Class rooms need a class_id", nil)
	}

	schoolID := input.SchoolID
	if schoolID == "" {
		schoolID = actor.SchoolID
	}

	room := &entity.Room{
		Name:        name,
		Description: input.Description,
		RoomType:    input.RoomType,
		ClassID:     input.ClassID,
		SchoolID:    schoolID,
		IsActive:    true,
		IsPrivate:   input.IsPrivate,
		CreatedBy:   actorID,
	}

	participants := []*entity.Participant{{UserID: actorID, Role: entity.ParticipantAdmin, IsActive: true}}
	for _, id := range input.ParticipantIDs {
		if id == "" || id == actorID {
			continue
		}
		participants = append(participants, &entity.Participant{UserID: id, Role: entity.ParticipantMember, IsActive: true})
	}

	if err := uc.roomRepo.Create(ctx, room, participants); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("room.id", room.ID), attribute.String("room.type", string(room.RoomType)))
	logger.Info("Room %s (%s) created by %s with %d participants", room.ID, room.RoomType, actorID, len(participants))
	return room, nil
}

// GetRoom returns a room the user is allowed to see.
func (uc *MembershipUseCase) GetRoom(ctx context.Context, userID, roomID string) (*entity.Room, error) {
	room, err := uc.ActiveRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	ok, err := uc.CanSee(ctx, user, room)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NotMember(roomID)
	}
	return room, nil
}

func (uc *MembershipUseCase) ListVisibleRooms(ctx context.Context, userID string) ([]*RoomSummary, error) {
	ctx, span := tracer.Start(ctx, "MembershipUseCase.ListVisibleRooms", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	rooms, err := policyFor(user.Role).visibleRooms(ctx, uc, user)
	if err != nil {
		return nil, err
	}

	roomIDs := make([]string, 0, len(rooms))
	for _, room := range rooms {
		roomIDs = append(roomIDs, room.ID)
	}
	unread, err := uc.markerRepo.CountUnreadByRoom(ctx, userID, roomIDs)
	if err != nil {
		return nil, err
	}

	summaries := make([]*RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summary := &RoomSummary{Room: room, UnreadCount: unread[room.ID]}
		if room.LastSeq > 0 {
			last, err := uc.messageRepo.LastInRoom(ctx, room.ID)
			if err != nil && !errors.Is(err, errors.CodeNotFound) {
				return nil, err
			}
			summary.LastMessage = last
		}
		summaries = append(summaries, summary)
	}

	// Most recently active rooms first.
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LastMessageAt, summaries[j].LastMessageAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return summaries, nil
}

// Join adds userID as a member. Joining twice is a no-op.
func (uc *MembershipUseCase) Join(ctx context.Context, userID, roomID string) (*entity.Participant, error) {
	room, err := uc.ActiveRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	existing, err := uc.roomRepo.GetParticipant(ctx, roomID, userID)
	if err == nil && existing.IsActive {
		return existing, nil
	}
	if err != nil && !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}

	if room.IsPrivate {
		return nil, errors.Forbidden("This room is private", nil)
	}
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	visible, err := uc.CanSee(ctx, user, room)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, errors.Forbidden("You cannot join this room", nil)
	}

	participant := &entity.Participant{RoomID: roomID, UserID: userID, Role: entity.ParticipantMember, IsActive: true}
	if err := uc.roomRepo.AddParticipant(ctx, participant); err != nil {
		return nil, err
	}
	logger.Info("User %s joined room %s", userID, roomID)
	return participant, nil
}

// Leave removes the participant record. Leaving a room one is not in is a no-op.
func (uc *MembershipUseCase) Leave(ctx context.Context, userID, roomID string) error {
	if _, err := uc.roomRepo.GetByID(ctx, roomID); err != nil {
		return err
	}
	if err := uc.roomRepo.RemoveParticipant(ctx, roomID, userID); err != nil {
		return err
	}
	logger.Info("User %s left room %s", userID, roomID)
	return nil
}

func (uc *MembershipUseCase) ListParticipants(ctx context.Context, userID, roomID string) ([]*ParticipantResponse, error) {
	if _, err := uc.RequireMember(ctx, roomID, userID); err != nil {
		return nil, err
	}

	participants, err := uc.roomRepo.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	users, err := uc.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	responses := make([]*ParticipantResponse, 0, len(participants))
	for _, p := range participants {
		responses = append(responses, &ParticipantResponse{Participant: p, User: users[p.UserID].Summary()})
	}
	return responses, nil
}

type pairRoom struct {
	name         string
	description  string
	roomType     entity.RoomType
	private      bool
	participants []string
}

// ProvisionRolePairRooms seeds the staff rooms of a school. Rooms that
// already exist by name are left alone, so it can be run repeatedly.
func (uc *MembershipUseCase) ProvisionRolePairRooms(ctx context.Context, schoolID string) (*ProvisionResult, error) {
	ctx, span := tracer.Start(ctx, "MembershipUseCase.ProvisionRolePairRooms", trace.WithAttributes(attribute.String("school.id", schoolID)))
	defer span.End()

	if schoolID == "" {
		return nil, errors.ValidationFailed("school_id is required", nil)
	}

	superAdmins, err := uc.userRepo.ListByRole(ctx, entity.RoleSuperAdmin, "")
	if err != nil {
		return nil, err
	}
	admins, err := uc.userRepo.ListByRole(ctx, entity.RoleSchoolAdmin, schoolID)
	if err != nil {
		return nil, err
	}
	secretaries, err := uc.userRepo.ListByRole(ctx, entity.RoleSecretary, schoolID)
	if err != nil {
		return nil, err
	}
	teachers, err := uc.userRepo.ListByRole(ctx, entity.RoleTeacher, schoolID)
	if err != nil {
		return nil, err
	}

	var plan []pairRoom
	if len(admins) > 0 {
		plan = append(plan, pairRoom{
			name:         fmt.Sprintf("System ↔ %s", schoolID),
			description:  fmt.Sprintf("System admins and %s school admins", schoolID),
			roomType:     entity.RoomTypeSystemSchoolAdmin,
			private:      true,
			participants: userIDs(superAdmins, admins),
		})
	}
	for i := 0; i < len(admins); i++ {
		for j := i + 1; j < len(admins); j++ {
			plan = append(plan, oneOnOne(admins[i], admins[j], schoolID, entity.RoomTypeSchoolAdminToAdmin))
		}
	}
	for _, admin := range admins {
		for _, secretary := range secretaries {
			plan = append(plan, oneOnOne(admin, secretary, schoolID, entity.RoomTypeSchoolAdminToSecretary))
		}
		for _, teacher := range teachers {
			plan = append(plan, oneOnOne(admin, teacher, schoolID, entity.RoomTypeSchoolAdminToTeacher))
		}
	}
	for _, secretary := range secretaries {
		for _, teacher := range teachers {
			plan = append(plan, oneOnOne(secretary, teacher, schoolID, entity.RoomTypeSecretaryToTeacher))
		}
	}
	plan = append(plan, pairRoom{
		name:         fmt.Sprintf("General Staff Room (%s)", schoolID),
		description:  "General announcements and staff communication",
		roomType:     entity.RoomTypeGeneralStaff,
		participants: userIDs(superAdmins, admins, teachers, secretaries),
	})

	result := &ProvisionResult{}
	for _, p := range plan {
		_, err := uc.roomRepo.GetByName(ctx, p.name)
		if err == nil {
			result.Skipped++
			continue
		}
		if !errors.Is(err, errors.CodeNotFound) {
			return nil, err
		}

		room := &entity.Room{
			Name:        p.name,
			Description: p.description,
			RoomType:    p.roomType,
			SchoolID:    schoolID,
			IsActive:    true,
			IsPrivate:   p.private,
		}
		participants := make([]*entity.Participant, 0, len(p.participants))
		for _, id := range p.participants {
			participants = append(participants, &entity.Participant{UserID: id, Role: entity.ParticipantMember, IsActive: true})
		}
		if err := uc.roomRepo.Create(ctx, room, participants); err != nil {
			return nil, err
		}
		result.Created = append(result.Created, room)
	}

	logger.Info("Provisioned %d rooms for school %s (%d already present)", len(result.Created), schoolID, result.Skipped)
	return result, nil
}

func oneOnOne(a, b *entity.User, schoolID string, roomType entity.RoomType) pairRoom {
	return pairRoom{
		name:         fmt.Sprintf("%s - %s (%s)", a.Username, b.Username, schoolID),
		description:  strings.ReplaceAll(string(roomType), "_", " "),
		roomType:     roomType,
		private:      true,
		participants: []string{a.ID, b.ID},
	}
}

func userIDs(groups ...[]*entity.User) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, group := range groups {
		for _, u := range group {
			if !seen[u.ID] {
				seen[u.ID] = true
				ids = append(ids, u.ID)
			}
		}
	}
	return ids
}
