package usecase

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"schoolchat/internal/domain/repository"
	"schoolchat/pkg/logger"
)

type ReadTrackingUseCase struct {
	messageRepo repository.MessageRepository
	markerRepo  repository.ReadMarkerRepository
	membership  *MembershipUseCase
	now         func() time.Time
}

func NewReadTrackingUseCase(
	messageRepo repository.MessageRepository,
	markerRepo repository.ReadMarkerRepository,
	membership *MembershipUseCase,
) *ReadTrackingUseCase {
	return &ReadTrackingUseCase{
		messageRepo: messageRepo,
		markerRepo:  markerRepo,
		membership:  membership,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// MarkUnreadForOthers creates missing markers for the members other than
// the sender who had joined when the message was sent. It returns how many
// were created.
func (uc *ReadTrackingUseCase) MarkUnreadForOthers(ctx context.Context, messageID string) (int, error) {
	message, err := uc.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return 0, err
	}
	room, err := uc.membership.ActiveRoom(ctx, message.RoomID)
	if err != nil {
		return 0, err
	}
	members, err := uc.membership.MembersAt(ctx, room, message.CreatedAt)
	if err != nil {
		return 0, err
	}

	others := make([]string, 0, len(members))
	for _, id := range members {
		if id != message.SenderID {
			others = append(others, id)
		}
	}
	return uc.markerRepo.CreateUnread(ctx, message.ID, message.RoomID, others)
}

// MarkRead records that userID has read messageID. Users without a marker
// (the sender, or someone who joined later) are left as they are.
func (uc *ReadTrackingUseCase) MarkRead(ctx context.Context, userID, messageID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "ReadTrackingUseCase.MarkRead", trace.WithAttributes(
		attribute.String("message.id", messageID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	message, err := uc.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return false, err
	}
	if _, err := uc.membership.RequireMember(ctx, message.RoomID, userID); err != nil {
		return false, err
	}
	return uc.markerRepo.MarkRead(ctx, messageID, userID, uc.now())
}

func (uc *ReadTrackingUseCase) MarkRoomRead(ctx context.Context, userID, roomID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "ReadTrackingUseCase.MarkRoomRead")
	defer span.End()

	if _, err := uc.membership.RequireMember(ctx, roomID, userID); err != nil {
		return 0, err
	}
	marked, err := uc.markerRepo.MarkRoomRead(ctx, roomID, userID, uc.now())
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("markers.updated", marked))
	logger.Debug("User %s marked %d messages read in room %s", userID, marked, roomID)
	return marked, nil
}

// UnreadCount counts unread markers across the rooms userID is a member of.
func (uc *ReadTrackingUseCase) UnreadCount(ctx context.Context, userID string) (int64, error) {
	roomIDs, err := uc.membership.MemberRoomIDs(ctx, userID)
	if err != nil {
		return 0, err
	}
	return uc.markerRepo.CountUnread(ctx, userID, roomIDs)
}

func (uc *ReadTrackingUseCase) UnreadCountForRoom(ctx context.Context, userID, roomID string) (int64, error) {
	if _, err := uc.membership.RequireMember(ctx, roomID, userID); err != nil {
		return 0, err
	}
	return uc.markerRepo.CountUnread(ctx, userID, []string{roomID})
}

// IsRead is true once the user's marker has a read time. A user without a
// marker has none to read and gets NOT_FOUND.
func (uc *ReadTrackingUseCase) IsRead(ctx context.Context, userID, messageID string) (bool, error) {
	message, err := uc.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return false, err
	}
	if _, err := uc.membership.RequireMember(ctx, message.RoomID, userID); err != nil {
		return false, err
	}
	marker, err := uc.markerRepo.Get(ctx, messageID, userID)
	if err != nil {
		return false, err
	}
	return marker.IsRead(), nil
}
