package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"schoolchat/internal/domain/entity"
	"schoolchat/internal/domain/repository"
	"schoolchat/internal/domain/service"
	"schoolchat/internal/infrastructure/ratelimit"
	ws "schoolchat/internal/infrastructure/websocket"
	"schoolchat/pkg/config"
	"schoolchat/pkg/errors"
	"schoolchat/pkg/logger"
	"schoolchat/pkg/utils"
)

type ChatUseCase struct {
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	membership  *MembershipUseCase
	publisher   ws.Publisher
	blobs       service.BlobStore
	dispatcher  service.NotificationDispatcher
	settings    *config.Store
	rateLimiter *ratelimit.RateLimiter
	locks       *roomLocks
}

func NewChatUseCase(
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	membership *MembershipUseCase,
	publisher ws.Publisher,
	blobs service.BlobStore,
	dispatcher service.NotificationDispatcher,
	settings *config.Store,
	rateLimiter *ratelimit.RateLimiter,
) *ChatUseCase {
	return &ChatUseCase{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		membership:  membership,
		publisher:   publisher,
		blobs:       blobs,
		dispatcher:  dispatcher,
		settings:    settings,
		rateLimiter: rateLimiter,
		locks:       newRoomLocks(),
	}
}

// AttachmentUpload is a file received with a message.
type AttachmentUpload struct {
	Reader   io.Reader
	Filename string
}

type SendMessageInput struct {
	RoomID      string
	Content     string
	MessageType entity.MessageType
	ReplyToID   string
	Attachment  *AttachmentUpload
}

type MessageResponse struct {
	*entity.Message
	Sender *entity.UserSummary `json:"sender,omitempty"`
}

type MessagePage struct {
	Items      []*MessageResponse
	NextCursor *int64
}

// SendMessage stores a message with its unread markers and broadcasts it to
// the room. Both the gateway and the REST endpoint go through here.
func (uc *ChatUseCase) SendMessage(ctx context.Context, userID string, input SendMessageInput) (*MessageResponse, error) {
	ctx, span := tracer.Start(ctx, "ChatUseCase.SendMessage", trace.WithAttributes(
		attribute.String("room.id", input.RoomID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	room, err := uc.membership.ActiveRoom(ctx, input.RoomID)
	if err != nil {
		return nil, err
	}

	msgType := input.MessageType
	if msgType == "" {
		msgType = entity.MessageTypeText
	}
	if !msgType.Valid() {
		return nil, errors.ValidationFailed(fmt.Sprintf("Unknown message type %q", msgType), nil)
	}
	content := strings.TrimSpace(input.Content)
	if content == "" && input.Attachment == nil {
		return nil, errors.ValidationFailed("Message content or attachment is required", nil)
	}

	ok, err := uc.membership.IsEffectiveMember(ctx, room, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Info("SendMessage Error: User %s is not a member of room %s", userID, room.ID)
		return nil, errors.NotMember(room.ID)
	}

	sender, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if uc.rateLimiter != nil {
		if allowed, wait := uc.rateLimiter.Allow(userID, ratelimit.ActionSendMessage); !allowed {
			logger.Info("SendMessage Rate Limited: User %s must wait %v", userID, wait)
			return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before sending another message", nil)
		}
	}

	message := &entity.Message{
		RoomID:      room.ID,
		SenderID:    userID,
		Content:     content,
		MessageType: msgType,
	}

	if input.ReplyToID != "" {
		target, err := uc.messageRepo.GetByID(ctx, input.ReplyToID)
		if err != nil {
			if errors.Is(err, errors.CodeNotFound) {
				return nil, errors.ValidationFailed("reply_to_id does not reference a message", err)
			}
			return nil, err
		}
		if target.RoomID != room.ID {
			return nil, errors.ValidationFailed("reply_to_id must reference a message in the same room", nil)
		}
		message.ReplyToID = &target.ID
	}

	// The blob upload stays outside the room lock.
	if input.Attachment != nil {
		if uc.rateLimiter != nil {
			if allowed, wait := uc.rateLimiter.Allow(userID, ratelimit.ActionUpload); !allowed {
				logger.Info("SendMessage Upload Rate Limited: User %s must wait %v", userID, wait)
				return nil, errors.TooManyRequests("Too many uploads. Please wait before attaching another file", nil)
			}
		}
		if err := uc.storeAttachment(ctx, message, input.Attachment); err != nil {
			return nil, err
		}
	}

	recipients, err := uc.appendAndPublish(ctx, room, message, sender)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		uc.discardBlob(ctx, message)
		return nil, err
	}

	if messagesSent != nil {
		messagesSent.Add(ctx, 1, metric.WithAttributes(attribute.String("message.type", string(message.MessageType))))
	}
	span.SetAttributes(attribute.String("message.id", message.ID), attribute.Int64("message.seq", message.Seq))

	uc.notify(ctx, room, message, sender, recipients)

	return &MessageResponse{Message: message, Sender: sender.Summary()}, nil
}

// appendAndPublish holds the room lock so broadcast order follows seq.
// Membership is checked again under the lock.
func (uc *ChatUseCase) appendAndPublish(ctx context.Context, room *entity.Room, message *entity.Message, sender *entity.User) ([]string, error) {
	unlock := uc.locks.lock(room.ID)
	defer unlock()

	ok, err := uc.membership.IsEffectiveMember(ctx, room, message.SenderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NotMember(room.ID)
	}

	recipients, err := uc.membership.EffectiveMembers(ctx, room)
	if err != nil {
		return nil, err
	}
	if err := uc.messageRepo.Append(ctx, message, recipients); err != nil {
		logger.Error("SendMessage Error: Failed to store message in room %s: %v", room.ID, err)
		return nil, err
	}

	uc.publish(ctx, message, sender)
	return recipients, nil
}

func (uc *ChatUseCase) publish(ctx context.Context, message *entity.Message, sender *entity.User) {
	if uc.publisher == nil {
		return
	}
	text := message.Content
	if text == "" && message.HasAttachment() {
		text = message.AttachmentName
	}
	payload, err := ws.EncodeOutbound(message.ID, text, sender.Username, sender.ID, message.CreatedAt)
	if err != nil {
		logger.Error("Failed to encode outbound frame for message %s: %v", message.ID, err)
		return
	}
	if err := uc.publisher.Publish(ctx, message.RoomID, payload); err != nil {
		// The message is stored; clients catch up through the REST history.
		logger.Error("Failed to publish message %s to room %s: %v", message.ID, message.RoomID, err)
	}
}

func (uc *ChatUseCase) notify(ctx context.Context, room *entity.Room, message *entity.Message, sender *entity.User, members []string) {
	if uc.dispatcher == nil || uc.settings == nil || !uc.settings.Get().NotifyOnMessage {
		return
	}
	recipients := make([]string, 0, len(members))
	for _, id := range members {
		if id != message.SenderID {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return
	}

	preview := message.Content
	if runes := []rune(preview); len(runes) > 100 {
		preview = string(runes[:100]) + "..."
	}
	notice := &service.MessageNotice{
		MessageID:    message.ID,
		RoomID:       room.ID,
		RoomName:     room.Name,
		SenderID:     sender.ID,
		SenderName:   sender.Username,
		Preview:      preview,
		RecipientIDs: recipients,
	}
	if err := uc.dispatcher.Dispatch(ctx, notice); err != nil {
		logger.Warn("Failed to dispatch notifications for message %s: %v", message.ID, err)
	}
}

func (uc *ChatUseCase) storeAttachment(ctx context.Context, message *entity.Message, upload *AttachmentUpload) error {
	if uc.blobs == nil {
		return errors.Unavailable("Attachments are not enabled")
	}
	settings := uc.settings.Get()
	limit := settings.MaxFileSizeBytes()

	data, err := io.ReadAll(io.LimitReader(upload.Reader, limit+1))
	if err != nil {
		return errors.BadRequest("Failed to read attachment", err)
	}
	if int64(len(data)) > limit {
		return errors.ValidationFailed(fmt.Sprintf("File too large. Maximum size is %dMB", settings.MaxFileSizeMB), nil)
	}
	if len(data) == 0 {
		return errors.ValidationFailed("Attachment is empty", nil)
	}

	detected := mimetype.Detect(data)
	if !settings.IsAllowedAttachmentType(detected.String()) {
		return errors.ValidationFailed(fmt.Sprintf("File type %s is not allowed", detected.String()), nil)
	}

	filename := upload.Filename
	if filename == "" {
		filename = "attachment" + detected.Extension()
	}

	key, err := uc.blobs.Put(ctx, bytes.NewReader(data), detected.String(), "chat_files/"+message.RoomID, filename)
	if err != nil {
		return err
	}

	message.Attachment = key
	message.AttachmentName = filename
	message.AttachmentType = detected.String()
	message.AttachmentSize = int64(len(data))
	if message.MessageType == entity.MessageTypeText {
		if strings.HasPrefix(detected.String(), "image/") {
			message.MessageType = entity.MessageTypeImage
		} else {
			message.MessageType = entity.MessageTypeFile
		}
	}
	return nil
}

func (uc *ChatUseCase) discardBlob(ctx context.Context, message *entity.Message) {
	if !message.HasAttachment() || uc.blobs == nil {
		return
	}
	if err := uc.blobs.Delete(ctx, message.Attachment); err != nil {
		logger.Warn("Failed to remove orphaned attachment %s: %v", message.Attachment, err)
	}
}

// ListByRoom pages forward through a room's history. cursor is the last seq
// the caller has seen.
func (uc *ChatUseCase) ListByRoom(ctx context.Context, userID, roomID string, cursor int64, limit int) (*MessagePage, error) {
	ctx, span := tracer.Start(ctx, "ChatUseCase.ListByRoom")
	defer span.End()

	if _, err := uc.membership.RequireMember(ctx, roomID, userID); err != nil {
		return nil, err
	}

	limit = utils.ClampMessageLimit(limit)
	messages, err := uc.messageRepo.ListByRoom(ctx, roomID, cursor, limit+1)
	if err != nil {
		return nil, err
	}

	page := &MessagePage{}
	if len(messages) > limit {
		messages = messages[:limit]
		next := messages[len(messages)-1].Seq
		page.NextCursor = &next
	}

	items, err := uc.withSenders(ctx, messages)
	if err != nil {
		return nil, err
	}
	page.Items = items
	return page, nil
}

func (uc *ChatUseCase) withSenders(ctx context.Context, messages []*entity.Message) ([]*MessageResponse, error) {
	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.SenderID)
	}
	users, err := uc.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]*MessageResponse, 0, len(messages))
	for _, m := range messages {
		items = append(items, &MessageResponse{Message: m, Sender: users[m.SenderID].Summary()})
	}
	return items, nil
}

// memberMessage loads a message the user may read.
func (uc *ChatUseCase) memberMessage(ctx context.Context, userID, messageID string) (*entity.Message, *entity.Room, error) {
	message, err := uc.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	room, err := uc.membership.RequireMember(ctx, message.RoomID, userID)
	if err != nil {
		return nil, nil, err
	}
	return message, room, nil
}

func (uc *ChatUseCase) GetMessage(ctx context.Context, userID, messageID string) (*MessageResponse, error) {
	message, _, err := uc.memberMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	items, err := uc.withSenders(ctx, []*entity.Message{message})
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

// canModerate is true for the sender, room admins and moderators, and
// privileged system roles.
func (uc *ChatUseCase) canModerate(ctx context.Context, actorID string, message *entity.Message) (bool, error) {
	if message.SenderID == actorID {
		return true, nil
	}

	participant, err := uc.membership.roomRepo.GetParticipant(ctx, message.RoomID, actorID)
	if err == nil && participant.IsActive && participant.Role.CanModerate() {
		return true, nil
	}
	if err != nil && !errors.Is(err, errors.CodeNotFound) {
		return false, err
	}

	actor, err := uc.userRepo.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return actor.Role.IsPrivileged(), nil
}

func (uc *ChatUseCase) EditMessage(ctx context.Context, userID, messageID, content string) (*MessageResponse, error) {
	message, err := uc.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != userID {
		return nil, errors.Forbidden("Only the sender can edit this message", nil)
	}
	if message.IsDeleted {
		return nil, errors.BadRequest("Deleted messages cannot be edited", nil)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.ValidationFailed("Message content is required", nil)
	}

	now := time.Now().UTC()
	message.Content = content
	message.IsEdited = true
	message.EditedAt = &now
	if err := uc.messageRepo.Update(ctx, message); err != nil {
		return nil, err
	}

	items, err := uc.withSenders(ctx, []*entity.Message{message})
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

// DeleteMessage soft-deletes a message and removes its attachment blob.
func (uc *ChatUseCase) DeleteMessage(ctx context.Context, actorID, messageID string) error {
	message, err := uc.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	allowed, err := uc.canModerate(ctx, actorID, message)
	if err != nil {
		return err
	}
	if !allowed {
		return errors.Forbidden("You cannot delete this message", nil)
	}
	if message.IsDeleted {
		return nil
	}

	key := message.Attachment
	message.Content = ""
	message.ClearAttachment()
	message.IsDeleted = true
	if err := uc.messageRepo.Update(ctx, message); err != nil {
		return err
	}

	if key != "" && uc.blobs != nil {
		if err := uc.blobs.Delete(ctx, key); err != nil {
			logger.Warn("Failed to delete attachment %s of message %s: %v", key, messageID, err)
		}
	}
	logger.Info("Message %s deleted by %s", messageID, actorID)
	return nil
}

func (uc *ChatUseCase) RemoveAttachment(ctx context.Context, actorID, messageID string) error {
	message, err := uc.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	allowed, err := uc.canModerate(ctx, actorID, message)
	if err != nil {
		return err
	}
	if !allowed {
		return errors.Forbidden("You cannot remove this attachment", nil)
	}
	if !message.HasAttachment() {
		return errors.NotFound("Attachment", nil)
	}

	key := message.Attachment
	message.ClearAttachment()
	if err := uc.messageRepo.Update(ctx, message); err != nil {
		return err
	}
	if uc.blobs != nil {
		if err := uc.blobs.Delete(ctx, key); err != nil {
			logger.Warn("Failed to delete attachment %s: %v", key, err)
		}
	}
	return nil
}

func (uc *ChatUseCase) AttachmentInfo(ctx context.Context, userID, messageID string) (*entity.AttachmentInfo, error) {
	message, _, err := uc.memberMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if !message.HasAttachment() {
		return nil, errors.NotFound("Attachment", nil)
	}

	info := &entity.AttachmentInfo{
		MessageID:   message.ID,
		Filename:    message.AttachmentName,
		ContentType: message.AttachmentType,
		Size:        message.AttachmentSize,
	}
	if uc.blobs != nil {
		info.URL = uc.blobs.URL(message.Attachment)
	}
	return info, nil
}

// OpenAttachment streams an attachment to a room member. The caller closes the reader.
func (uc *ChatUseCase) OpenAttachment(ctx context.Context, userID, messageID string) (io.ReadCloser, *entity.AttachmentInfo, error) {
	info, err := uc.AttachmentInfo(ctx, userID, messageID)
	if err != nil {
		return nil, nil, err
	}
	if uc.blobs == nil {
		return nil, nil, errors.Unavailable("Attachments are not enabled")
	}

	message, err := uc.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := uc.blobs.Open(ctx, message.Attachment)
	if err != nil {
		return nil, nil, err
	}
	return rc, info, nil
}
