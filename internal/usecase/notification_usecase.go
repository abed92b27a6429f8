package usecase

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"schoolchat/internal/domain/entity"
	"schoolchat/internal/domain/repository"
	"schoolchat/internal/domain/service"
	"schoolchat/pkg/errors"
	"schoolchat/pkg/logger"
)

const notifyConcurrency = 8

type NotificationUseCase struct {
	notificationRepo repository.NotificationRepository
}

func NewNotificationUseCase(notificationRepo repository.NotificationRepository) *NotificationUseCase {
	return &NotificationUseCase{
		notificationRepo: notificationRepo,
	}
}

// NotifyMessage writes one in-app notification per recipient of a message.
func (uc *NotificationUseCase) NotifyMessage(ctx context.Context, notice *service.MessageNotice) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(notifyConcurrency)

	for _, recipientID := range notice.RecipientIDs {
		recipientID := recipientID
		g.Go(func() error {
			return uc.notificationRepo.Create(ctx, &entity.Notification{
				RecipientID:      recipientID,
				SenderID:         notice.SenderID,
				Title:            fmt.Sprintf("New message in %s", notice.RoomName),
				Body:             fmt.Sprintf("%s: %s", notice.SenderName, notice.Preview),
				NotificationType: entity.NotificationInfo,
				RoomID:           notice.RoomID,
				MessageID:        notice.MessageID,
			})
		})
	}
	return g.Wait()
}

func (uc *NotificationUseCase) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*entity.Notification, int64, error) {
	return uc.notificationRepo.ListByRecipient(ctx, userID, unreadOnly, limit, offset)
}

func (uc *NotificationUseCase) MarkRead(ctx context.Context, userID, notificationID string) error {
	notification, err := uc.notificationRepo.GetByID(ctx, notificationID)
	if err != nil {
		return err
	}
	// Other users' notifications are reported as missing.
	if notification.RecipientID != userID {
		return errors.NotFound("Notification", nil)
	}
	if notification.IsRead {
		return nil
	}
	return uc.notificationRepo.MarkRead(ctx, notificationID)
}

func (uc *NotificationUseCase) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return uc.notificationRepo.MarkAllRead(ctx, userID)
}

// InlineDispatcher writes notifications from a background goroutine in this process.
type InlineDispatcher struct {
	notifications *NotificationUseCase
	timeout       time.Duration
}

var _ service.NotificationDispatcher = (*InlineDispatcher)(nil)

func NewInlineDispatcher(notifications *NotificationUseCase) *InlineDispatcher {
	return &InlineDispatcher{notifications: notifications, timeout: 30 * time.Second}
}

func (d *InlineDispatcher) Dispatch(_ context.Context, notice *service.MessageNotice) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.notifications.NotifyMessage(ctx, notice); err != nil {
			logger.Error("Failed to create notifications for message %s: %v", notice.MessageID, err)
		}
	}()
	return nil
}
