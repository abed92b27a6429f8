package entity

import "time"

type NotificationType string

const (
	NotificationInfo         NotificationType = "info"
	NotificationSuccess      NotificationType = "success"
	NotificationWarning      NotificationType = "warning"
	NotificationError        NotificationType = "error"
	NotificationReminder     NotificationType = "reminder"
	NotificationAnnouncement NotificationType = "announcement"
)

type Notification struct {
	ID               string           `json:"id" firestore:"id" gorm:"primaryKey;size:36"`
	RecipientID      string           `json:"recipient_id" firestore:"recipientId" gorm:"size:64;not null;index"`
	SenderID         string           `json:"sender_id,omitempty" firestore:"senderId,omitempty" gorm:"size:64"`
	Title            string           `json:"title" firestore:"title" gorm:"size:200;not null"`
	Body             string           `json:"body" firestore:"body" gorm:"type:text"`
	NotificationType NotificationType `json:"notification_type" firestore:"notificationType" gorm:"size:15;not null"`
	RoomID           string           `json:"room_id,omitempty" firestore:"roomId,omitempty" gorm:"size:36"`
	MessageID        string           `json:"message_id,omitempty" firestore:"messageId,omitempty" gorm:"size:36"`
	IsRead           bool             `json:"is_read" firestore:"isRead" gorm:"index"`
	CreatedAt        time.Time        `json:"created_at" firestore:"createdAt"`
	UpdatedAt        time.Time        `json:"updated_at" firestore:"updatedAt"`
}
