package service

import (
	"context"
)

// MessageNotice describes a stored message for notification fan-out.
type MessageNotice struct {
	MessageID    string   `json:"message_id"`
	RoomID       string   `json:"room_id"`
	RoomName     string   `json:"room_name"`
	SenderID     string   `json:"sender_id"`
	SenderName   string   `json:"sender_name"`
	Preview      string   `json:"preview"`
	RecipientIDs []string `json:"recipient_ids"`
}

type NotificationDispatcher interface {
	Dispatch(ctx context.Context, notice *MessageNotice) error
}
