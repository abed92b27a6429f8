package entity

import "time"

type MessageType string

const (
	MessageTypeText         MessageType = "text"
	MessageTypeImage        MessageType = "image"
	MessageTypeFile         MessageType = "file"
	MessageTypeSystem       MessageType = "system"
	MessageTypeNotification MessageType = "notification"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem, MessageTypeNotification:
		return true
	}
	return false
}

type Message struct {
	ID             string      `json:"id" firestore:"id" gorm:"primaryKey;size:36"`
	RoomID         string      `json:"room_id" firestore:"roomId" gorm:"size:36;not null;uniqueIndex:idx_messages_room_seq,priority:1"`
	SenderID       string      `json:"sender_id" firestore:"senderId" gorm:"size:64;not null;index"`
	Seq            int64       `json:"seq" firestore:"seq" gorm:"not null;uniqueIndex:idx_messages_room_seq,priority:2"`
	Content        string      `json:"content" firestore:"content" gorm:"type:text"`
	MessageType    MessageType `json:"message_type" firestore:"messageType" gorm:"size:15;not null"`
	Attachment     string      `json:"-" firestore:"attachment,omitempty" gorm:"size:512"`
	AttachmentName string      `json:"attachment_name,omitempty" firestore:"attachmentName,omitempty" gorm:"size:255"`
	AttachmentType string      `json:"attachment_type,omitempty" firestore:"attachmentType,omitempty" gorm:"size:127"`
	AttachmentSize int64       `json:"attachment_size,omitempty" firestore:"attachmentSize,omitempty"`
	IsEdited       bool        `json:"is_edited" firestore:"isEdited"`
	IsDeleted      bool        `json:"is_deleted" firestore:"isDeleted"`
	EditedAt       *time.Time  `json:"edited_at,omitempty" firestore:"editedAt"`
	ReplyToID      *string     `json:"reply_to_id,omitempty" firestore:"replyToId" gorm:"size:36;index"`
	ReplyTo        *Message    `json:"-" firestore:"-" gorm:"foreignKey:ReplyToID;references:ID;constraint:OnDelete:SET NULL"`
	CreatedAt      time.Time   `json:"created_at" firestore:"createdAt" gorm:"index"`
	UpdatedAt      time.Time   `json:"updated_at" firestore:"updatedAt"`
}

func (m *Message) HasAttachment() bool {
	return m.Attachment != ""
}

// ClearAttachment drops the attachment reference. The caller deletes the blob.
func (m *Message) ClearAttachment() {
	m.Attachment = ""
	m.AttachmentName = ""
	m.AttachmentType = ""
	m.AttachmentSize = 0
}
