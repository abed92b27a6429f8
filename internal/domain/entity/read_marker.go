package entity

import "time"

// ReadMarker records delivery to one recipient. ReadAt is nil until read.
type ReadMarker struct {
	MessageID string     `json:"message_id" firestore:"messageId" gorm:"primaryKey;size:36"`
	UserID    string     `json:"user_id" firestore:"userId" gorm:"primaryKey;size:64;index:idx_read_markers_user_room,priority:1"`
	RoomID    string     `json:"room_id" firestore:"roomId" gorm:"size:36;not null;index:idx_read_markers_user_room,priority:2"`
	ReadAt    *time.Time `json:"read_at" firestore:"readAt"`
	CreatedAt time.Time  `json:"created_at" firestore:"createdAt"`
}

func (m *ReadMarker) IsRead() bool {
	return m.ReadAt != nil
}
