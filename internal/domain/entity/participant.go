package entity

import "time"

type ParticipantRole string

const (
	ParticipantAdmin     ParticipantRole = "admin"
	ParticipantModerator ParticipantRole = "moderator"
	ParticipantMember    ParticipantRole = "member"
	ParticipantReadOnly  ParticipantRole = "read_only"
)

func (r ParticipantRole) Valid() bool {
	switch r {
	case ParticipantAdmin, ParticipantModerator, ParticipantMember, ParticipantReadOnly:
		return true
	}
	return false
}

// CanModerate is true for roles allowed to delete other people's messages.
func (r ParticipantRole) CanModerate() bool {
	return r == ParticipantAdmin || r == ParticipantModerator
}

type Participant struct {
	RoomID   string          `json:"room_id" firestore:"roomId" gorm:"primaryKey;size:36"`
	UserID   string          `json:"user_id" firestore:"userId" gorm:"primaryKey;size:64;index"`
	Role     ParticipantRole `json:"role" firestore:"role" gorm:"size:15;not null"`
	IsActive bool            `json:"is_active" firestore:"isActive"`
	JoinedAt time.Time       `json:"joined_at" firestore:"joinedAt"`
}
