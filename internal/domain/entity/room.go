package entity

import "time"

type RoomType string

const (
	RoomTypeClass                  RoomType = "class"
	RoomTypeStaff                  RoomType = "staff"
	RoomTypeAdmin                  RoomType = "admin"
	RoomTypeParentTeacher          RoomType = "parent_teacher"
	RoomTypeGeneral                RoomType = "general"
	RoomTypeGeneralStaff           RoomType = "general_staff"
	RoomTypeTeacherStudent         RoomType = "teacher_student"
	RoomTypeSystemSchoolAdmin      RoomType = "system_school_admin"
	RoomTypeSchoolAdminToAdmin     RoomType = "school_admin_to_admin"
	RoomTypeSchoolAdminToSecretary RoomType = "school_admin_to_secretary"
	RoomTypeSchoolAdminToTeacher   RoomType = "school_admin_to_teacher"
	RoomTypeSecretaryToTeacher     RoomType = "secretary_to_teacher"
)

var roomTypes = map[RoomType]bool{
	RoomTypeClass:                  true,
	RoomTypeStaff:                  true,
	RoomTypeAdmin:                  true,
	RoomTypeParentTeacher:          true,
	RoomTypeGeneral:                true,
	RoomTypeGeneralStaff:           true,
	RoomTypeTeacherStudent:         true,
	RoomTypeSystemSchoolAdmin:      true,
	RoomTypeSchoolAdminToAdmin:     true,
	RoomTypeSchoolAdminToSecretary: true,
	RoomTypeSchoolAdminToTeacher:   true,
	RoomTypeSecretaryToTeacher:     true,
}

func (t RoomType) Valid() bool {
	return roomTypes[t]
}

type Room struct {
	ID            string     `json:"id" firestore:"id" gorm:"primaryKey;size:36"`
	Name          string     `json:"name" firestore:"name" gorm:"size:200;not null;index"`
	Description   string     `json:"description,omitempty" firestore:"description,omitempty"`
	RoomType      RoomType   `json:"room_type" firestore:"roomType" gorm:"size:40;not null;index"`
	ClassID       string     `json:"class_id,omitempty" firestore:"classId,omitempty" gorm:"size:64;index"`
	SchoolID      string     `json:"school_id,omitempty" firestore:"schoolId,omitempty" gorm:"size:64;index"`
	IsActive      bool       `json:"is_active" firestore:"isActive"`
	IsPrivate     bool       `json:"is_private" firestore:"isPrivate"`
	CreatedBy     string     `json:"created_by,omitempty" firestore:"createdBy,omitempty" gorm:"size:64"`
	LastSeq       int64      `json:"-" firestore:"lastSeq"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty" firestore:"lastMessageAt"`
	CreatedAt     time.Time  `json:"created_at" firestore:"createdAt"`
	UpdatedAt     time.Time  `json:"updated_at" firestore:"updatedAt"`
}

// IsClassRoom reports whether membership is also derived from class assignments.
func (r *Room) IsClassRoom() bool {
	return r.RoomType == RoomTypeClass && r.ClassID != ""
}
