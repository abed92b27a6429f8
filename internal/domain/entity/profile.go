package entity

type ProfileKind string

const (
	ProfileTeacher ProfileKind = "teacher"
	ProfileStudent ProfileKind = "student"
)

// Profile links a user to the classes they teach or attend.
type Profile struct {
	UserID   string      `json:"user_id" firestore:"userId"`
	Kind     ProfileKind `json:"kind" firestore:"kind"`
	ClassIDs []string    `json:"class_ids" firestore:"classIds"`
}

func (p *Profile) InClass(classID string) bool {
	for _, id := range p.ClassIDs {
		if id == classID {
			return true
		}
	}
	return false
}

// ProfileRecord and ClassAssignment are the relational shape of Profile.
type ProfileRecord struct {
	UserID string      `gorm:"primaryKey;size:64"`
	Kind   ProfileKind `gorm:"size:15;not null"`
}

func (ProfileRecord) TableName() string { return "profiles" }

type ClassAssignment struct {
	UserID  string `gorm:"primaryKey;size:64"`
	ClassID string `gorm:"primaryKey;size:64;index"`
}
