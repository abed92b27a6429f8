package entity

import "time"

type UserRole string

const (
	RoleSuperAdmin  UserRole = "super_admin"
	RoleSchoolAdmin UserRole = "school_admin"
	RolePrincipal   UserRole = "principal"
	RoleTeacher     UserRole = "teacher"
	RoleStudent     UserRole = "student"
	RoleParent      UserRole = "parent"
	RoleSecretary   UserRole = "secretary"
	RoleAccountant  UserRole = "accountant"
	RoleLibrarian   UserRole = "librarian"
	RoleNurse       UserRole = "nurse"
	RoleSecurity    UserRole = "security"
)

// IsPrivileged covers the roles that may moderate any room they can see.
func (r UserRole) IsPrivileged() bool {
	switch r {
	case RoleSuperAdmin, RoleSchoolAdmin, RolePrincipal:
		return true
	}
	return false
}

// IsStaff covers roles seeded into staff rooms.
func (r UserRole) IsStaff() bool {
	switch r {
	case RoleSchoolAdmin, RolePrincipal, RoleTeacher, RoleSecretary, RoleAccountant, RoleLibrarian, RoleNurse, RoleSecurity:
		return true
	}
	return false
}

// User is owned by the account service; chat only reads it.
type User struct {
	ID        string    `json:"id" firestore:"id" gorm:"primaryKey;size:64"`
	Username  string    `json:"username" firestore:"username" gorm:"size:150;uniqueIndex"`
	FullName  string    `json:"full_name,omitempty" firestore:"fullName,omitempty" gorm:"size:200"`
	Email     string    `json:"email,omitempty" firestore:"email,omitempty" gorm:"size:254"`
	Role      UserRole  `json:"role" firestore:"role" gorm:"size:20;not null;index"`
	SchoolID  string    `json:"school_id,omitempty" firestore:"schoolId,omitempty" gorm:"size:64;index"`
	IsActive  bool      `json:"is_active" firestore:"isActive"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}

// UserSummary is embedded in message and participant payloads.
type UserSummary struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	FullName string   `json:"full_name,omitempty"`
	Role     UserRole `json:"role"`
}

func (u *User) Summary() *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{ID: u.ID, Username: u.Username, FullName: u.FullName, Role: u.Role}
}
