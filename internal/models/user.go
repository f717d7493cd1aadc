package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// UserRole represents the available roles on the platform.
type UserRole string

const (
	RoleStudent     UserRole = "STUDENT"
	RoleGuardian    UserRole = "GUARDIAN"
	RoleTeacher     UserRole = "TEACHER"
	RoleSeller      UserRole = "SELLER"
	RoleAffiliate   UserRole = "AFFILIATE"
	RoleModerator   UserRole = "MODERATOR"
	RoleAdmin       UserRole = "ADMIN"
	RoleDoubtSolver UserRole = "DOUBT_SOLVER"
)

// IsStaff reports whether the role may act on behalf of other users and record offline payments.
func (r UserRole) IsStaff() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleSeller:
		return true
	}
	return false
}

// User represents an account stored in the users table.
type User struct {
	ID              string         `db:"id" json:"id"`
	FullName        string         `db:"full_name" json:"full_name"`
	Email           string         `db:"email" json:"email"`
	Role            UserRole       `db:"role" json:"role"`
	ClassRoll       *string        `db:"class_roll" json:"class_roll,omitempty"`
	Mobile          string         `db:"mobile" json:"mobile"`
	GuardianMobile  string         `db:"guardian_mobile" json:"guardian_mobile"`
	ReferralPoints  int            `db:"referral_points" json:"referral_points"`
	HasUsedReferral bool           `db:"has_used_referral" json:"has_used_referral"`
	EnrolledCourses pq.StringArray `db:"enrolled_courses" json:"enrolled_courses"`
	Status          string         `db:"status" json:"status"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// HasContactNumbers reports whether both the personal and the guardian mobile are on file.
func (u *User) HasContactNumbers() bool {
	return strings.TrimSpace(u.Mobile) != "" && strings.TrimSpace(u.GuardianMobile) != ""
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
