package models

import "time"

// Prebooking registers a user's interest in a course before it opens.
type Prebooking struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	CycleID   string    `db:"cycle_id" json:"cycle_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PrebookingDetail enriches a prebooking with contact data for staff exports.
type PrebookingDetail struct {
	Prebooking
	FullName       string `db:"full_name" json:"full_name"`
	Mobile         string `db:"mobile" json:"mobile"`
	GuardianMobile string `db:"guardian_mobile" json:"guardian_mobile"`
}
