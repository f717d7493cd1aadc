package models

import (
	"time"

	"github.com/lib/pq"

	"github.com/noah-isme/rdc-learning-api/pkg/money"
)

// EnrollmentType distinguishes full-course from cycle enrollments.
type EnrollmentType string

const (
	EnrollmentTypeFullCourse EnrollmentType = "full_course"
	EnrollmentTypeCycle      EnrollmentType = "cycle"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
)

// PaymentStatus summarises the financial snapshot.
type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusPartial PaymentStatus = "partial"
)

// Enrollment joins a user and a course and freezes the financial snapshot and module access
// computed at creation.
type Enrollment struct {
	ID               string           `db:"id" json:"id"`
	UserID           string           `db:"user_id" json:"user_id"`
	CourseID         string           `db:"course_id" json:"course_id"`
	CycleID          string           `db:"cycle_id" json:"cycle_id,omitempty"`
	EnrollmentType   EnrollmentType   `db:"enrollment_type" json:"enrollment_type"`
	Status           EnrollmentStatus `db:"status" json:"status"`
	Progress         int              `db:"progress" json:"progress"`
	TotalFee         money.Amount     `db:"total_fee" json:"total_fee"`
	PaidAmount       money.Amount     `db:"paid_amount" json:"paid_amount"`
	Discount         money.Amount     `db:"discount" json:"discount"`
	ReferralDiscount money.Amount     `db:"referral_discount" json:"referral_discount"`
	DueAmount        money.Amount     `db:"due_amount" json:"due_amount"`
	PaymentStatus    PaymentStatus    `db:"payment_status" json:"payment_status"`
	PaymentMethod    string           `db:"payment_method" json:"payment_method,omitempty"`
	PaymentReference string           `db:"payment_reference" json:"payment_reference,omitempty"`
	AccessModuleIDs  pq.StringArray   `db:"access_module_ids" json:"access_module_ids"`
	UsedReferralCode string           `db:"used_referral_code" json:"used_referral_code,omitempty"`
	BundleParentID   string           `db:"bundle_parent_id" json:"bundle_parent_id,omitempty"`
	EnrolledAt       time.Time        `db:"enrolled_at" json:"enrolled_at"`
}

// PaymentDetails records an offline/manual payment taken by staff.
type PaymentDetails struct {
	TotalFee   money.Amount `json:"total_fee" validate:"gte=0"`
	PaidAmount money.Amount `json:"paid_amount" validate:"gte=0"`
	Discount   money.Amount `json:"discount" validate:"gte=0"`
	Method     string       `json:"method" validate:"max=40"`
	Reference  string       `json:"reference" validate:"max=120"`
}
