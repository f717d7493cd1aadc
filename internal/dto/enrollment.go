package dto

import "github.com/noah-isme/rdc-learning-api/internal/models"

// EnrollRequest is the payload for POST /enrollments. UserID defaults to the caller; only staff may
// enroll another user or record payment details.
type EnrollRequest struct {
	UserID         string                 `json:"user_id"`
	CourseID       string                 `json:"course_id" binding:"required"`
	CycleID        string                 `json:"cycle_id"`
	ReferralCode   string                 `json:"referral_code"`
	PaymentDetails *models.PaymentDetails `json:"payment_details"`
}

// PrebookRequest is the payload for POST /prebookings.
type PrebookRequest struct {
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id" binding:"required"`
	CycleID  string `json:"cycle_id"`
}
