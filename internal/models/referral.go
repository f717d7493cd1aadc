package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/rdc-learning-api/pkg/money"
)

// ReferralStatusAwarded marks a referral whose points were credited.
const ReferralStatusAwarded = "Awarded"

// Referral records a referral award for a referred user's first enrollment.
type Referral struct {
	ID             string       `db:"id" json:"id"`
	ReferrerID     string       `db:"referrer_id" json:"referrer_id"`
	ReferredUserID string       `db:"referred_user_id" json:"referred_user_id"`
	CourseID       string       `db:"course_id" json:"course_id"`
	Points         int          `db:"points" json:"points"`
	DiscountGiven  money.Amount `db:"discount_given" json:"discount_given"`
	Status         string       `db:"status" json:"status"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

// ReferralSettings are the platform-wide referral parameters injected into each enrollment.
type ReferralSettings struct {
	ReferredDiscountPercentage decimal.Decimal `json:"referred_discount_percentage"`
	PointsPerReferral          int             `json:"points_per_referral"`
}
