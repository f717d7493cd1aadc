package dto

import "github.com/shopspring/decimal"

// ReferralSettingsResponse exposes the platform referral parameters.
type ReferralSettingsResponse struct {
	ReferredDiscountPercentage decimal.Decimal `json:"referred_discount_percentage" swaggertype:"string"`
	PointsPerReferral          int             `json:"points_per_referral"`
}
