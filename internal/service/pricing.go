package service

import (
	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/pkg/money"
)

// BasePrice is the price an enrollment is charged before discounts: the cycle price for cycle
// enrollments, otherwise the course discount price when set, else the list price.
func BasePrice(course *models.Course, cycle *models.Cycle) money.Amount {
	if cycle != nil {
		return cycle.Price
	}
	if course.DiscountPrice != nil && course.DiscountPrice.IsPositive() {
		return *course.DiscountPrice
	}
	return course.Price
}

// ReferralDiscount applies the referred-user percentage to base, rounded half-up to the minor unit.
func ReferralDiscount(settings models.ReferralSettings, base money.Amount) money.Amount {
	if !settings.ReferredDiscountPercentage.IsPositive() || !base.IsPositive() {
		return money.Zero
	}
	discount := base.Percent(settings.ReferredDiscountPercentage)
	if discount > base {
		return base
	}
	return discount
}

// financialSnapshot is the frozen money state of a new enrollment.
type financialSnapshot struct {
	TotalFee         money.Amount
	PaidAmount       money.Amount
	Discount         money.Amount
	ReferralDiscount money.Amount
	DueAmount        money.Amount
	Status           models.PaymentStatus
	Method           string
	Reference        string
}

// buildSnapshot derives the enrollment's financial snapshot. Without payment details the base price
// is treated as fully paid, net of the referral discount.
func buildSnapshot(base, referralDiscount money.Amount, details *models.PaymentDetails) financialSnapshot {
	if details == nil {
		return financialSnapshot{
			TotalFee:         base,
			PaidAmount:       base.Sub(referralDiscount).NonNegative(),
			Discount:         referralDiscount,
			ReferralDiscount: referralDiscount,
			DueAmount:        money.Zero,
			Status:           models.PaymentStatusPaid,
		}
	}

	total := details.TotalFee
	if total == money.Zero {
		total = base
	}
	due := total.Sub(details.PaidAmount).Sub(details.Discount).Sub(referralDiscount).NonNegative()
	status := models.PaymentStatusPaid
	if due.IsPositive() {
		status = models.PaymentStatusPartial
	}
	return financialSnapshot{
		TotalFee:         total,
		PaidAmount:       details.PaidAmount,
		Discount:         details.Discount + referralDiscount,
		ReferralDiscount: referralDiscount,
		DueAmount:        due,
		Status:           status,
		Method:           details.Method,
		Reference:        details.Reference,
	}
}

// accessModules lists the modules an enrollment unlocks.
func accessModules(course *models.Course, cycle *models.Cycle) []string {
	var src []string
	if cycle != nil {
		src = cycle.ModuleIDs
	} else {
		src = course.ModuleIDs
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
