package dto

import "time"

// CreateInvoiceRequest asks for the invoice of a committed enrollment.
type CreateInvoiceRequest struct {
	EnrollmentID string `json:"enrollment_id" binding:"required"`
}

// InvoiceLinkResponse carries a signed, expiring PDF download URL.
type InvoiceLinkResponse struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
