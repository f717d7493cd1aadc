package models

import (
	"time"

	"github.com/noah-isme/rdc-learning-api/pkg/money"
)

// Invoice is a denormalised financial document generated from an enrollment.
type Invoice struct {
	ID             string         `db:"id" json:"id"`
	InvoiceNumber  string         `db:"invoice_number" json:"invoice_number"`
	TransactionID  string         `db:"transaction_id" json:"transaction_id"`
	EnrollmentID   string         `db:"enrollment_id" json:"enrollment_id"`
	UserID         string         `db:"user_id" json:"user_id"`
	CourseID       string         `db:"course_id" json:"course_id"`
	CustomerName   string         `db:"customer_name" json:"customer_name"`
	CustomerEmail  string         `db:"customer_email" json:"customer_email"`
	CustomerMobile string         `db:"customer_mobile" json:"customer_mobile"`
	CourseTitle    string         `db:"course_title" json:"course_title"`
	EnrollmentType EnrollmentType `db:"enrollment_type" json:"enrollment_type"`
	TotalFee       money.Amount   `db:"total_fee" json:"total_fee"`
	Discount       money.Amount   `db:"discount" json:"discount"`
	NetPayable     money.Amount   `db:"net_payable" json:"net_payable"`
	PaidAmount     money.Amount   `db:"paid_amount" json:"paid_amount"`
	DueAmount      money.Amount   `db:"due_amount" json:"due_amount"`
	PaymentStatus  PaymentStatus  `db:"payment_status" json:"payment_status"`
	PDFPath        string         `db:"pdf_path" json:"-"`
	IssuedAt       time.Time      `db:"issued_at" json:"issued_at"`
}

// PendingInvoice is an outbox row for an enrollment whose invoice has not been generated yet.
type PendingInvoice struct {
	EnrollmentID string     `db:"enrollment_id" json:"enrollment_id"`
	Attempts     int        `db:"attempts" json:"attempts"`
	LastError    *string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}
