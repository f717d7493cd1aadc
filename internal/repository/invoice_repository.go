package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/pkg/database"
)

var (
	// ErrInvoiceNumberTaken is returned when the generated invoice number collides.
	ErrInvoiceNumberTaken = errors.New("invoice number already used")
	// ErrInvoiceExists is returned when the enrollment already has an invoice.
	ErrInvoiceExists = errors.New("invoice already exists for enrollment")
)

const (
	invoiceNumberConstraint     = "invoices_invoice_number_key"
	invoiceEnrollmentConstraint = "invoices_enrollment_id_key"
)

const invoiceColumns = `id, invoice_number, transaction_id, enrollment_id, user_id, course_id, customer_name, customer_email,
customer_mobile, course_title, enrollment_type, total_fee, discount, net_payable, paid_amount, due_amount, payment_status,
pdf_path, issued_at`

// InvoiceRepository persists invoices and the pending-invoice outbox.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository constructs the repository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Create inserts the invoice and marks the enrollment's outbox row processed.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) (err error) {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	if invoice.IssuedAt.IsZero() {
		invoice.IssuedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin invoice transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO invoices (` + invoiceColumns + `)
VALUES (:id, :invoice_number, :transaction_id, :enrollment_id, :user_id, :course_id, :customer_name, :customer_email,
:customer_mobile, :course_title, :enrollment_type, :total_fee, :discount, :net_payable, :paid_amount, :due_amount, :payment_status,
:pdf_path, :issued_at)`
	if _, err = tx.NamedExecContext(ctx, query, invoice); err != nil {
		switch {
		case database.IsUniqueViolation(err, invoiceNumberConstraint):
			return ErrInvoiceNumberTaken
		case database.IsUniqueViolation(err, invoiceEnrollmentConstraint):
			return ErrInvoiceExists
		}
		return fmt.Errorf("insert invoice: %w", err)
	}

	const outboxQuery = `UPDATE invoice_outbox SET processed_at = $2, last_error = NULL WHERE enrollment_id = $1`
	if _, err = tx.ExecContext(ctx, outboxQuery, invoice.EnrollmentID, invoice.IssuedAt); err != nil {
		return fmt.Errorf("mark invoice processed: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit invoice: %w", err)
	}
	return nil
}

// FindByID returns an invoice by identifier.
func (r *InvoiceRepository) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, id); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindByEnrollment returns the invoice generated for an enrollment.
func (r *InvoiceRepository) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE enrollment_id = $1`
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, enrollmentID); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// SetPDFPath records where the rendered document was stored.
func (r *InvoiceRepository) SetPDFPath(ctx context.Context, id, path string) error {
	const query = `UPDATE invoices SET pdf_path = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, path); err != nil {
		return fmt.Errorf("set invoice pdf path: %w", err)
	}
	return nil
}

// ListPending returns unprocessed outbox rows, least-attempted first and oldest first within the
// same attempt count, so rows that keep failing cannot crowd newer ones out of the batch.
func (r *InvoiceRepository) ListPending(ctx context.Context, limit int) ([]models.PendingInvoice, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT enrollment_id, attempts, last_error, created_at, processed_at FROM invoice_outbox
WHERE processed_at IS NULL ORDER BY attempts ASC, created_at ASC LIMIT $1`
	var pending []models.PendingInvoice
	if err := r.db.SelectContext(ctx, &pending, query, limit); err != nil {
		return nil, fmt.Errorf("list pending invoices: %w", err)
	}
	return pending, nil
}

// MarkProcessed closes the outbox row for an enrollment whose invoice already exists.
func (r *InvoiceRepository) MarkProcessed(ctx context.Context, enrollmentID string) error {
	const query = `UPDATE invoice_outbox SET processed_at = $2, last_error = NULL WHERE enrollment_id = $1 AND processed_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, enrollmentID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark invoice processed: %w", err)
	}
	return nil
}

// RecordFailure increments the attempt counter and keeps the last error message.
func (r *InvoiceRepository) RecordFailure(ctx context.Context, enrollmentID, reason string) error {
	const query = `UPDATE invoice_outbox SET attempts = attempts + 1, last_error = $2 WHERE enrollment_id = $1`
	if _, err := r.db.ExecContext(ctx, query, enrollmentID, reason); err != nil {
		return fmt.Errorf("record invoice failure: %w", err)
	}
	return nil
}
