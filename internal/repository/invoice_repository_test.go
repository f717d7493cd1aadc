package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/pkg/money"
)

func sampleInvoice() *models.Invoice {
	return &models.Invoice{
		InvoiceNumber:  "RDC-INV-202601-1234",
		TransactionID:  "TRX-ENR00001",
		EnrollmentID:   "enr00001-aaaa",
		UserID:         "user-1",
		CourseID:       "course-1",
		EnrollmentType: models.EnrollmentTypeFullCourse,
		TotalFee:       money.FromMajor(1000),
		Discount:       money.FromMajor(100),
		NetPayable:     money.FromMajor(900),
		PaidAmount:     money.FromMajor(900),
		PaymentStatus:  models.PaymentStatusPaid,
	}
}

func TestInvoiceRepositoryCreateMarksOutboxProcessed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO invoices").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE invoice_outbox SET processed_at = $2")).
		WithArgs("enr00001-aaaa", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	invoice := sampleInvoice()
	require.NoError(t, repo.Create(context.Background(), invoice))
	assert.NotEmpty(t, invoice.ID)
	assert.False(t, invoice.IssuedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryCreateDetectsNumberCollision(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO invoices").WillReturnError(&pq.Error{Code: "23505", Constraint: invoiceNumberConstraint})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), sampleInvoice())
	assert.ErrorIs(t, err, ErrInvoiceNumberTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryCreateDetectsExistingInvoice(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO invoices").WillReturnError(&pq.Error{Code: "23505", Constraint: invoiceEnrollmentConstraint})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), sampleInvoice())
	assert.ErrorIs(t, err, ErrInvoiceExists)
}

func TestInvoiceRepositoryFindByEnrollmentNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM invoices WHERE enrollment_id = $1")).WithArgs("enr-1").WillReturnError(sql.ErrNoRows)

	invoice, err := repo.FindByEnrollment(context.Background(), "enr-1")
	assert.Nil(t, invoice)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestInvoiceRepositoryOutbox(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE processed_at IS NULL ORDER BY attempts ASC, created_at ASC LIMIT $1")).WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"enrollment_id", "attempts", "last_error", "created_at", "processed_at"}).
			AddRow("enr-1", 0, nil, time.Now(), nil).
			AddRow("enr-2", 2, "pdf render failed", time.Now(), nil))
	mock.ExpectExec(regexp.QuoteMeta("SET attempts = attempts + 1")).WithArgs("enr-2", "storage offline").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE invoice_outbox SET processed_at = $2")).WithArgs("enr-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	pending, err := repo.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Nil(t, pending[0].LastError)
	require.NotNil(t, pending[1].LastError)
	assert.Equal(t, 2, pending[1].Attempts)

	require.NoError(t, repo.RecordFailure(context.Background(), "enr-2", "storage offline"))
	require.NoError(t, repo.MarkProcessed(context.Background(), "enr-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
