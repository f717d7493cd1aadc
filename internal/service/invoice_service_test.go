package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/internal/repository"
	appErrors "github.com/noah-isme/rdc-learning-api/pkg/errors"
	"github.com/noah-isme/rdc-learning-api/pkg/export"
	"github.com/noah-isme/rdc-learning-api/pkg/money"
	"github.com/noah-isme/rdc-learning-api/pkg/storage"
)

type mockInvoiceStore struct {
	mu        sync.Mutex
	invoices  map[string]*models.Invoice
	createErr []error
	creates   int
	processed []string
	failures  map[string]string
}

func newMockInvoiceStore() *mockInvoiceStore {
	return &mockInvoiceStore{invoices: map[string]*models.Invoice{}, failures: map[string]string{}}
}

func (m *mockInvoiceStore) Create(ctx context.Context, invoice *models.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if len(m.createErr) > 0 {
		err := m.createErr[0]
		m.createErr = m.createErr[1:]
		if err != nil {
			return err
		}
	}
	invoice.ID = "inv-" + invoice.EnrollmentID
	clone := *invoice
	m.invoices[invoice.ID] = &clone
	return nil
}

func (m *mockInvoiceStore) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *inv
	return &clone, nil
}

func (m *mockInvoiceStore) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invoices {
		if inv.EnrollmentID == enrollmentID {
			clone := *inv
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockInvoiceStore) SetPDFPath(ctx context.Context, id, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv, ok := m.invoices[id]; ok {
		inv.PDFPath = path
	}
	return nil
}

func (m *mockInvoiceStore) MarkProcessed(ctx context.Context, enrollmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed = append(m.processed, enrollmentID)
	return nil
}

func (m *mockInvoiceStore) RecordFailure(ctx context.Context, enrollmentID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[enrollmentID] = reason
	return nil
}

type mockEnrollmentReader map[string]*models.Enrollment

func (m mockEnrollmentReader) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	e, ok := m[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return e, nil
}

type invoiceFixture struct {
	svc   *InvoiceService
	store *mockInvoiceStore
	files *storage.LocalStorage
}

func newInvoiceFixture(t *testing.T) *invoiceFixture {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	enrollments := mockEnrollmentReader{
		"3f2a9c1d-aaaa-bbbb-cccc-000000000001": {
			ID:             "3f2a9c1d-aaaa-bbbb-cccc-000000000001",
			UserID:         "user-1",
			CourseID:       "course-1",
			EnrollmentType: models.EnrollmentTypeFullCourse,
			TotalFee:       money.FromMajor(1000),
			PaidAmount:     money.FromMajor(900),
			Discount:       money.FromMajor(100),
			PaymentStatus:  models.PaymentStatusPaid,
		},
	}
	users := newMockUsers(&models.User{ID: "user-1", FullName: "Rahim", Email: "rahim@example.com", Mobile: "01700000000"})
	courses := newMockCourses(&models.Course{ID: "course-1", Title: "HSC Physics"})
	store := newMockInvoiceStore()
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)

	svc := NewInvoiceService(store, enrollments, users, courses, export.NewPDFExporter(), files, signer, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return &invoiceFixture{svc: svc, store: store, files: files}
}

const sampleEnrollmentID = "3f2a9c1d-aaaa-bbbb-cccc-000000000001"

func TestGenerateInvoice(t *testing.T) {
	f := newInvoiceFixture(t)

	invoice, err := f.svc.Generate(context.Background(), sampleEnrollmentID)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^RDC-INV-202603-\d{4}$`), invoice.InvoiceNumber)
	assert.Equal(t, "TRX-3F2A9C1D", invoice.TransactionID)
	assert.Equal(t, money.FromMajor(900), invoice.NetPayable)
	assert.Equal(t, "Rahim", invoice.CustomerName)
	assert.Equal(t, "HSC Physics", invoice.CourseTitle)
	assert.Equal(t, "invoices/2026/03/"+invoice.InvoiceNumber+".pdf", invoice.PDFPath)

	data, err := f.files.Read(context.Background(), invoice.PDFPath)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestGenerateInvoiceReturnsExisting(t *testing.T) {
	f := newInvoiceFixture(t)
	first, err := f.svc.Generate(context.Background(), sampleEnrollmentID)
	require.NoError(t, err)

	second, err := f.svc.Generate(context.Background(), sampleEnrollmentID)
	require.NoError(t, err)
	assert.Equal(t, first.InvoiceNumber, second.InvoiceNumber)
	assert.Equal(t, 1, f.store.creates)
	assert.Equal(t, []string{sampleEnrollmentID}, f.store.processed)
}

func TestGenerateInvoiceRetriesNumberCollision(t *testing.T) {
	f := newInvoiceFixture(t)
	f.store.createErr = []error{repository.ErrInvoiceNumberTaken, repository.ErrInvoiceNumberTaken}

	invoice, err := f.svc.Generate(context.Background(), sampleEnrollmentID)
	require.NoError(t, err)
	assert.NotEmpty(t, invoice.ID)
	assert.Equal(t, 3, f.store.creates)
}

func TestGenerateInvoiceGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newInvoiceFixture(t)
	for i := 0; i < maxInvoiceNumberTries; i++ {
		f.store.createErr = append(f.store.createErr, repository.ErrInvoiceNumberTaken)
	}

	_, err := f.svc.Generate(context.Background(), sampleEnrollmentID)
	assert.ErrorIs(t, err, appErrors.ErrInvoiceFailed)
	assert.Equal(t, maxInvoiceNumberTries, f.store.creates)
	assert.Contains(t, f.store.failures, sampleEnrollmentID)
}

func TestGenerateInvoiceConcurrentCreateReturnsWinner(t *testing.T) {
	f := newInvoiceFixture(t)
	winner := &models.Invoice{ID: "inv-winner", EnrollmentID: sampleEnrollmentID, InvoiceNumber: "RDC-INV-202603-4242"}
	f.store.createErr = []error{repository.ErrInvoiceExists}
	f.svc.invoices = &racingStore{mockInvoiceStore: f.store, winner: winner}

	invoice, err := f.svc.Generate(context.Background(), sampleEnrollmentID)
	require.NoError(t, err)
	assert.Equal(t, "RDC-INV-202603-4242", invoice.InvoiceNumber)
	assert.Empty(t, f.store.failures)
}

// racingStore simulates a competing writer whose invoice lands between lookup and insert.
type racingStore struct {
	*mockInvoiceStore
	winner *models.Invoice
}

func (r *racingStore) Create(ctx context.Context, invoice *models.Invoice) error {
	err := r.mockInvoiceStore.Create(ctx, invoice)
	if errors.Is(err, repository.ErrInvoiceExists) {
		r.mu.Lock()
		r.invoices[r.winner.ID] = r.winner
		r.mu.Unlock()
	}
	return err
}

func TestGenerateInvoiceUnknownEnrollment(t *testing.T) {
	f := newInvoiceFixture(t)

	_, err := f.svc.Generate(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrEnrollmentNotFound)
	assert.Contains(t, f.store.failures, "missing")
}

func TestInvoiceLinkAndDownload(t *testing.T) {
	f := newInvoiceFixture(t)
	invoice, err := f.svc.Generate(context.Background(), sampleEnrollmentID)
	require.NoError(t, err)

	link, err := f.svc.Link(context.Background(), invoice)
	require.NoError(t, err)
	assert.True(t, link.ExpiresAt.After(time.Now()))

	data, filename, err := f.svc.Download(context.Background(), link.Token)
	require.NoError(t, err)
	assert.Equal(t, invoice.InvoiceNumber+".pdf", filename)
	assert.NotEmpty(t, data)

	// a document lost from storage is rendered again
	require.NoError(t, f.files.Delete(context.Background(), invoice.PDFPath))
	data, _, err = f.svc.Download(context.Background(), link.Token)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestInvoiceDownloadRejectsTamperedToken(t *testing.T) {
	f := newInvoiceFixture(t)
	invoice, err := f.svc.Generate(context.Background(), sampleEnrollmentID)
	require.NoError(t, err)
	link, err := f.svc.Link(context.Background(), invoice)
	require.NoError(t, err)

	_, _, err = f.svc.Download(context.Background(), link.Token+"00")
	assert.ErrorIs(t, err, appErrors.ErrInvalidDownloadToken)
}

func TestTransactionID(t *testing.T) {
	assert.Equal(t, "TRX-ABCDEF12", TransactionID("abcdef12-3456"))
	assert.Equal(t, "TRX-AB", TransactionID("ab"))
}
