package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/internal/repository"
	appErrors "github.com/noah-isme/rdc-learning-api/pkg/errors"
	"github.com/noah-isme/rdc-learning-api/pkg/export"
	"github.com/noah-isme/rdc-learning-api/pkg/storage"
)

const (
	invoiceNumberPrefix   = "RDC-INV-"
	transactionIDPrefix   = "TRX-"
	maxInvoiceNumberTries = 5
	invoiceContentType    = "application/pdf"
)

type invoiceStore interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	FindByID(ctx context.Context, id string) (*models.Invoice, error)
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Invoice, error)
	SetPDFPath(ctx context.Context, id, path string) error
	MarkProcessed(ctx context.Context, enrollmentID string) error
	RecordFailure(ctx context.Context, enrollmentID, reason string) error
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type invoiceCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type invoiceRenderer interface {
	RenderInvoice(doc export.InvoiceDocument) ([]byte, error)
}

// InvoiceLink is a signed, expiring download reference for an invoice PDF.
type InvoiceLink struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InvoiceService derives invoices from committed enrollments and serves their PDF documents.
type InvoiceService struct {
	invoices    invoiceStore
	enrollments enrollmentReader
	users       userReader
	courses     invoiceCourseReader
	renderer    invoiceRenderer
	store       storage.ObjectStore
	signer      *storage.SignedURLSigner
	metrics     *MetricsService
	logger      *zap.Logger

	now    func() time.Time
	randMu sync.Mutex
	rand   *rand.Rand
}

// NewInvoiceService constructs the service.
func NewInvoiceService(invoices invoiceStore, enrollments enrollmentReader, users userReader, courses invoiceCourseReader, renderer invoiceRenderer, store storage.ObjectStore, signer *storage.SignedURLSigner, metrics *MetricsService, logger *zap.Logger) *InvoiceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = export.NewPDFExporter()
	}
	return &InvoiceService{
		invoices:    invoices,
		enrollments: enrollments,
		users:       users,
		courses:     courses,
		renderer:    renderer,
		store:       store,
		signer:      signer,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Generate creates the invoice for an enrollment, or returns the existing one. Failures are recorded on
// the enrollment's outbox row so the reconciler retries them.
func (s *InvoiceService) Generate(ctx context.Context, enrollmentID string) (*models.Invoice, error) {
	invoice, created, err := s.generate(ctx, enrollmentID)
	if err != nil {
		s.metrics.RecordInvoice(InvoiceResultFailed)
		if recErr := s.invoices.RecordFailure(ctx, enrollmentID, err.Error()); recErr != nil {
			s.logger.Warn("failed to record invoice failure", zap.String("enrollment_id", enrollmentID), zap.Error(recErr))
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrEnrollmentNotFound.Code {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInvoiceFailed.Code, appErrors.ErrInvoiceFailed.Status, appErrors.ErrInvoiceFailed.Message)
	}

	if !created {
		s.metrics.RecordInvoice(InvoiceResultExisting)
		return invoice, nil
	}
	s.metrics.RecordInvoice(InvoiceResultCreated)
	s.logger.Info("invoice generated",
		zap.String("invoice_id", invoice.ID),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("enrollment_id", enrollmentID),
	)

	if _, err := s.storePDF(ctx, invoice); err != nil {
		s.logger.Warn("invoice pdf deferred", zap.String("invoice_id", invoice.ID), zap.Error(err))
	}
	return invoice, nil
}

func (s *InvoiceService) generate(ctx context.Context, enrollmentID string) (*models.Invoice, bool, error) {
	existing, err := s.invoices.FindByEnrollment(ctx, enrollmentID)
	if err == nil {
		if err := s.invoices.MarkProcessed(ctx, enrollmentID); err != nil {
			s.logger.Warn("failed to close invoice outbox row", zap.String("enrollment_id", enrollmentID), zap.Error(err))
		}
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("lookup invoice: %w", err)
	}

	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.ErrEnrollmentNotFound
		}
		return nil, false, fmt.Errorf("load enrollment: %w", err)
	}
	user, err := s.users.FindByID(ctx, enrollment.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("load invoice customer: %w", err)
	}
	course, err := s.courses.FindByID(ctx, enrollment.CourseID)
	if err != nil {
		return nil, false, fmt.Errorf("load invoice course: %w", err)
	}

	invoice := BuildInvoice(enrollment, user, course)
	for attempt := 1; attempt <= maxInvoiceNumberTries; attempt++ {
		invoice.ID = ""
		invoice.IssuedAt = s.now()
		invoice.InvoiceNumber = s.nextInvoiceNumber(invoice.IssuedAt)
		err = s.invoices.Create(ctx, invoice)
		switch {
		case err == nil:
			return invoice, true, nil
		case errors.Is(err, repository.ErrInvoiceNumberTaken):
			s.logger.Debug("invoice number collision", zap.String("invoice_number", invoice.InvoiceNumber), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, repository.ErrInvoiceExists):
			existing, findErr := s.invoices.FindByEnrollment(ctx, enrollmentID)
			if findErr != nil {
				return nil, false, fmt.Errorf("load concurrent invoice: %w", findErr)
			}
			return existing, false, nil
		default:
			return nil, false, fmt.Errorf("create invoice: %w", err)
		}
	}
	return nil, false, fmt.Errorf("invoice number unavailable after %d attempts", maxInvoiceNumberTries)
}

// BuildInvoice derives the invoice snapshot from an enrollment. The summary is recomputed from the
// enrollment so the invoice never drifts from the committed financials.
func BuildInvoice(enrollment *models.Enrollment, user *models.User, course *models.Course) *models.Invoice {
	return &models.Invoice{
		TransactionID:  TransactionID(enrollment.ID),
		EnrollmentID:   enrollment.ID,
		UserID:         enrollment.UserID,
		CourseID:       enrollment.CourseID,
		CustomerName:   user.FullName,
		CustomerEmail:  user.Email,
		CustomerMobile: user.Mobile,
		CourseTitle:    course.Title,
		EnrollmentType: enrollment.EnrollmentType,
		TotalFee:       enrollment.TotalFee,
		Discount:       enrollment.Discount,
		NetPayable:     enrollment.TotalFee.Sub(enrollment.Discount),
		PaidAmount:     enrollment.PaidAmount,
		DueAmount:      enrollment.DueAmount,
		PaymentStatus:  enrollment.PaymentStatus,
	}
}

// TransactionID derives the payment transaction reference from the first 8 characters of the enrollment id.
func TransactionID(enrollmentID string) string {
	short := enrollmentID
	if len(short) > 8 {
		short = short[:8]
	}
	return transactionIDPrefix + strings.ToUpper(short)
}

// nextInvoiceNumber returns RDC-INV-YYYYMM-NNNN with NNNN drawn from 1000-9999.
func (s *InvoiceService) nextInvoiceNumber(at time.Time) string {
	s.randMu.Lock()
	n := 1000 + s.rand.Intn(9000)
	s.randMu.Unlock()
	return fmt.Sprintf("%s%s-%04d", invoiceNumberPrefix, at.Format("200601"), n)
}

// Get returns an invoice by id.
func (s *InvoiceService) Get(ctx context.Context, id string) (*models.Invoice, error) {
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvoiceNotFound
		}
		return nil, databaseUnavailable(err)
	}
	return invoice, nil
}

// GetByEnrollment returns the invoice generated for an enrollment.
func (s *InvoiceService) GetByEnrollment(ctx context.Context, enrollmentID string) (*models.Invoice, error) {
	invoice, err := s.invoices.FindByEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvoiceNotFound
		}
		return nil, databaseUnavailable(err)
	}
	return invoice, nil
}

// Link issues a signed download token for the invoice PDF, rendering the document first if needed.
func (s *InvoiceService) Link(ctx context.Context, invoice *models.Invoice) (*InvoiceLink, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "invoice downloads are not configured")
	}
	path := invoice.PDFPath
	if path == "" {
		stored, err := s.storePDF(ctx, invoice)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to prepare invoice document")
		}
		path = stored
	}
	token, expiresAt, err := s.signer.Generate(invoice.ID, path)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign invoice link")
	}
	return &InvoiceLink{Token: token, ExpiresAt: expiresAt}, nil
}

// Download resolves a signed token to the PDF bytes and a suggested file name. A document missing from
// storage is rendered again from the invoice row.
func (s *InvoiceService) Download(ctx context.Context, token string) ([]byte, string, error) {
	if s.signer == nil {
		return nil, "", appErrors.ErrInvalidDownloadToken
	}
	invoiceID, path, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInvalidDownloadToken.Code, appErrors.ErrInvalidDownloadToken.Status, appErrors.ErrInvalidDownloadToken.Message)
	}
	invoice, err := s.Get(ctx, invoiceID)
	if err != nil {
		return nil, "", err
	}
	filename := invoice.InvoiceNumber + ".pdf"

	data, err := s.store.Read(ctx, path)
	if err == nil {
		return data, filename, nil
	}
	if !errors.Is(err, storage.ErrObjectNotFound) {
		return nil, "", appErrors.Internal(err, "failed to read invoice document")
	}
	data, err = s.renderer.RenderInvoice(invoiceDocument(invoice))
	if err != nil {
		return nil, "", appErrors.Internal(err, "failed to render invoice document")
	}
	if _, err := s.store.Save(ctx, path, data, invoiceContentType); err != nil {
		s.logger.Warn("failed to restore invoice pdf", zap.String("invoice_id", invoice.ID), zap.Error(err))
	}
	return data, filename, nil
}

func (s *InvoiceService) storePDF(ctx context.Context, invoice *models.Invoice) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("invoice storage not configured")
	}
	data, err := s.renderer.RenderInvoice(invoiceDocument(invoice))
	if err != nil {
		return "", fmt.Errorf("render invoice: %w", err)
	}
	name := invoiceObjectName(invoice)
	if _, err := s.store.Save(ctx, name, data, invoiceContentType); err != nil {
		return "", fmt.Errorf("store invoice: %w", err)
	}
	if err := s.invoices.SetPDFPath(ctx, invoice.ID, name); err != nil {
		return "", err
	}
	invoice.PDFPath = name
	return name, nil
}

func invoiceObjectName(invoice *models.Invoice) string {
	return fmt.Sprintf("invoices/%s/%s.pdf", invoice.IssuedAt.Format("2006/01"), invoice.InvoiceNumber)
}

func invoiceDocument(invoice *models.Invoice) export.InvoiceDocument {
	kind := "Full course"
	if invoice.EnrollmentType == models.EnrollmentTypeCycle {
		kind = "Cycle"
	}
	return export.InvoiceDocument{
		Title:     "RDC Invoice",
		Number:    invoice.InvoiceNumber,
		IssuedAt:  invoice.IssuedAt.Format("02 Jan 2006"),
		Reference: invoice.TransactionID,
		BilledTo:  []string{invoice.CustomerName, invoice.CustomerEmail, invoice.CustomerMobile},
		Items: export.Dataset{
			Headers: []string{"Course", "Enrollment", "Fee (BDT)"},
			Rows: []map[string]string{{
				"Course":     invoice.CourseTitle,
				"Enrollment": kind,
				"Fee (BDT)":  invoice.TotalFee.String(),
			}},
		},
		Summary: [][2]string{
			{"Total fee", invoice.TotalFee.String()},
			{"Discount", invoice.Discount.String()},
			{"Net payable", invoice.NetPayable.String()},
			{"Paid", invoice.PaidAmount.String()},
			{"Due", invoice.DueAmount.String()},
			{"Status", strings.ToUpper(string(invoice.PaymentStatus))},
		},
		FooterNote: "This is a computer generated invoice and does not require a signature.",
	}
}
