package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rdc-learning-api/internal/dto"
	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/internal/service"
	appErrors "github.com/noah-isme/rdc-learning-api/pkg/errors"
	"github.com/noah-isme/rdc-learning-api/pkg/response"
)

type invoiceService interface {
	Generate(ctx context.Context, enrollmentID string) (*models.Invoice, error)
	Get(ctx context.Context, id string) (*models.Invoice, error)
	GetByEnrollment(ctx context.Context, enrollmentID string) (*models.Invoice, error)
	Link(ctx context.Context, invoice *models.Invoice) (*service.InvoiceLink, error)
	Download(ctx context.Context, token string) ([]byte, string, error)
}

type enrollmentLookup interface {
	Get(ctx context.Context, id string) (*models.Enrollment, error)
}

// InvoiceHandler exposes invoice endpoints.
type InvoiceHandler struct {
	invoices     invoiceService
	enrollments  enrollmentLookup
	downloadPath string
}

// NewInvoiceHandler constructs InvoiceHandler. downloadPath is the public URL path of the Download route.
func NewInvoiceHandler(invoices invoiceService, enrollments enrollmentLookup, downloadPath string) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, enrollments: enrollments, downloadPath: downloadPath}
}

// Create godoc
// @Summary Generate the invoice for an enrollment
// @Description Returns the existing invoice when one was already generated.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param payload body dto.CreateInvoiceRequest true "Invoice payload"
// @Success 201 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /invoices [post]
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid invoice payload"))
		return
	}
	enrollment, err := h.enrollments.Get(c.Request.Context(), req.EnrollmentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !canView(claimsFromContext(c), enrollment.UserID) {
		response.Error(c, appErrors.ErrEnrollmentNotFound)
		return
	}
	invoice, err := h.invoices.Generate(c.Request.Context(), enrollment.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, invoice)
}

// Get godoc
// @Summary Get invoice
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Router /invoices/{id} [get]
func (h *InvoiceHandler) Get(c *gin.Context) {
	invoice, ok := h.load(c, func(ctx context.Context) (*models.Invoice, error) {
		return h.invoices.Get(ctx, c.Param("id"))
	})
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// GetByEnrollment godoc
// @Summary Get the invoice of an enrollment
// @Tags Invoices
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/invoice [get]
func (h *InvoiceHandler) GetByEnrollment(c *gin.Context) {
	invoice, ok := h.load(c, func(ctx context.Context) (*models.Invoice, error) {
		return h.invoices.GetByEnrollment(ctx, c.Param("id"))
	})
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// Link godoc
// @Summary Get a signed PDF download link
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Router /invoices/{id}/link [get]
func (h *InvoiceHandler) Link(c *gin.Context) {
	invoice, ok := h.load(c, func(ctx context.Context) (*models.Invoice, error) {
		return h.invoices.Get(ctx, c.Param("id"))
	})
	if !ok {
		return
	}
	link, err := h.invoices.Link(c.Request.Context(), invoice)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.InvoiceLinkResponse{
		URL:       h.downloadPath + "?token=" + url.QueryEscape(link.Token),
		Token:     link.Token,
		ExpiresAt: link.ExpiresAt,
	}, nil)
}

// Download godoc
// @Summary Download an invoice PDF
// @Tags Invoices
// @Produce application/pdf
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /invoices/download [get]
func (h *InvoiceHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.ErrInvalidDownloadToken)
		return
	}
	data, filename, err := h.invoices.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}

// load fetches an invoice and hides it from callers who neither own it nor are staff.
func (h *InvoiceHandler) load(c *gin.Context, fetch func(ctx context.Context) (*models.Invoice, error)) (*models.Invoice, bool) {
	invoice, err := fetch(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if !canView(claimsFromContext(c), invoice.UserID) {
		response.Error(c, appErrors.ErrInvoiceNotFound)
		return nil, false
	}
	return invoice, true
}
