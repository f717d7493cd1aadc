package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rdc-learning-api/internal/dto"
	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/internal/service"
	appErrors "github.com/noah-isme/rdc-learning-api/pkg/errors"
	"github.com/noah-isme/rdc-learning-api/pkg/response"
)

const (
	msgEnrolled               = "Enrollment successful."
	msgEnrolledInvoicePending = "Enrollment successful. Your invoice is being prepared."
)

type enrollmentService interface {
	Enroll(ctx context.Context, req service.EnrollRequest, settings models.ReferralSettings) (*service.EnrollResult, error)
	Get(ctx context.Context, id string) (*models.Enrollment, error)
	ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error)
}

type referralSettingsProvider interface {
	Referral(ctx context.Context) (models.ReferralSettings, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
	settings    referralSettingsProvider
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService, settings referralSettingsProvider) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, settings: settings}
}

// Enroll godoc
// @Summary Enroll in a course
// @Description Students enroll themselves. Staff may enroll another user and record an offline payment.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}
	claims, userID, err := actingUser(c, req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if req.PaymentDetails != nil && !claims.Role.IsStaff() {
		response.Error(c, appErrors.ErrPaymentDetailsNotAllow)
		return
	}

	settings, err := h.settings.Referral(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.enrollments.Enroll(c.Request.Context(), service.EnrollRequest{
		UserID:         userID,
		CourseID:       req.CourseID,
		CycleID:        req.CycleID,
		ReferralCode:   req.ReferralCode,
		PaymentDetails: req.PaymentDetails,
	}, settings)
	if err != nil {
		response.Error(c, err)
		return
	}

	message := msgEnrolled
	if result.InvoiceError != "" {
		message = msgEnrolledInvoicePending
	}
	response.Message(c, http.StatusCreated, message, result)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	enrollment, err := h.enrollments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !canView(claimsFromContext(c), enrollment.UserID) {
		response.Error(c, appErrors.ErrEnrollmentNotFound)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// ListByUser godoc
// @Summary List a user's enrollments
// @Tags Enrollments
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/enrollments [get]
func (h *EnrollmentHandler) ListByUser(c *gin.Context) {
	userID := c.Param("id")
	if !canView(claimsFromContext(c), userID) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	items, err := h.enrollments.ListByUser(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, &models.Pagination{Page: 1, PageSize: len(items), TotalCount: len(items)})
}
