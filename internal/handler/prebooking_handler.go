package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rdc-learning-api/internal/dto"
	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/internal/service"
	appErrors "github.com/noah-isme/rdc-learning-api/pkg/errors"
	"github.com/noah-isme/rdc-learning-api/pkg/response"
)

type prebookingService interface {
	Prebook(ctx context.Context, req service.PrebookRequest) (*models.Prebooking, error)
	List(ctx context.Context, courseID string) ([]models.PrebookingDetail, error)
	ExportCSV(ctx context.Context, courseID string) ([]byte, error)
}

// PrebookingHandler exposes prebooking endpoints.
type PrebookingHandler struct {
	prebookings prebookingService
}

// NewPrebookingHandler constructs PrebookingHandler.
func NewPrebookingHandler(prebookings prebookingService) *PrebookingHandler {
	return &PrebookingHandler{prebookings: prebookings}
}

// Prebook godoc
// @Summary Prebook a course
// @Tags Prebookings
// @Accept json
// @Produce json
// @Param payload body dto.PrebookRequest true "Prebooking payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /prebookings [post]
func (h *PrebookingHandler) Prebook(c *gin.Context) {
	var req dto.PrebookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid prebooking payload"))
		return
	}
	_, userID, err := actingUser(c, req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	prebooking, err := h.prebookings.Prebook(c.Request.Context(), service.PrebookRequest{UserID: userID, CourseID: req.CourseID, CycleID: req.CycleID})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, "Prebooking confirmed. We will contact you when the course opens.", prebooking)
}

// List godoc
// @Summary List course prebookings
// @Tags Prebookings
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/prebookings [get]
func (h *PrebookingHandler) List(c *gin.Context) {
	items, err := h.prebookings.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, &models.Pagination{Page: 1, PageSize: len(items), TotalCount: len(items)})
}

// Export godoc
// @Summary Export course prebookings as CSV
// @Tags Prebookings
// @Produce text/csv
// @Param id path string true "Course ID"
// @Success 200 {file} file
// @Router /courses/{id}/prebookings/export [get]
func (h *PrebookingHandler) Export(c *gin.Context) {
	courseID := c.Param("id")
	data, err := h.prebookings.ExportCSV(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"prebookings-%s.csv\"", courseID))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}
