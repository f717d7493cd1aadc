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

type settingsService interface {
	Referral(ctx context.Context) (models.ReferralSettings, error)
	UpdateReferral(ctx context.Context, req service.UpdateReferralSettingsRequest, actorID string) (models.ReferralSettings, error)
}

// ConfigurationHandler exposes platform settings endpoints.
type ConfigurationHandler struct {
	service settingsService
}

// NewConfigurationHandler builds a new handler.
func NewConfigurationHandler(service settingsService) *ConfigurationHandler {
	return &ConfigurationHandler{service: service}
}

// GetReferral godoc
// @Summary Get referral settings
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /settings/referral [get]
func (h *ConfigurationHandler) GetReferral(c *gin.Context) {
	settings, err := h.service.Referral(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, toReferralResponse(settings), nil)
}

// UpdateReferral godoc
// @Summary Update referral settings
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body service.UpdateReferralSettingsRequest true "Referral settings"
// @Success 200 {object} response.Envelope
// @Router /settings/referral [put]
func (h *ConfigurationHandler) UpdateReferral(c *gin.Context) {
	var req service.UpdateReferralSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid referral settings payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	settings, err := h.service.UpdateReferral(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, toReferralResponse(settings), nil)
}

func toReferralResponse(s models.ReferralSettings) dto.ReferralSettingsResponse {
	return dto.ReferralSettingsResponse{ReferredDiscountPercentage: s.ReferredDiscountPercentage, PointsPerReferral: s.PointsPerReferral}
}
