package service

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/pkg/cache"
	appErrors "github.com/noah-isme/rdc-learning-api/pkg/errors"
)

const referralSettingsCacheKey = cache.PrefixSettings + "referral"

type configurationStore interface {
	ListByKeys(ctx context.Context, keys []string) ([]models.Configuration, error)
	BulkUpsert(ctx context.Context, cfgs []models.Configuration) error
}

// UpdateReferralSettingsRequest changes the platform referral parameters.
type UpdateReferralSettingsRequest struct {
	ReferredDiscountPercentage string `json:"referred_discount_percentage" validate:"required,numeric"`
	PointsPerReferral          int    `json:"points_per_referral" validate:"gte=0,lte=100000"`
}

// SettingsService resolves referral settings from the configurations table with a Redis read-through cache.
type SettingsService struct {
	repo      configurationStore
	cache     *CacheService
	defaults  models.ReferralSettings
	ttl       time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSettingsService constructs the service. defaults apply to keys that were never persisted.
func NewSettingsService(repo configurationStore, cacheSvc *CacheService, defaults models.ReferralSettings, ttl time.Duration, validate *validator.Validate, logger *zap.Logger) *SettingsService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SettingsService{repo: repo, cache: cacheSvc, defaults: defaults, ttl: ttl, validator: validate, logger: logger}
}

// DefaultReferralSettings parses environment supplied defaults, falling back to 10% and 10 points.
func DefaultReferralSettings(percentage string, points int) models.ReferralSettings {
	pct, err := decimal.NewFromString(percentage)
	if err != nil || pct.IsNegative() {
		pct = decimal.NewFromInt(10)
	}
	if points < 0 {
		points = 10
	}
	return models.ReferralSettings{ReferredDiscountPercentage: pct, PointsPerReferral: points}
}

// Referral returns the current referral settings.
func (s *SettingsService) Referral(ctx context.Context) (models.ReferralSettings, error) {
	var cached models.ReferralSettings
	if s.cache.Get(ctx, referralSettingsCacheKey, &cached) {
		return cached, nil
	}

	rows, err := s.repo.ListByKeys(ctx, []string{models.ConfigReferralDiscountPercentage, models.ConfigReferralPointsPerReferral})
	if err != nil {
		return models.ReferralSettings{}, appErrors.Wrap(err, appErrors.ErrDatabaseUnavailable.Code, appErrors.ErrDatabaseUnavailable.Status, appErrors.ErrDatabaseUnavailable.Message)
	}

	settings := s.defaults
	for _, row := range rows {
		switch row.Key {
		case models.ConfigReferralDiscountPercentage:
			pct, err := decimal.NewFromString(row.Value)
			if err != nil {
				s.logger.Warn("ignoring malformed referral percentage", zap.String("value", row.Value), zap.Error(err))
				continue
			}
			settings.ReferredDiscountPercentage = pct
		case models.ConfigReferralPointsPerReferral:
			points, err := strconv.Atoi(row.Value)
			if err != nil {
				s.logger.Warn("ignoring malformed referral points", zap.String("value", row.Value), zap.Error(err))
				continue
			}
			settings.PointsPerReferral = points
		}
	}

	s.cache.Set(ctx, referralSettingsCacheKey, settings, s.ttl)
	return settings, nil
}

// UpdateReferral persists new referral settings and drops the cached copy.
func (s *SettingsService) UpdateReferral(ctx context.Context, req UpdateReferralSettingsRequest, actorID string) (models.ReferralSettings, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.ReferralSettings{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid referral settings")
	}
	pct, err := decimal.NewFromString(req.ReferredDiscountPercentage)
	if err != nil || pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return models.ReferralSettings{}, appErrors.Clone(appErrors.ErrValidation, "referred_discount_percentage must be between 0 and 100")
	}

	actor := actorID
	rows := []models.Configuration{
		{Key: models.ConfigReferralDiscountPercentage, Value: pct.String(), Type: models.ConfigurationTypeDecimal, UpdatedBy: &actor},
		{Key: models.ConfigReferralPointsPerReferral, Value: strconv.Itoa(req.PointsPerReferral), Type: models.ConfigurationTypeInteger, UpdatedBy: &actor},
	}
	if err := s.repo.BulkUpsert(ctx, rows); err != nil {
		return models.ReferralSettings{}, appErrors.Internal(err, "failed to save referral settings")
	}
	s.cache.Delete(ctx, referralSettingsCacheKey)

	s.logger.Info("referral settings updated",
		zap.String("updated_by", actorID),
		zap.String("referred_discount_percentage", pct.String()),
		zap.Int("points_per_referral", req.PointsPerReferral),
	)
	return models.ReferralSettings{ReferredDiscountPercentage: pct, PointsPerReferral: req.PointsPerReferral}, nil
}
