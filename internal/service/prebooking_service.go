package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/internal/repository"
	"github.com/noah-isme/rdc-learning-api/pkg/cache"
	appErrors "github.com/noah-isme/rdc-learning-api/pkg/errors"
	"github.com/noah-isme/rdc-learning-api/pkg/export"
)

type prebookingRepository interface {
	Exists(ctx context.Context, userID, courseID string) (bool, error)
	Create(ctx context.Context, prebooking *models.Prebooking) error
	ListByCourse(ctx context.Context, courseID string) ([]models.PrebookingDetail, error)
}

type prebookingCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// PrebookRequest registers interest in a course that is not open yet.
type PrebookRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	CourseID string `json:"course_id" validate:"required"`
	CycleID  string `json:"cycle_id" validate:"omitempty,max=64"`
}

// PrebookingService records prebookings and exports them for staff.
type PrebookingService struct {
	repo      prebookingRepository
	courses   prebookingCourseReader
	users     userReader
	csv       csvRenderer
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPrebookingService constructs the service.
func NewPrebookingService(repo prebookingRepository, courses prebookingCourseReader, users userReader, csv csvRenderer, cacheSvc *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PrebookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter(true)
	}
	return &PrebookingService{repo: repo, courses: courses, users: users, csv: csv, cache: cacheSvc, metrics: metrics, validator: validate, logger: logger}
}

// Prebook records a prebooking and bumps the course counter in the same transaction.
func (s *PrebookingService) Prebook(ctx context.Context, req PrebookRequest) (*models.Prebooking, error) {
	req.CourseID = strings.TrimSpace(req.CourseID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prebooking payload")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCourseNotFound
		}
		return nil, databaseUnavailable(err)
	}
	if !course.IsPrebooking {
		return nil, appErrors.ErrPrebookingClosed
	}

	exists, err := s.repo.Exists(ctx, req.UserID, course.ID)
	if err != nil {
		return nil, databaseUnavailable(err)
	}
	if exists {
		return nil, appErrors.ErrAlreadyPrebooked
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrUserNotFound
		}
		return nil, databaseUnavailable(err)
	}
	if !user.HasContactNumbers() {
		return nil, appErrors.ErrIncompleteProfile
	}

	prebooking := &models.Prebooking{CourseID: course.ID, UserID: user.ID, CycleID: req.CycleID}
	if err := s.repo.Create(ctx, prebooking); err != nil {
		if errors.Is(err, repository.ErrPrebookingExists) {
			return nil, appErrors.ErrAlreadyPrebooked
		}
		return nil, databaseUnavailable(err)
	}

	s.metrics.RecordPrebooking()
	s.cache.Invalidate(ctx, cache.CourseKey(course.ID)+"*")
	s.logger.Info("prebooking recorded",
		zap.String("prebooking_id", prebooking.ID),
		zap.String("user_id", user.ID),
		zap.String("course_id", course.ID),
	)
	return prebooking, nil
}

// List returns the course's prebookings.
func (s *PrebookingService) List(ctx context.Context, courseID string) ([]models.PrebookingDetail, error) {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCourseNotFound
		}
		return nil, databaseUnavailable(err)
	}
	items, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, databaseUnavailable(err)
	}
	if items == nil {
		items = []models.PrebookingDetail{}
	}
	return items, nil
}

// ExportCSV renders the course's prebookings as CSV for call-center follow-up.
func (s *PrebookingService) ExportCSV(ctx context.Context, courseID string) ([]byte, error) {
	items, err := s.List(ctx, courseID)
	if err != nil {
		return nil, err
	}
	data := export.Dataset{
		Headers: []string{"Prebooked At", "Name", "Mobile", "Guardian Mobile", "Cycle", "User ID"},
		Rows:    make([]map[string]string, 0, len(items)),
	}
	for _, item := range items {
		data.Rows = append(data.Rows, map[string]string{
			"Prebooked At":    item.CreatedAt.Format("2006-01-02 15:04"),
			"Name":            item.FullName,
			"Mobile":          item.Mobile,
			"Guardian Mobile": item.GuardianMobile,
			"Cycle":           item.CycleID,
			"User ID":         item.UserID,
		})
	}
	out, err := s.csv.Render(data)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to export prebookings")
	}
	return out, nil
}
