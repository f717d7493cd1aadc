package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/pkg/cache"
	"github.com/noah-isme/rdc-learning-api/pkg/database"
	appErrors "github.com/noah-isme/rdc-learning-api/pkg/errors"
	"github.com/noah-isme/rdc-learning-api/pkg/money"
)

type courseStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
}

// CreateCycleRequest describes a cycle with its display price.
type CreateCycleRequest struct {
	ID        string   `json:"id" validate:"omitempty,max=64"`
	Title     string   `json:"title" validate:"required,max=200"`
	Price     string   `json:"price"`
	ModuleIDs []string `json:"module_ids"`
}

// CreateAssignmentTemplateRequest describes an assignment cloned for every enrolled student.
type CreateAssignmentTemplateRequest struct {
	ID          string `json:"id" validate:"omitempty,max=64"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
	TotalMarks  int    `json:"total_marks" validate:"gte=0"`
	DueDays     int    `json:"due_days" validate:"gte=0"`
}

// CreateExamTemplateRequest describes an exam cloned for every enrolled student.
type CreateExamTemplateRequest struct {
	ID              string `json:"id" validate:"omitempty,max=64"`
	Title           string `json:"title" validate:"required,max=200"`
	TotalMarks      int    `json:"total_marks" validate:"gte=0"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
}

// CreateCourseRequest ingests a catalog course. Prices are display strings such as "৳1,200" and are
// converted to minor units once here.
type CreateCourseRequest struct {
	ID                  string                            `json:"id" validate:"omitempty,max=64"`
	Title               string                            `json:"title" validate:"required,max=200"`
	Price               string                            `json:"price" validate:"required"`
	DiscountPrice       string                            `json:"discount_price"`
	IsPrebooking        bool                              `json:"is_prebooking"`
	IncludedCourseIDs   []string                          `json:"included_course_ids"`
	ModuleIDs           []string                          `json:"module_ids"`
	Cycles              []CreateCycleRequest              `json:"cycles" validate:"dive"`
	AssignmentTemplates []CreateAssignmentTemplateRequest `json:"assignment_templates" validate:"dive"`
	ExamTemplates       []CreateExamTemplateRequest       `json:"exam_templates" validate:"dive"`
}

// CourseService manages catalog ingestion and the cached course read model.
type CourseService struct {
	repo      courseStore
	cache     *CacheService
	ttl       time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the service.
func NewCourseService(repo courseStore, cacheSvc *CacheService, ttl time.Duration, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, cache: cacheSvc, ttl: ttl, validator: validate, logger: logger}
}

// Create converts the request into a course and persists it with its children.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	price, err := parsePrice("price", req.Price)
	if err != nil {
		return nil, err
	}
	course := &models.Course{
		ID:                firstNonEmpty(req.ID, uuid.NewString()),
		Title:             strings.TrimSpace(req.Title),
		Price:             price,
		PriceLabel:        req.Price,
		IsPrebooking:      req.IsPrebooking,
		IncludedCourseIDs: req.IncludedCourseIDs,
		ModuleIDs:         req.ModuleIDs,
	}
	if strings.TrimSpace(req.DiscountPrice) != "" {
		discount, err := parsePrice("discount_price", req.DiscountPrice)
		if err != nil {
			return nil, err
		}
		course.DiscountPrice = &discount
	}
	for i, c := range req.Cycles {
		cyclePrice, err := parsePrice("cycles.price", c.Price)
		if err != nil {
			return nil, err
		}
		course.Cycles = append(course.Cycles, models.Cycle{
			ID:        firstNonEmpty(c.ID, uuid.NewString()),
			Title:     c.Title,
			Price:     cyclePrice,
			ModuleIDs: c.ModuleIDs,
			Position:  i + 1,
		})
	}
	for _, t := range req.AssignmentTemplates {
		course.AssignmentTemplates = append(course.AssignmentTemplates, models.AssignmentTemplate{
			ID:          firstNonEmpty(t.ID, uuid.NewString()),
			Title:       t.Title,
			Description: t.Description,
			TotalMarks:  t.TotalMarks,
			DueDays:     t.DueDays,
		})
	}
	for _, t := range req.ExamTemplates {
		course.ExamTemplates = append(course.ExamTemplates, models.ExamTemplate{
			ID:              firstNonEmpty(t.ID, uuid.NewString()),
			Title:           t.Title,
			TotalMarks:      t.TotalMarks,
			DurationMinutes: t.DurationMinutes,
		})
	}

	if err := s.repo.Create(ctx, course); err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a course, cycle or template with this id already exists")
		}
		return nil, databaseUnavailable(err)
	}
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.Int("cycles", len(course.Cycles)))
	return course, nil
}

// Get returns a course with its cycles and templates.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	key := cache.CourseKey(id)
	var cached models.Course
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCourseNotFound
		}
		return nil, databaseUnavailable(err)
	}
	s.cache.Set(ctx, key, course, s.ttl)
	return course, nil
}

func parsePrice(field, label string) (money.Amount, error) {
	amount, err := money.ParsePrice(label)
	if err != nil {
		return money.Zero, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
			fmt.Sprintf("%s %q is not a valid price", field, label))
	}
	return amount, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
