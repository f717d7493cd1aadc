package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/internal/repository"
	"github.com/noah-isme/rdc-learning-api/pkg/cache"
	appErrors "github.com/noah-isme/rdc-learning-api/pkg/errors"
	"github.com/noah-isme/rdc-learning-api/pkg/money"
)

const (
	cloneStatusPending = "pending"
	bundleProgress     = 100
)

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type userDirectory interface {
	userReader
	FindByClassRoll(ctx context.Context, classRoll string) (*models.User, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Course, error)
}

type enrollmentRepository interface {
	CountByUser(ctx context.Context, userID string) (int, error)
	Exists(ctx context.Context, userID, courseID, cycleID string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error)
	Commit(ctx context.Context, plan *repository.EnrollmentCommit) error
}

type invoiceGenerator interface {
	Generate(ctx context.Context, enrollmentID string) (*models.Invoice, error)
}

// EnrollRequest describes an enrollment attempt. PaymentDetails may only be supplied by staff.
type EnrollRequest struct {
	UserID         string                 `json:"user_id" validate:"required"`
	CourseID       string                 `json:"course_id" validate:"required"`
	CycleID        string                 `json:"cycle_id" validate:"omitempty,max=64"`
	ReferralCode   string                 `json:"referral_code" validate:"omitempty,max=64"`
	PaymentDetails *models.PaymentDetails `json:"payment_details"`
}

// EnrollResult is returned after a committed enrollment. InvoiceError is set when the follow-up invoice
// could not be generated; the enrollment itself is committed either way.
type EnrollResult struct {
	Enrollment   *models.Enrollment  `json:"enrollment"`
	Bundled      []models.Enrollment `json:"bundled_enrollments,omitempty"`
	Referral     *models.Referral    `json:"referral,omitempty"`
	Invoice      *models.Invoice     `json:"invoice,omitempty"`
	InvoiceError string              `json:"invoice_error,omitempty"`
}

// EnrollmentService validates, prices and commits enrollments.
type EnrollmentService struct {
	users       userDirectory
	courses     courseReader
	enrollments enrollmentRepository
	invoices    invoiceGenerator
	cache       *CacheService
	metrics     *MetricsService
	listTTL     time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(users userDirectory, courses courseReader, enrollments enrollmentRepository, invoices invoiceGenerator, cacheSvc *CacheService, metrics *MetricsService, listTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		users:       users,
		courses:     courses,
		enrollments: enrollments,
		invoices:    invoices,
		cache:       cacheSvc,
		metrics:     metrics,
		listTTL:     listTTL,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Enroll runs the enrollment transaction. Every precondition is checked before the first write;
// the commit itself is all-or-nothing. Invoice generation follows the commit and never undoes it.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest, settings models.ReferralSettings) (*EnrollResult, error) {
	req.CourseID = strings.TrimSpace(req.CourseID)
	req.CycleID = strings.TrimSpace(req.CycleID)
	req.ReferralCode = strings.TrimSpace(req.ReferralCode)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	user, course, prior, err := s.loadContext(ctx, req.UserID, req.CourseID)
	if err != nil {
		return nil, err
	}

	if req.PaymentDetails == nil && !user.HasContactNumbers() {
		return nil, appErrors.ErrIncompleteProfile
	}

	var cycle *models.Cycle
	if req.CycleID != "" {
		found, ok := course.FindCycle(req.CycleID)
		if !ok {
			return nil, appErrors.ErrInvalidCycle
		}
		cycle = found
	}

	exists, err := s.enrollments.Exists(ctx, user.ID, course.ID, req.CycleID)
	if err != nil {
		return nil, databaseUnavailable(err)
	}
	if exists {
		return nil, appErrors.ErrAlreadyEnrolled
	}

	firstEnrollment := prior == 0
	referrer, err := s.resolveReferrer(ctx, user, req.ReferralCode, firstEnrollment)
	if err != nil {
		return nil, err
	}

	base := BasePrice(course, cycle)
	referralDiscount := money.Zero
	if referrer != nil {
		referralDiscount = ReferralDiscount(settings, base)
	}
	snapshot := buildSnapshot(base, referralDiscount, req.PaymentDetails)

	now := s.now()
	enrollment := &models.Enrollment{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		CourseID:         course.ID,
		CycleID:          req.CycleID,
		EnrollmentType:   models.EnrollmentTypeFullCourse,
		Status:           models.EnrollmentStatusActive,
		TotalFee:         snapshot.TotalFee,
		PaidAmount:       snapshot.PaidAmount,
		Discount:         snapshot.Discount,
		ReferralDiscount: snapshot.ReferralDiscount,
		DueAmount:        snapshot.DueAmount,
		PaymentStatus:    snapshot.Status,
		PaymentMethod:    snapshot.Method,
		PaymentReference: snapshot.Reference,
		AccessModuleIDs:  accessModules(course, cycle),
		EnrolledAt:       now,
	}
	if cycle != nil {
		enrollment.EnrollmentType = models.EnrollmentTypeCycle
	}

	plan := repository.EnrollmentCommit{
		Enrollment:  enrollment,
		Assignments: cloneAssignments(course.AssignmentTemplates, user.ID, now),
		Exams:       cloneExams(course.ExamTemplates, user.ID, now),
	}

	if referrer != nil {
		enrollment.UsedReferralCode = strings.ToUpper(req.ReferralCode)
		plan.Referral = &models.Referral{
			ReferrerID:     referrer.ID,
			ReferredUserID: user.ID,
			CourseID:       course.ID,
			Points:         settings.PointsPerReferral,
			DiscountGiven:  referralDiscount,
			Status:         models.ReferralStatusAwarded,
		}
		plan.RequireFirstEnrollment = true
	}

	if cycle == nil && course.IsBundle() {
		bundled, err := s.bundledEnrollments(ctx, course, enrollment)
		if err != nil {
			return nil, err
		}
		plan.Bundled = bundled
	}

	if err := s.enrollments.Commit(ctx, &plan); err != nil {
		return nil, translateCommitError(err)
	}

	s.logger.Info("enrollment committed",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("user_id", user.ID),
		zap.String("course_id", course.ID),
		zap.String("enrollment_type", string(enrollment.EnrollmentType)),
		zap.Int("bundled", len(plan.Bundled)),
		zap.Bool("referral_awarded", plan.Referral != nil),
	)
	s.metrics.RecordEnrollment(enrollment.EnrollmentType, plan.Referral != nil)
	s.invalidate(ctx, user.ID, course.ID, plan.Bundled)

	result := &EnrollResult{Enrollment: enrollment, Bundled: plan.Bundled, Referral: plan.Referral}
	if s.invoices != nil {
		invoice, err := s.invoices.Generate(ctx, enrollment.ID)
		if err != nil {
			s.logger.Warn("invoice generation deferred",
				zap.String("enrollment_id", enrollment.ID),
				zap.Error(err),
			)
			result.InvoiceError = appErrors.FromError(err).Message
		} else {
			result.Invoice = invoice
		}
	}
	return result, nil
}

// Get returns an enrollment by id.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrEnrollmentNotFound
		}
		return nil, databaseUnavailable(err)
	}
	return enrollment, nil
}

// ListByUser returns the user's enrollments through the student dashboard cache.
func (s *EnrollmentService) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	key := cache.StudentEnrollmentsKey(userID)
	var cached []models.Enrollment
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrUserNotFound
		}
		return nil, databaseUnavailable(err)
	}
	enrollments, err := s.enrollments.ListByUser(ctx, userID)
	if err != nil {
		return nil, databaseUnavailable(err)
	}
	if enrollments == nil {
		enrollments = []models.Enrollment{}
	}
	s.cache.Set(ctx, key, enrollments, s.listTTL)
	return enrollments, nil
}

// loadContext fetches the user, the course and the user's enrollment count concurrently. Errors are
// reported in a fixed order so callers see USER_NOT_FOUND before COURSE_NOT_FOUND.
func (s *EnrollmentService) loadContext(ctx context.Context, userID, courseID string) (*models.User, *models.Course, int, error) {
	var (
		user      *models.User
		course    *models.Course
		prior     int
		userErr   error
		courseErr error
		countErr  error
	)
	var g errgroup.Group
	g.Go(func() error {
		user, userErr = s.users.FindByID(ctx, userID)
		return nil
	})
	g.Go(func() error {
		course, courseErr = s.courses.FindByID(ctx, courseID)
		return nil
	})
	g.Go(func() error {
		prior, countErr = s.enrollments.CountByUser(ctx, userID)
		return nil
	})
	_ = g.Wait()

	if userErr != nil {
		if errors.Is(userErr, sql.ErrNoRows) {
			return nil, nil, 0, appErrors.ErrUserNotFound
		}
		return nil, nil, 0, databaseUnavailable(userErr)
	}
	if courseErr != nil {
		if errors.Is(courseErr, sql.ErrNoRows) {
			return nil, nil, 0, appErrors.ErrCourseNotFound
		}
		return nil, nil, 0, databaseUnavailable(courseErr)
	}
	if countErr != nil {
		return nil, nil, 0, databaseUnavailable(countErr)
	}
	return user, course, prior, nil
}

// resolveReferrer validates a supplied referral code. A user who already used a referral is rejected
// whenever a code is supplied; the code itself is only resolved on the first enrollment and ignored after.
func (s *EnrollmentService) resolveReferrer(ctx context.Context, user *models.User, code string, firstEnrollment bool) (*models.User, error) {
	if code == "" {
		return nil, nil
	}
	if user.HasUsedReferral {
		return nil, appErrors.ErrReferralAlreadyUsed
	}
	if !firstEnrollment {
		s.logger.Debug("referral code ignored on repeat enrollment", zap.String("user_id", user.ID))
		return nil, nil
	}
	if user.ClassRoll != nil && strings.EqualFold(strings.TrimSpace(*user.ClassRoll), code) {
		return nil, appErrors.ErrSelfReferral
	}
	referrer, err := s.users.FindByClassRoll(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidReferralCode
		}
		return nil, databaseUnavailable(err)
	}
	if referrer.ID == user.ID {
		return nil, appErrors.ErrSelfReferral
	}
	return referrer, nil
}

func (s *EnrollmentService) bundledEnrollments(ctx context.Context, course *models.Course, parent *models.Enrollment) ([]models.Enrollment, error) {
	included, err := s.courses.ListByIDs(ctx, course.IncludedCourseIDs)
	if err != nil {
		return nil, databaseUnavailable(err)
	}
	found := make(map[string]models.Course, len(included))
	for _, c := range included {
		found[c.ID] = c
	}

	seen := map[string]bool{course.ID: true}
	bundled := make([]models.Enrollment, 0, len(course.IncludedCourseIDs))
	for _, id := range course.IncludedCourseIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		inc, ok := found[id]
		if !ok {
			s.logger.Warn("bundle references unknown course", zap.String("course_id", course.ID), zap.String("included_course_id", id))
			continue
		}
		bundled = append(bundled, models.Enrollment{
			ID:              uuid.NewString(),
			UserID:          parent.UserID,
			CourseID:        inc.ID,
			EnrollmentType:  models.EnrollmentTypeFullCourse,
			Status:          models.EnrollmentStatusCompleted,
			Progress:        bundleProgress,
			PaymentStatus:   models.PaymentStatusPaid,
			AccessModuleIDs: accessModules(&inc, nil),
			BundleParentID:  parent.ID,
			EnrolledAt:      parent.EnrolledAt,
		})
	}
	return bundled, nil
}

func (s *EnrollmentService) invalidate(ctx context.Context, userID, courseID string, bundled []models.Enrollment) {
	patterns := []string{
		cache.PrefixStudentDashboard + userID + "*",
		cache.CourseKey(courseID) + "*",
	}
	for _, b := range bundled {
		patterns = append(patterns, cache.CourseKey(b.CourseID)+"*")
	}
	s.cache.Invalidate(ctx, patterns...)
}

func cloneAssignments(templates []models.AssignmentTemplate, userID string, now time.Time) []models.Assignment {
	out := make([]models.Assignment, 0, len(templates))
	for _, t := range templates {
		a := models.Assignment{
			ID:          models.PerStudentID(t.ID, userID),
			TemplateID:  t.ID,
			CourseID:    t.CourseID,
			StudentID:   userID,
			Title:       t.Title,
			Description: t.Description,
			TotalMarks:  t.TotalMarks,
			Status:      cloneStatusPending,
			CreatedAt:   now,
		}
		if t.DueDays > 0 {
			due := now.AddDate(0, 0, t.DueDays)
			a.DueAt = &due
		}
		out = append(out, a)
	}
	return out
}

func cloneExams(templates []models.ExamTemplate, userID string, now time.Time) []models.Exam {
	out := make([]models.Exam, 0, len(templates))
	for _, t := range templates {
		out = append(out, models.Exam{
			ID:              models.PerStudentID(t.ID, userID),
			TemplateID:      t.ID,
			CourseID:        t.CourseID,
			StudentID:       userID,
			Title:           t.Title,
			TotalMarks:      t.TotalMarks,
			DurationMinutes: t.DurationMinutes,
			Status:          cloneStatusPending,
			CreatedAt:       now,
		})
	}
	return out
}

func translateCommitError(err error) error {
	switch {
	case errors.Is(err, repository.ErrEnrollmentExists):
		return appErrors.ErrAlreadyEnrolled
	case errors.Is(err, repository.ErrReferralConsumed):
		return appErrors.ErrReferralAlreadyUsed
	case errors.Is(err, repository.ErrFirstEnrollmentChanged):
		return appErrors.ErrEnrollmentRaced
	default:
		return databaseUnavailable(err)
	}
}

func databaseUnavailable(err error) error {
	return appErrors.Wrap(err, appErrors.ErrDatabaseUnavailable.Code, appErrors.ErrDatabaseUnavailable.Status, appErrors.ErrDatabaseUnavailable.Message)
}
