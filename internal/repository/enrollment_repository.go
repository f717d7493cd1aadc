package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/pkg/database"
)

var (
	// ErrEnrollmentExists is returned when the (user, course, cycle) enrollment already exists.
	ErrEnrollmentExists = errors.New("enrollment already exists")
	// ErrReferralConsumed is returned when the referred user's referral flag was set concurrently.
	ErrReferralConsumed = errors.New("referral already consumed")
	// ErrFirstEnrollmentChanged is returned when the user enrolled elsewhere after eligibility was computed.
	ErrFirstEnrollmentChanged = errors.New("first enrollment assumption no longer holds")
)

const enrollmentColumns = `id, user_id, course_id, cycle_id, enrollment_type, status, progress, total_fee, paid_amount,
discount, referral_discount, due_amount, payment_status, payment_method, payment_reference, access_module_ids,
used_referral_code, bundle_parent_id, enrolled_at`

// EnrollmentCommit is the full set of writes performed for one enrollment request.
type EnrollmentCommit struct {
	Enrollment  *models.Enrollment
	Bundled     []models.Enrollment
	Assignments []models.Assignment
	Exams       []models.Exam

	// Referral is set only when the request earns a referral award.
	Referral *models.Referral

	// RequireFirstEnrollment fails the commit when the user already holds an enrollment.
	RequireFirstEnrollment bool
}

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// CountByUser returns how many enrollments the user holds.
func (r *EnrollmentRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE user_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, userID); err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return total, nil
}

// Exists reports whether the user is already enrolled in the course (and cycle, when given).
func (r *EnrollmentRepository) Exists(ctx context.Context, userID, courseID, cycleID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2 AND cycle_id = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, userID, courseID, cycleID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByUser returns the user's enrollments, newest first.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 ORDER BY enrolled_at DESC, id ASC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, userID); err != nil {
		return nil, fmt.Errorf("list user enrollments: %w", err)
	}
	return enrollments, nil
}

// Commit writes the enrollment and every dependent record in one transaction. Either all rows
// are persisted or none are. On success plan.Bundled holds only the bundled enrollments that were
// inserted; courses the user already held are dropped from it.
func (r *EnrollmentRepository) Commit(ctx context.Context, plan *EnrollmentCommit) (err error) {
	if plan == nil || plan.Enrollment == nil {
		return fmt.Errorf("commit enrollment: missing enrollment")
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	e := plan.Enrollment
	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.EnrolledAt.IsZero() {
		e.EnrolledAt = now
	}

	var locked string
	if err = tx.GetContext(ctx, &locked, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, e.UserID); err != nil {
		return fmt.Errorf("lock user: %w", err)
	}

	if plan.RequireFirstEnrollment {
		var prior int
		if err = tx.GetContext(ctx, &prior, `SELECT COUNT(*) FROM enrollments WHERE user_id = $1`, e.UserID); err != nil {
			return fmt.Errorf("recount enrollments: %w", err)
		}
		if prior > 0 {
			return ErrFirstEnrollmentChanged
		}
	}

	if err = insertEnrollment(ctx, tx, e); err != nil {
		if database.IsUniqueViolation(err, "") {
			return ErrEnrollmentExists
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}

	if err = appendEnrolledCourse(ctx, tx, e.UserID, e.CourseID); err != nil {
		return err
	}

	if plan.Referral != nil {
		if err = awardReferral(ctx, tx, plan.Referral, now); err != nil {
			return err
		}
	}

	const bundledQuery = `INSERT INTO enrollments (` + enrollmentColumns + `)
VALUES (:id, :user_id, :course_id, :cycle_id, :enrollment_type, :status, :progress, :total_fee, :paid_amount,
:discount, :referral_discount, :due_amount, :payment_status, :payment_method, :payment_reference, :access_module_ids,
:used_referral_code, :bundle_parent_id, :enrolled_at)
ON CONFLICT (user_id, course_id, cycle_id) DO NOTHING`
	inserted := make([]models.Enrollment, 0, len(plan.Bundled))
	for i := range plan.Bundled {
		b := plan.Bundled[i]
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if b.EnrolledAt.IsZero() {
			b.EnrolledAt = e.EnrolledAt
		}
		if b.AccessModuleIDs == nil {
			b.AccessModuleIDs = pq.StringArray{}
		}
		var res sql.Result
		if res, err = tx.NamedExecContext(ctx, bundledQuery, &b); err != nil {
			return fmt.Errorf("insert bundled enrollment: %w", err)
		}
		var affected int64
		if affected, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("insert bundled enrollment: %w", err)
		}
		if affected == 0 {
			continue
		}
		if err = appendEnrolledCourse(ctx, tx, b.UserID, b.CourseID); err != nil {
			return err
		}
		inserted = append(inserted, b)
	}

	const assignmentQuery = `INSERT INTO assignments (id, template_id, course_id, student_id, title, description, total_marks, status, due_at, created_at)
VALUES (:id, :template_id, :course_id, :student_id, :title, :description, :total_marks, :status, :due_at, :created_at)
ON CONFLICT (id) DO NOTHING`
	for i := range plan.Assignments {
		if plan.Assignments[i].CreatedAt.IsZero() {
			plan.Assignments[i].CreatedAt = now
		}
		if _, err = tx.NamedExecContext(ctx, assignmentQuery, plan.Assignments[i]); err != nil {
			return fmt.Errorf("clone assignment: %w", err)
		}
	}

	const examQuery = `INSERT INTO exams (id, template_id, course_id, student_id, title, total_marks, duration_minutes, status, created_at)
VALUES (:id, :template_id, :course_id, :student_id, :title, :total_marks, :duration_minutes, :status, :created_at)
ON CONFLICT (id) DO NOTHING`
	for i := range plan.Exams {
		if plan.Exams[i].CreatedAt.IsZero() {
			plan.Exams[i].CreatedAt = now
		}
		if _, err = tx.NamedExecContext(ctx, examQuery, plan.Exams[i]); err != nil {
			return fmt.Errorf("clone exam: %w", err)
		}
	}

	const outboxQuery = `INSERT INTO invoice_outbox (enrollment_id, created_at) VALUES ($1, $2) ON CONFLICT (enrollment_id) DO NOTHING`
	if _, err = tx.ExecContext(ctx, outboxQuery, e.ID, now); err != nil {
		return fmt.Errorf("queue invoice: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment: %w", err)
	}
	plan.Bundled = inserted
	return nil
}

func insertEnrollment(ctx context.Context, tx *sqlx.Tx, e *models.Enrollment) error {
	if e.AccessModuleIDs == nil {
		e.AccessModuleIDs = pq.StringArray{}
	}
	const query = `INSERT INTO enrollments (` + enrollmentColumns + `)
VALUES (:id, :user_id, :course_id, :cycle_id, :enrollment_type, :status, :progress, :total_fee, :paid_amount,
:discount, :referral_discount, :due_amount, :payment_status, :payment_method, :payment_reference, :access_module_ids,
:used_referral_code, :bundle_parent_id, :enrolled_at)`
	_, err := tx.NamedExecContext(ctx, query, e)
	return err
}

func appendEnrolledCourse(ctx context.Context, tx *sqlx.Tx, userID, courseID string) error {
	const query = `UPDATE users SET enrolled_courses = array_append(enrolled_courses, $2), updated_at = NOW()
WHERE id = $1 AND NOT ($2 = ANY(enrolled_courses))`
	if _, err := tx.ExecContext(ctx, query, userID, courseID); err != nil {
		return fmt.Errorf("append enrolled course: %w", err)
	}
	return nil
}

func awardReferral(ctx context.Context, tx *sqlx.Tx, ref *models.Referral, now time.Time) error {
	const flagQuery = `UPDATE users SET has_used_referral = TRUE, updated_at = NOW() WHERE id = $1 AND has_used_referral = FALSE`
	res, err := tx.ExecContext(ctx, flagQuery, ref.ReferredUserID)
	if err != nil {
		return fmt.Errorf("mark referral used: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark referral used: %w", err)
	}
	if affected == 0 {
		return ErrReferralConsumed
	}

	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = now
	}
	if ref.Status == "" {
		ref.Status = models.ReferralStatusAwarded
	}
	const referralQuery = `INSERT INTO referrals (id, referrer_id, referred_user_id, course_id, points, discount_given, status, created_at)
VALUES (:id, :referrer_id, :referred_user_id, :course_id, :points, :discount_given, :status, :created_at)`
	if _, err := tx.NamedExecContext(ctx, referralQuery, ref); err != nil {
		if database.IsUniqueViolation(err, "") {
			return ErrReferralConsumed
		}
		return fmt.Errorf("insert referral: %w", err)
	}

	const pointsQuery = `UPDATE users SET referral_points = referral_points + $2, updated_at = NOW() WHERE id = $1`
	if _, err := tx.ExecContext(ctx, pointsQuery, ref.ReferrerID, ref.Points); err != nil {
		return fmt.Errorf("credit referral points: %w", err)
	}
	return nil
}
