package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/rdc-learning-api/internal/models"
)

const courseColumns = `id, title, price, discount_price, price_label, is_prebooking, prebooking_count,
included_course_ids, module_ids, created_at, updated_at`

// CourseRepository reads and writes courses together with their cycles and templates.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID loads a course with its cycles, assignment templates and exam templates.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1 LIMIT 1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course by id: %w", err)
	}

	const cyclesQuery = `SELECT id, course_id, title, price, module_ids, position FROM course_cycles WHERE course_id = $1 ORDER BY position ASC, id ASC`
	if err := r.db.SelectContext(ctx, &course.Cycles, cyclesQuery, id); err != nil {
		return nil, fmt.Errorf("list course cycles: %w", err)
	}

	const assignmentsQuery = `SELECT id, course_id, title, description, total_marks, due_days FROM assignment_templates WHERE course_id = $1 ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &course.AssignmentTemplates, assignmentsQuery, id); err != nil {
		return nil, fmt.Errorf("list assignment templates: %w", err)
	}

	const examsQuery = `SELECT id, course_id, title, total_marks, duration_minutes FROM exam_templates WHERE course_id = $1 ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &course.ExamTemplates, examsQuery, id); err != nil {
		return nil, fmt.Errorf("list exam templates: %w", err)
	}

	return &course, nil
}

// ListByIDs returns the bare course rows for the given ids. Unknown ids are skipped.
func (r *CourseRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Course, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = ANY($1) ORDER BY id ASC`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list courses by ids: %w", err)
	}
	return courses, nil
}

// Create inserts a course with its cycles and templates in a single transaction.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin course transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	if course.IncludedCourseIDs == nil {
		course.IncludedCourseIDs = pq.StringArray{}
	}
	if course.ModuleIDs == nil {
		course.ModuleIDs = pq.StringArray{}
	}

	const courseQuery = `INSERT INTO courses (id, title, price, discount_price, price_label, is_prebooking, prebooking_count, included_course_ids, module_ids, created_at, updated_at)
VALUES (:id, :title, :price, :discount_price, :price_label, :is_prebooking, :prebooking_count, :included_course_ids, :module_ids, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, courseQuery, course); err != nil {
		return fmt.Errorf("insert course: %w", err)
	}

	const cycleQuery = `INSERT INTO course_cycles (id, course_id, title, price, module_ids, position)
VALUES (:id, :course_id, :title, :price, :module_ids, :position)`
	for i := range course.Cycles {
		course.Cycles[i].CourseID = course.ID
		if course.Cycles[i].ModuleIDs == nil {
			course.Cycles[i].ModuleIDs = pq.StringArray{}
		}
		if _, err = tx.NamedExecContext(ctx, cycleQuery, course.Cycles[i]); err != nil {
			return fmt.Errorf("insert course cycle: %w", err)
		}
	}

	const assignmentQuery = `INSERT INTO assignment_templates (id, course_id, title, description, total_marks, due_days)
VALUES (:id, :course_id, :title, :description, :total_marks, :due_days)`
	for i := range course.AssignmentTemplates {
		course.AssignmentTemplates[i].CourseID = course.ID
		if _, err = tx.NamedExecContext(ctx, assignmentQuery, course.AssignmentTemplates[i]); err != nil {
			return fmt.Errorf("insert assignment template: %w", err)
		}
	}

	const examQuery = `INSERT INTO exam_templates (id, course_id, title, total_marks, duration_minutes)
VALUES (:id, :course_id, :title, :total_marks, :duration_minutes)`
	for i := range course.ExamTemplates {
		course.ExamTemplates[i].CourseID = course.ID
		if _, err = tx.NamedExecContext(ctx, examQuery, course.ExamTemplates[i]); err != nil {
			return fmt.Errorf("insert exam template: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit course: %w", err)
	}
	return nil
}
