package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/pkg/database"
)

// ErrPrebookingExists is returned when the user already prebooked the course.
var ErrPrebookingExists = errors.New("prebooking already exists")

// PrebookingRepository persists prebookings and the course prebooking counter.
type PrebookingRepository struct {
	db *sqlx.DB
}

// NewPrebookingRepository constructs the repository.
func NewPrebookingRepository(db *sqlx.DB) *PrebookingRepository {
	return &PrebookingRepository{db: db}
}

// Exists reports whether the user has prebooked the course.
func (r *PrebookingRepository) Exists(ctx context.Context, userID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM prebookings WHERE user_id = $1 AND course_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, userID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check prebooking: %w", err)
	}
	return true, nil
}

// Create inserts the prebooking and increments the course counter in one transaction.
func (r *PrebookingRepository) Create(ctx context.Context, prebooking *models.Prebooking) (err error) {
	if prebooking.ID == "" {
		prebooking.ID = uuid.NewString()
	}
	if prebooking.CreatedAt.IsZero() {
		prebooking.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin prebooking transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO prebookings (id, course_id, user_id, cycle_id, created_at)
VALUES (:id, :course_id, :user_id, :cycle_id, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, prebooking); err != nil {
		if database.IsUniqueViolation(err, "") {
			return ErrPrebookingExists
		}
		return fmt.Errorf("insert prebooking: %w", err)
	}

	const counterQuery = `UPDATE courses SET prebooking_count = prebooking_count + 1, updated_at = NOW() WHERE id = $1`
	if _, err = tx.ExecContext(ctx, counterQuery, prebooking.CourseID); err != nil {
		return fmt.Errorf("increment prebooking count: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit prebooking: %w", err)
	}
	return nil
}

// ListByCourse returns the course's prebookings with contact details, oldest first.
func (r *PrebookingRepository) ListByCourse(ctx context.Context, courseID string) ([]models.PrebookingDetail, error) {
	const query = `SELECT p.id, p.course_id, p.user_id, p.cycle_id, p.created_at,
	u.full_name, u.mobile, u.guardian_mobile
FROM prebookings p
JOIN users u ON u.id = p.user_id
WHERE p.course_id = $1
ORDER BY p.created_at ASC`
	var items []models.PrebookingDetail
	if err := r.db.SelectContext(ctx, &items, query, courseID); err != nil {
		return nil, fmt.Errorf("list prebookings: %w", err)
	}
	return items, nil
}
