package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rdc-learning-api/internal/models"
)

const userColumns = `id, full_name, email, role, class_roll, mobile, guardian_mobile, referral_points,
has_used_referral, enrolled_courses, status, created_at, updated_at`

// UserRepository provides read access to platform users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindByClassRoll resolves a referral code to its owner. Codes are matched case-insensitively.
func (r *UserRepository) FindByClassRoll(ctx context.Context, classRoll string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE UPPER(class_roll) = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, strings.ToUpper(strings.TrimSpace(classRoll))); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by class roll: %w", err)
	}
	return &user, nil
}
