package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mesa-scheduler/internal/models"
)

// EnrollmentRepository reads pending-subject records ("previas").
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository builds repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListPending returns inscribed records ordered by student, course year and registration age.
func (r *EnrollmentRepository) ListPending(ctx context.Context, exec sqlx.ExtContext) ([]models.Enrollment, error) {
	const query = `SELECT id, dni, subject_id, course_year, status, registered_at FROM enrollments
WHERE status = $1 ORDER BY dni ASC, course_year ASC, registered_at ASC, id ASC`
	var records []models.Enrollment
	if err := sqlx.SelectContext(ctx, r.exec(exec), &records, query, models.EnrollmentStatusInscribed); err != nil {
		return nil, fmt.Errorf("list pending enrollments: %w", err)
	}
	return records, nil
}
