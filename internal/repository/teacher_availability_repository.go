package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mesa-scheduler/internal/models"
)

// TeacherAvailabilityRepository reads declared teacher unavailability.
type TeacherAvailabilityRepository struct {
	db *sqlx.DB
}

// NewTeacherAvailabilityRepository builds repository.
func NewTeacherAvailabilityRepository(db *sqlx.DB) *TeacherAvailabilityRepository {
	return &TeacherAvailabilityRepository{db: db}
}

func (r *TeacherAvailabilityRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns every availability row ordered by teacher.
func (r *TeacherAvailabilityRepository) List(ctx context.Context, exec sqlx.ExtContext) ([]models.TeacherAvailability, error) {
	const query = `SELECT id, teacher_id, blocked_date, blocked_shift FROM teacher_availability ORDER BY teacher_id ASC, id ASC`
	var rows []models.TeacherAvailability
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query); err != nil {
		return nil, fmt.Errorf("list teacher availability: %w", err)
	}
	return rows, nil
}
