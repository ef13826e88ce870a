package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mesa-scheduler/internal/models"
)

// TeacherRepository reads the examiner registry.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository builds repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

func (r *TeacherRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListActive returns active teachers ordered by id.
func (r *TeacherRepository) ListActive(ctx context.Context, exec sqlx.ExtContext) ([]models.Teacher, error) {
	const query = `SELECT id, full_name, area_id, active FROM teachers WHERE active = TRUE ORDER BY id ASC`
	var teachers []models.Teacher
	if err := sqlx.SelectContext(ctx, r.exec(exec), &teachers, query); err != nil {
		return nil, fmt.Errorf("list active teachers: %w", err)
	}
	return teachers, nil
}
