package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mesa-scheduler/internal/models"
)

const examUnitColumns = `id, number, dni, subject_id, area_id, course_year, teacher1_id, teacher2_id, teacher3_id, exam_date, shift, priority, created_at`

// ExamUnitRepository persists exam units ("mesas").
type ExamUnitRepository struct {
	db *sqlx.DB
}

// NewExamUnitRepository builds repository.
func NewExamUnitRepository(db *sqlx.DB) *ExamUnitRepository {
	return &ExamUnitRepository{db: db}
}

func (r *ExamUnitRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns every exam unit ordered by number then student.
func (r *ExamUnitRepository) List(ctx context.Context, exec sqlx.ExtContext) ([]models.ExamUnit, error) {
	query := `SELECT ` + examUnitColumns + ` FROM exam_units ORDER BY number ASC, dni ASC`
	var units []models.ExamUnit
	if err := sqlx.SelectContext(ctx, r.exec(exec), &units, query); err != nil {
		return nil, fmt.Errorf("list exam units: %w", err)
	}
	return units, nil
}

// Create inserts a unit and fills its generated id.
func (r *ExamUnitRepository) Create(ctx context.Context, exec sqlx.ExtContext, unit *models.ExamUnit) error {
	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO exam_units (number, dni, subject_id, area_id, course_year, teacher1_id, teacher2_id, teacher3_id, exam_date, shift, priority, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`
	row := r.exec(exec).QueryRowxContext(ctx, query,
		unit.Number,
		unit.DNI,
		unit.SubjectID,
		unit.AreaID,
		unit.CourseYear,
		unit.Teacher1ID,
		unit.Teacher2ID,
		unit.Teacher3ID,
		unit.ExamDate,
		unit.Shift,
		unit.Priority,
		unit.CreatedAt,
	)
	if err := row.Scan(&unit.ID); err != nil {
		return fmt.Errorf("create exam unit: %w", err)
	}
	return nil
}

// NextNumber draws a fresh exam number from the sequence.
func (r *ExamUnitRepository) NextNumber(ctx context.Context, exec sqlx.ExtContext) (int64, error) {
	var number int64
	if err := sqlx.GetContext(ctx, r.exec(exec), &number, `SELECT nextval('exam_unit_numbers')`); err != nil {
		return 0, fmt.Errorf("next exam number: %w", err)
	}
	return number, nil
}

// SetNumberSlot writes the slot, or clears it when slot is nil, on every row of a number.
func (r *ExamUnitRepository) SetNumberSlot(ctx context.Context, exec sqlx.ExtContext, number int64, slot *models.Slot) error {
	var (
		date  *time.Time
		shift *models.Shift
	)
	if slot != nil {
		date, shift = slot.DatePtr(), slot.ShiftPtr()
	}
	const query = `UPDATE exam_units SET exam_date = $1, shift = $2 WHERE number = $3`
	if _, err := r.exec(exec).ExecContext(ctx, query, date, shift, number); err != nil {
		return fmt.Errorf("set exam number slot: %w", err)
	}
	return nil
}

// ReassignStudent moves one student's rows from origin to target and clears their slot.
func (r *ExamUnitRepository) ReassignStudent(ctx context.Context, exec sqlx.ExtContext, origin int64, dni string, target int64) (int64, error) {
	const query = `UPDATE exam_units SET number = $1, exam_date = NULL, shift = NULL WHERE number = $2 AND dni = $3`
	res, err := r.exec(exec).ExecContext(ctx, query, target, origin, dni)
	if err != nil {
		return 0, fmt.Errorf("reassign student units: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reassign student units: %w", err)
	}
	return affected, nil
}
