package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mesa-scheduler/internal/models"
)

const examGroupColumns = `id, area_id, number1, number2, number3, number4, exam_date, shift, created_at, updated_at`

// ExamGroupRepository persists exam groups and their row locks.
type ExamGroupRepository struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewExamGroupRepository builds repository. A positive lockTimeout bounds FOR UPDATE waits.
func NewExamGroupRepository(db *sqlx.DB, lockTimeout time.Duration) *ExamGroupRepository {
	return &ExamGroupRepository{db: db, lockTimeout: lockTimeout}
}

func (r *ExamGroupRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns every group ordered by id.
func (r *ExamGroupRepository) List(ctx context.Context, exec sqlx.ExtContext) ([]models.ExamGroup, error) {
	query := `SELECT ` + examGroupColumns + ` FROM exam_groups ORDER BY id ASC`
	var groups []models.ExamGroup
	if err := sqlx.SelectContext(ctx, r.exec(exec), &groups, query); err != nil {
		return nil, fmt.Errorf("list exam groups: %w", err)
	}
	return groups, nil
}

// LockAll takes an exclusive lock on every group row for the current transaction.
func (r *ExamGroupRepository) LockAll(ctx context.Context, exec sqlx.ExtContext) error {
	target := r.exec(exec)
	if err := setLockTimeout(ctx, target, r.lockTimeout); err != nil {
		return err
	}
	if _, err := target.ExecContext(ctx, `SELECT id FROM exam_groups ORDER BY id ASC FOR UPDATE`); err != nil {
		return translateLockError(fmt.Errorf("lock exam groups: %w", err), "exam groups are locked by another operation")
	}
	return nil
}

// LockByID locks and returns one group. Missing rows surface as sql.ErrNoRows.
func (r *ExamGroupRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.ExamGroup, error) {
	target := r.exec(exec)
	if err := setLockTimeout(ctx, target, r.lockTimeout); err != nil {
		return nil, err
	}
	query := `SELECT ` + examGroupColumns + ` FROM exam_groups WHERE id = $1 FOR UPDATE`
	var group models.ExamGroup
	if err := sqlx.GetContext(ctx, target, &group, query, id); err != nil {
		return nil, translateLockError(err, "exam group is locked by another operation")
	}
	return &group, nil
}

// LockByNumber locks and returns the group holding number. Missing rows surface as sql.ErrNoRows.
func (r *ExamGroupRepository) LockByNumber(ctx context.Context, exec sqlx.ExtContext, number int64) (*models.ExamGroup, error) {
	target := r.exec(exec)
	if err := setLockTimeout(ctx, target, r.lockTimeout); err != nil {
		return nil, err
	}
	query := `SELECT ` + examGroupColumns + ` FROM exam_groups
WHERE $1 IN (number1, number2, number3, number4)
ORDER BY id ASC LIMIT 1 FOR UPDATE`
	var group models.ExamGroup
	if err := sqlx.GetContext(ctx, target, &group, query, number); err != nil {
		return nil, translateLockError(err, "exam group is locked by another operation")
	}
	return &group, nil
}

// LockForMove locks the group with id and the group holding number, ascending by
// id, in one statement. A missing destination is not an error; callers check it.
func (r *ExamGroupRepository) LockForMove(ctx context.Context, exec sqlx.ExtContext, id, number int64) ([]models.ExamGroup, error) {
	target := r.exec(exec)
	if err := setLockTimeout(ctx, target, r.lockTimeout); err != nil {
		return nil, err
	}
	query := `SELECT ` + examGroupColumns + ` FROM exam_groups
WHERE id = $1 OR $2 IN (number1, number2, number3, number4)
ORDER BY id ASC FOR UPDATE`
	var groups []models.ExamGroup
	if err := sqlx.SelectContext(ctx, target, &groups, query, id, number); err != nil {
		return nil, translateLockError(fmt.Errorf("lock exam groups for move: %w", err), "exam groups are locked by another operation")
	}
	return groups, nil
}

// Create inserts a group and fills its generated id.
func (r *ExamGroupRepository) Create(ctx context.Context, exec sqlx.ExtContext, group *models.ExamGroup) error {
	now := time.Now().UTC()
	group.CreatedAt, group.UpdatedAt = now, now
	const query = `
INSERT INTO exam_groups (area_id, number1, number2, number3, number4, exam_date, shift, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`
	row := r.exec(exec).QueryRowxContext(ctx, query,
		group.AreaID,
		group.Number1,
		group.Number2,
		group.Number3,
		group.Number4,
		group.ExamDate,
		group.Shift,
		group.CreatedAt,
		group.UpdatedAt,
	)
	if err := row.Scan(&group.ID); err != nil {
		return fmt.Errorf("create exam group: %w", err)
	}
	return nil
}

// Update rewrites the member columns and slot of a group.
func (r *ExamGroupRepository) Update(ctx context.Context, exec sqlx.ExtContext, group *models.ExamGroup) error {
	group.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE exam_groups
SET number1 = $1, number2 = $2, number3 = $3, number4 = $4, exam_date = $5, shift = $6, updated_at = $7
WHERE id = $8`
	if _, err := r.exec(exec).ExecContext(ctx, query,
		group.Number1,
		group.Number2,
		group.Number3,
		group.Number4,
		group.ExamDate,
		group.Shift,
		group.UpdatedAt,
		group.ID,
	); err != nil {
		return fmt.Errorf("update exam group: %w", err)
	}
	return nil
}

// Delete removes a group row.
func (r *ExamGroupRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id int64) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM exam_groups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete exam group: %w", err)
	}
	return nil
}
