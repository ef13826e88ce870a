package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mesa-scheduler/internal/models"
)

// UngroupedRepository persists numbers that sit outside any group.
type UngroupedRepository struct {
	db *sqlx.DB
}

// NewUngroupedRepository builds repository.
func NewUngroupedRepository(db *sqlx.DB) *UngroupedRepository {
	return &UngroupedRepository{db: db}
}

func (r *UngroupedRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns every ungrouped entry ordered by number.
func (r *UngroupedRepository) List(ctx context.Context, exec sqlx.ExtContext) ([]models.UngroupedEntry, error) {
	const query = `SELECT number, exam_date, shift, created_at FROM ungrouped_entries ORDER BY number ASC`
	var entries []models.UngroupedEntry
	if err := sqlx.SelectContext(ctx, r.exec(exec), &entries, query); err != nil {
		return nil, fmt.Errorf("list ungrouped entries: %w", err)
	}
	return entries, nil
}

// Upsert records the entry or refreshes the slot it carries.
func (r *UngroupedRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, entry models.UngroupedEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO ungrouped_entries (number, exam_date, shift, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (number) DO UPDATE
SET exam_date = EXCLUDED.exam_date,
    shift = EXCLUDED.shift`
	if _, err := r.exec(exec).ExecContext(ctx, query, entry.Number, entry.ExamDate, entry.Shift, entry.CreatedAt); err != nil {
		return fmt.Errorf("upsert ungrouped entry: %w", err)
	}
	return nil
}

// Delete removes the entry for number; absent entries are not an error.
func (r *UngroupedRepository) Delete(ctx context.Context, exec sqlx.ExtContext, number int64) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM ungrouped_entries WHERE number = $1`, number); err != nil {
		return fmt.Errorf("delete ungrouped entry: %w", err)
	}
	return nil
}
