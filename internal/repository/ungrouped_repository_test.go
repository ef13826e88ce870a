package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mesa-scheduler/internal/models"
)

func TestUngroupedRepositoryUpsertAndDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUngroupedRepository(db)

	slot := models.NewSlot(time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC), models.ShiftFirst)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ungrouped_entries")).
		WithArgs(int64(100), slot.Date, "FIRST", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ungrouped_entries")).
		WithArgs(int64(101), nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM ungrouped_entries WHERE number = $1")).
		WithArgs(int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), nil, models.NewUngroupedEntry(100, &slot)))
	require.NoError(t, repo.Upsert(context.Background(), nil, models.NewUngroupedEntry(101, nil)))
	require.NoError(t, repo.Delete(context.Background(), nil, 100))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUngroupedRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUngroupedRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT number, exam_date, shift, created_at FROM ungrouped_entries ORDER BY number ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"number", "exam_date", "shift", "created_at"}).
			AddRow(100, time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC), "FIRST", time.Now()).
			AddRow(101, nil, nil, time.Now()))

	entries, err := repo.List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	_, dated := entries[0].Slot()
	assert.True(t, dated)
	_, dated = entries[1].Slot()
	assert.False(t, dated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
