package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mesa-scheduler/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestExamUnitRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamUnitRepository(db)

	date := time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "number", "dni", "subject_id", "area_id", "course_year", "teacher1_id", "teacher2_id", "teacher3_id", "exam_date", "shift", "priority", "created_at"}).
		AddRow(1, 100, "12345678", 7, 3, 2, 11, 12, 13, date, "FIRST", 1, time.Now()).
		AddRow(2, 101, "87654321", 8, 3, 1, 11, nil, nil, nil, nil, 0, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, number, dni, subject_id, area_id, course_year, teacher1_id, teacher2_id, teacher3_id, exam_date, shift, priority, created_at FROM exam_units ORDER BY number ASC, dni ASC")).
		WillReturnRows(rows)

	units, err := repo.List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, units, 2)

	slot, ok := units[0].Slot()
	require.True(t, ok)
	assert.Equal(t, models.NewSlot(date, models.ShiftFirst), slot)
	assert.Equal(t, []int64{11, 12, 13}, units[0].Teachers())
	assert.True(t, units[0].IsPriority())

	_, ok = units[1].Slot()
	assert.False(t, ok)
	assert.Equal(t, []int64{11}, units[1].Teachers())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamUnitRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamUnitRepository(db)

	slot := models.NewSlot(time.Date(2025, 10, 13, 0, 0, 0, 0, time.UTC), models.ShiftSecond)
	unit := &models.ExamUnit{Number: 200, DNI: "12345678", SubjectID: 7, AreaID: 3, CourseYear: 2, ExamDate: slot.DatePtr(), Shift: slot.ShiftPtr()}
	unit.SetPanel([]int64{11, 12, 13})

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO exam_units")).
		WithArgs(int64(200), "12345678", int64(7), int64(3), 2, int64(11), int64(12), int64(13), slot.Date, "SECOND", 0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(55))

	require.NoError(t, repo.Create(context.Background(), nil, unit))
	assert.Equal(t, int64(55), unit.ID)
	assert.False(t, unit.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamUnitRepositoryNextNumber(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamUnitRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT nextval('exam_unit_numbers')")).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(901))

	number, err := repo.NextNumber(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(901), number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamUnitRepositorySetNumberSlot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamUnitRepository(db)

	slot := models.NewSlot(time.Date(2025, 10, 14, 0, 0, 0, 0, time.UTC), models.ShiftFirst)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE exam_units SET exam_date = $1, shift = $2 WHERE number = $3")).
		WithArgs(slot.Date, "FIRST", int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE exam_units SET exam_date = $1, shift = $2 WHERE number = $3")).
		WithArgs(nil, nil, int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.SetNumberSlot(context.Background(), nil, 100, &slot))
	require.NoError(t, repo.SetNumberSlot(context.Background(), nil, 100, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamUnitRepositoryReassignStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamUnitRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE exam_units SET number = $1, exam_date = NULL, shift = NULL WHERE number = $2 AND dni = $3")).
		WithArgs(int64(300), int64(100), "12345678").
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.ReassignStudent(context.Background(), nil, 100, "12345678", 300)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}
