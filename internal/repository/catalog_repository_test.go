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

func TestEnrollmentRepositoryListPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "dni", "subject_id", "course_year", "status", "registered_at"}).
		AddRow(1, "12345678", 7, 1, "INSCRIBED", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments\nWHERE status = $1 ORDER BY dni ASC, course_year ASC, registered_at ASC, id ASC")).
		WithArgs("INSCRIBED").
		WillReturnRows(rows)

	records, err := repo.ListPending(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.EnrollmentStatusInscribed, records[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "area_id", "course_year", "lead_teacher_id"}).
		AddRow(7, "Matematica I", 3, 1, 11).
		AddRow(8, "Historia", nil, 2, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, area_id, course_year, lead_teacher_id FROM subjects ORDER BY id ASC")).
		WillReturnRows(rows)

	subjects, err := repo.List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.True(t, subjects[0].Resolvable())
	assert.False(t, subjects[1].Resolvable())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryListActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM teachers WHERE active = TRUE ORDER BY id ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "area_id", "active"}).
			AddRow(11, "Ana Ruiz", 3, true))

	teachers, err := repo.ListActive(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, teachers, 1)
	assert.Equal(t, int64(3), *teachers[0].AreaID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAvailabilityRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherAvailabilityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM teacher_availability ORDER BY teacher_id ASC, id ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "teacher_id", "blocked_date", "blocked_shift"}).
			AddRow(1, 11, time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC), nil).
			AddRow(2, 12, nil, "SECOND"))

	rows, err := repo.List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].BlockedShift)
	assert.Equal(t, models.ShiftSecond, *rows[1].BlockedShift)
	assert.NoError(t, mock.ExpectationsWereMet())
}
