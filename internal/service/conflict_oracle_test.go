package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/mesa-scheduler/internal/models"
)

func TestUnitsShareStudent(t *testing.T) {
	assert.True(t, UnitsShareStudent([]string{"1", "2"}, []string{"3", "2"}))
	assert.False(t, UnitsShareStudent([]string{"1"}, []string{"2"}))
	assert.False(t, UnitsShareStudent(nil, []string{"2"}))
}

func TestConflictOracleTeacherBlocked(t *testing.T) {
	first := models.ShiftFirst
	second := models.ShiftSecond
	blockedDay := day("2025-10-10")
	oracle := NewConflictOracle([]models.TeacherAvailability{
		{TeacherID: 1, BlockedDate: &blockedDay},
		{TeacherID: 2, BlockedShift: &second},
		{TeacherID: 3, BlockedDate: &blockedDay, BlockedShift: &first},
	})

	cases := []struct {
		name    string
		teacher int64
		slot    models.Slot
		blocked bool
	}{
		{"date only blocks first shift", 1, slotAt("2025-10-10", models.ShiftFirst), true},
		{"date only blocks second shift", 1, slotAt("2025-10-10", models.ShiftSecond), true},
		{"date only leaves other days", 1, slotAt("2025-10-11", models.ShiftFirst), false},
		{"shift only blocks every date", 2, slotAt("2025-11-03", models.ShiftSecond), true},
		{"shift only leaves other shift", 2, slotAt("2025-11-03", models.ShiftFirst), false},
		{"date and shift needs both", 3, slotAt("2025-10-10", models.ShiftFirst), true},
		{"date and shift other shift free", 3, slotAt("2025-10-10", models.ShiftSecond), false},
		{"date and shift other date free", 3, slotAt("2025-10-11", models.ShiftFirst), false},
		{"unknown teacher", 9, slotAt("2025-10-10", models.ShiftFirst), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.blocked, oracle.TeacherBlocked(tc.teacher, tc.slot))
		})
	}

	assert.True(t, oracle.AnyTeacherBlocked([]int64{9, 1}, slotAt("2025-10-10", models.ShiftSecond)))
	assert.False(t, oracle.AnyTeacherBlocked(nil, slotAt("2025-10-10", models.ShiftSecond)))
}

func TestViolatesPrecedence(t *testing.T) {
	history := []Assignment{
		{Number: 10, CourseYear: 2, Slot: slotAt("2025-10-10", models.ShiftFirst)},
	}

	// A first-year exam after the second-year one breaks the order.
	assert.True(t, ViolatesPrecedence(1, slotAt("2025-10-15", models.ShiftFirst), history))
	// A third-year exam before it breaks it too.
	assert.True(t, ViolatesPrecedence(3, slotAt("2025-10-09", models.ShiftSecond), history))
	assert.False(t, ViolatesPrecedence(1, slotAt("2025-10-09", models.ShiftFirst), history))
	assert.False(t, ViolatesPrecedence(3, slotAt("2025-10-10", models.ShiftSecond), history))
	assert.False(t, ViolatesPrecedence(2, slotAt("2025-10-01", models.ShiftFirst), history))
	assert.False(t, ViolatesPrecedence(1, slotAt("2025-10-15", models.ShiftFirst), history, 10))
}
