package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mesa-scheduler/internal/dto"
	"github.com/noah-isme/mesa-scheduler/internal/models"
)

func schedulerFixture(priority bool) (*ScheduleSnapshot, *SlotScheduler) {
	first := slotAt("2025-10-10", models.ShiftFirst)
	second := models.ShiftSecond
	undated := examUnit(1, "a", 10, 1, 2, nil, 7)
	if priority {
		undated.Priority = models.PriorityFirst
	}
	units := []models.ExamUnit{
		undated,
		examUnit(2, "b", 11, 1, 2, &first, 8),
		examUnit(3, "b", 12, 1, 3, nil, 9),
		examUnit(4, "b", 13, 1, 1, nil, 9),
	}
	snap := BuildSnapshot(units, nil, nil)
	oracle := NewConflictOracle([]models.TeacherAvailability{{TeacherID: 9, BlockedShift: &second}})
	return snap, NewSlotScheduler(oracle, nil, snap)
}

func TestSlotSchedulerFeasible(t *testing.T) {
	snap, scheduler := schedulerFixture(false)
	first := slotAt("2025-10-10", models.ShiftFirst)
	second := slotAt("2025-10-10", models.ShiftSecond)
	later := slotAt("2025-10-11", models.ShiftFirst)

	ok, reason := scheduler.Feasible(snap, []int64{1}, first)
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = scheduler.Feasible(snap, []int64{3}, second)
	assert.False(t, ok)
	assert.Equal(t, dto.ReasonTeacherUnavailable, reason)

	ok, reason = scheduler.Feasible(snap, []int64{3}, first)
	assert.False(t, ok)
	assert.Equal(t, dto.ReasonStudentBusy, reason)

	ok, reason = scheduler.Feasible(snap, []int64{4}, later)
	assert.False(t, ok)
	assert.Equal(t, dto.ReasonPrecedence, reason)

	// The number's own placement never blocks it.
	ok, _ = scheduler.Feasible(snap, []int64{2}, first)
	assert.True(t, ok)
}

func TestSlotSchedulerPickBalancesLoad(t *testing.T) {
	snap, scheduler := schedulerFixture(false)
	slots := BuildSlots(day("2025-10-10"), day("2025-10-10"), false)

	slot, ok := scheduler.Pick(snap, []int64{1}, slots)
	require.True(t, ok)
	assert.Equal(t, slotAt("2025-10-10", models.ShiftSecond), slot)

	scheduler.Reserve(slot, 2)
	slot, ok = scheduler.Pick(snap, []int64{1}, slots)
	require.True(t, ok)
	assert.Equal(t, slotAt("2025-10-10", models.ShiftFirst), slot)

	scheduler.Release(slotAt("2025-10-10", models.ShiftSecond), 5)
	slot, ok = scheduler.Pick(snap, []int64{1}, slots)
	require.True(t, ok)
	assert.Equal(t, slotAt("2025-10-10", models.ShiftSecond), slot)
}

func TestSlotSchedulerPickPriorityTakesEarliest(t *testing.T) {
	snap, scheduler := schedulerFixture(true)
	slots := BuildSlots(day("2025-10-10"), day("2025-10-11"), false)

	slot, ok := scheduler.Pick(snap, []int64{1}, slots)
	require.True(t, ok)
	assert.Equal(t, slotAt("2025-10-10", models.ShiftFirst), slot)
}

func TestSlotSchedulerPickNoFeasibleSlot(t *testing.T) {
	snap, scheduler := schedulerFixture(false)

	_, ok := scheduler.Pick(snap, []int64{3}, []models.Slot{
		slotAt("2025-10-10", models.ShiftFirst),
		slotAt("2025-10-10", models.ShiftSecond),
	})
	assert.False(t, ok)
}

func TestBuildSlotsSkipsWeekends(t *testing.T) {
	// 2025-10-10 is a Friday.
	slots := BuildSlots(day("2025-10-10"), day("2025-10-13"), true)
	require.Len(t, slots, 4)
	assert.Equal(t, slotAt("2025-10-10", models.ShiftFirst), slots[0])
	assert.Equal(t, slotAt("2025-10-10", models.ShiftSecond), slots[1])
	assert.Equal(t, slotAt("2025-10-13", models.ShiftFirst), slots[2])

	assert.Len(t, BuildSlots(day("2025-10-10"), day("2025-10-13"), false), 8)
	assert.Empty(t, BuildDates(day("2025-10-13"), day("2025-10-10"), false))
}
