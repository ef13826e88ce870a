package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mesa-scheduler/internal/models"
)

func TestBuildSnapshotAggregatesNumbers(t *testing.T) {
	slot := slotAt("2025-10-10", models.ShiftFirst)
	later := slotAt("2025-10-15", models.ShiftSecond)
	units := []models.ExamUnit{
		examUnit(100, "b", 10, 1, 2, &slot, 7, 8, 9),
		examUnit(100, "a", 10, 1, 3, &slot, 7, 8, 9),
		examUnit(200, "a", 11, 1, 1, &later),
		examUnit(300, "c", 12, 2, 1, nil),
	}
	units[2].Priority = models.PriorityFirst
	group := models.ExamGroup{ID: 5, AreaID: 1}
	group.Add(100)
	group.Add(999)
	group.SetSlot(&slot)

	snap := BuildSnapshot(units, []models.ExamGroup{group}, []models.UngroupedEntry{models.NewUngroupedEntry(300, nil)})

	info, ok := snap.Number(100)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, info.Students)
	assert.Equal(t, map[string]int{"a": 3, "b": 2}, info.CourseYears)
	assert.Equal(t, []int64{7, 8, 9}, info.Teachers)
	assert.True(t, info.Dated)
	assert.Equal(t, slot, info.Slot)

	prio, _ := snap.Number(200)
	assert.True(t, prio.Priority)

	undated, _ := snap.Number(300)
	assert.False(t, undated.Dated)
	assert.Nil(t, undated.SlotPtr())

	assert.Equal(t, []int64{100, 200, 300}, snap.Numbers())
	id, ok := snap.GroupOf(100)
	require.True(t, ok)
	assert.Equal(t, int64(5), id)
	_, ok = snap.Entry(300)
	assert.True(t, ok)

	number, ok := snap.Enrolled("a", 11)
	require.True(t, ok)
	assert.Equal(t, int64(200), number)
	_, ok = snap.Enrolled("c", 10)
	assert.False(t, ok)

	assert.True(t, snap.StudentBusy("a", slot))
	assert.False(t, snap.StudentBusy("a", slot, 100))
	assert.False(t, snap.StudentBusy("c", slot))

	assert.Len(t, snap.History("a", 1), 2)
	assert.Empty(t, snap.History("c", 2))
	assert.Equal(t, 1, snap.Load(slot))
	assert.Equal(t, []models.Slot{slot, later}, snap.UsedSlots())
}

func TestSnapshotPlaceNumberReindexes(t *testing.T) {
	slot := slotAt("2025-10-10", models.ShiftFirst)
	target := slotAt("2025-10-12", models.ShiftFirst)
	snap := BuildSnapshot([]models.ExamUnit{examUnit(100, "a", 10, 1, 2, &slot)}, nil, nil)

	snap.placeNumber(100, &target)

	assert.False(t, snap.StudentBusy("a", slot))
	assert.True(t, snap.StudentBusy("a", target))
	require.Len(t, snap.History("a", 1), 1)
	assert.Equal(t, target, snap.History("a", 1)[0].Slot)
	assert.Equal(t, []models.Slot{target}, snap.UsedSlots())

	snap.placeNumber(100, nil)
	assert.Empty(t, snap.UsedSlots())
	assert.Empty(t, snap.History("a", 1))
}

func TestSnapshotInsertUnitJoinsNumber(t *testing.T) {
	slot := slotAt("2025-10-10", models.ShiftFirst)
	snap := BuildSnapshot([]models.ExamUnit{examUnit(100, "b", 10, 1, 2, &slot)}, nil, nil)

	snap.insertUnit(examUnit(100, "a", 10, 1, 2, &slot))

	info, _ := snap.Number(100)
	assert.Equal(t, []string{"a", "b"}, info.Students)
	assert.True(t, snap.StudentBusy("a", slot))
	assert.Len(t, snap.History("b", 1), 1)
}
