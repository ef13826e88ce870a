package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/mesa-scheduler/internal/models"
	appErrors "github.com/noah-isme/mesa-scheduler/pkg/errors"
)

func TestNormalizeRestoresInvariants(t *testing.T) {
	m := newMemStore()
	slot := slotPtr("2025-10-10", models.ShiftFirst)
	other := slotPtr("2025-10-11", models.ShiftSecond)
	m.addUnit(examUnit(100, "a", 10, 1, 1, slot))
	m.addUnit(examUnit(101, "b", 11, 1, 1, nil))
	m.addUnit(examUnit(102, "c", 12, 1, 1, other))
	m.addUnit(examUnit(103, "d", 13, 1, 1, nil))
	m.addUnit(examUnit(104, "e", 14, 1, 1, other))

	// A one-member group whose partner was deleted.
	m.addGroup(1, slot, 100, 555)
	// A healthy group with a member out of sync.
	m.addGroup(1, other, 101, 102)
	// A group of deleted numbers only.
	m.addGroup(1, nil, 777, 778)
	// Entry for a grouped number, plus an orphan entry.
	m.addEntry(102, other)
	m.addEntry(999, nil)
	// 103 is tracked nowhere; 104 carries a stale slot on its entry.
	m.addEntry(104, nil)

	sess := openTestSession(t, m)
	report, err := sess.normalize()
	require.NoError(t, err)

	assert.Equal(t, 1, report.DemotedGroups)
	assert.Equal(t, 1, report.RemovedGroups)
	assert.Equal(t, 2, report.PurgedEntries)
	assert.Equal(t, 1, report.RegisteredEntries)
	assert.Equal(t, 2, report.ResyncedNumbers)
	assert.True(t, report.Changed())

	entry, ok := m.entries[100]
	require.True(t, ok)
	carried, dated := entry.Slot()
	require.True(t, dated)
	assert.Equal(t, *slot, carried)

	synced, dated := m.numberSlot(101)
	require.True(t, dated)
	assert.Equal(t, *other, synced)

	entry = m.entries[104]
	carried, dated = entry.Slot()
	require.True(t, dated)
	assert.Equal(t, *other, carried)

	assertScheduleInvariants(t, m)

	again, err := sess.normalize()
	require.NoError(t, err)
	assert.False(t, again.Changed())
}

func TestCreateGroupRejectsBadSizes(t *testing.T) {
	m := newMemStore()
	m.addUnit(examUnit(100, "a", 10, 1, 1, nil))
	m.addEntry(100, nil)
	sess := openTestSession(t, m)

	_, err := sess.createGroup(1, []int64{100}, nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConsistency))
}

func TestCreateGroupSyncsMembers(t *testing.T) {
	m := newMemStore()
	slot := slotPtr("2025-10-10", models.ShiftSecond)
	m.addUnit(examUnit(100, "a", 10, 1, 1, nil))
	m.addUnit(examUnit(101, "b", 11, 1, 1, nil))
	m.addEntry(100, nil)
	m.addEntry(101, nil)
	sess := openTestSession(t, m)

	group, err := sess.createGroup(1, []int64{100, 101}, slot)
	require.NoError(t, err)
	assert.NotZero(t, group.ID)
	assert.Empty(t, m.entries)
	for _, n := range []int64{100, 101} {
		got, dated := m.numberSlot(n)
		require.True(t, dated)
		assert.Equal(t, *slot, got)
	}
	assertScheduleInvariants(t, m)
}

func TestOpenSessionWrapsStoreErrors(t *testing.T) {
	m := newMemStore()
	m.failOn["units.list"] = errors.New("boom")

	_, err := openSession(context.Background(), nil, m.stores(), zap.NewNop(), nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

func TestSessionWriteErrorsKeepConsistencyCode(t *testing.T) {
	m := newMemStore()
	m.addUnit(examUnit(100, "a", 10, 1, 1, nil))
	m.addEntry(100, nil)
	sess := openTestSession(t, m)

	m.failOn["units.set_slot"] = appErrors.Clone(appErrors.ErrConsistency, "lock timeout")
	err := sess.setNumberSlot(100, slotPtr("2025-10-10", models.ShiftFirst))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConsistency))

	m.failOn["units.set_slot"] = errors.New("broken pipe")
	err = sess.setNumberSlot(100, nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}
