package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/mesa-scheduler/internal/dto"
	"github.com/noah-isme/mesa-scheduler/internal/models"
	appErrors "github.com/noah-isme/mesa-scheduler/pkg/errors"
)

func newReoptimizeService(t *testing.T, m *memStore, commit bool) *ReoptimizeService {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	if commit {
		mock.ExpectCommit()
	} else {
		mock.ExpectRollback()
	}
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return NewReoptimizeService(m.stores(), tx, nil, nil, nil, zap.NewNop(), SchedulerOptions{})
}

func foldFixture() (*memStore, int64) {
	m := newMemStore()
	slot := slotPtr("2025-10-10", models.ShiftFirst)
	stray := slotPtr("2025-10-11", models.ShiftFirst)
	m.addUnit(examUnit(100, "a", 10, 1, 1, slot))
	m.addUnit(examUnit(101, "b", 11, 1, 1, slot))
	m.addUnit(examUnit(102, "c", 12, 1, 1, stray))
	id := m.addGroup(1, slot, 100, 101)
	m.addEntry(102, stray)
	return m, id
}

func TestRunReoptimizeFoldsSinglesIntoGroups(t *testing.T) {
	m, id := foldFixture()
	svc := newReoptimizeService(t, m, true)

	report, err := svc.RunReoptimize(context.Background(), dto.ReoptimizeRequest{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Iterations)
	assert.Equal(t, 1, report.Changes)
	require.Len(t, report.Moves, 1)
	assert.Equal(t, dto.Move{
		Number:  102,
		GroupID: id,
		From:    &dto.SlotRef{Date: "2025-10-11", Shift: "FIRST"},
		To:      &dto.SlotRef{Date: "2025-10-10", Shift: "FIRST"},
	}, report.Moves[0])
	assert.Empty(t, report.Failures)
	assert.Equal(t, []int64{100, 101, 102}, m.groupNumbers(id))
	assertScheduleInvariants(t, m)
}

func TestRunReoptimizeIsIdempotent(t *testing.T) {
	m, _ := foldFixture()
	_, err := newReoptimizeService(t, m, true).RunReoptimize(context.Background(), dto.ReoptimizeRequest{})
	require.NoError(t, err)

	report, err := newReoptimizeService(t, m, true).RunReoptimize(context.Background(), dto.ReoptimizeRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Iterations)
	assert.Zero(t, report.Changes)
	assert.Empty(t, report.Moves)
	assert.Empty(t, report.NewGroups)
	assert.False(t, report.Normalization.Changed())
}

func TestRunReoptimizeFormsNewGroupsInRange(t *testing.T) {
	m := newMemStore()
	m.addUnit(examUnit(200, "x", 20, 2, 1, nil))
	m.addUnit(examUnit(201, "y", 21, 2, 1, nil))
	m.addEntry(200, nil)
	m.addEntry(201, nil)
	svc := newReoptimizeService(t, m, true)

	report, err := svc.RunReoptimize(context.Background(), dto.ReoptimizeRequest{
		StartDate: strPtr("2025-10-13"),
		EndDate:   strPtr("2025-10-13"),
	})
	require.NoError(t, err)

	require.Len(t, report.NewGroups, 1)
	assert.Equal(t, []int64{200, 201}, report.NewGroups[0].Numbers)
	assert.Equal(t, &dto.SlotRef{Date: "2025-10-13", Shift: "FIRST"}, report.NewGroups[0].Slot)
	assert.Equal(t, 1, report.Changes)
	assertScheduleInvariants(t, m)
}

func TestRunReoptimizeReportsFailures(t *testing.T) {
	m := newMemStore()
	first, second := models.ShiftFirst, models.ShiftSecond
	m.availability = []models.TeacherAvailability{
		{TeacherID: 9, BlockedShift: &first},
		{TeacherID: 9, BlockedShift: &second},
	}
	slot := slotPtr("2025-10-10", models.ShiftFirst)
	m.addUnit(examUnit(300, "p", 30, 3, 1, slot))
	m.addUnit(examUnit(301, "q", 31, 3, 1, nil, 9))
	m.addEntry(300, slot)
	m.addEntry(301, nil)
	svc := newReoptimizeService(t, m, true)

	report, err := svc.RunReoptimize(context.Background(), dto.ReoptimizeRequest{MaxIter: 5})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Iterations)
	assert.Zero(t, report.Changes)
	assert.Equal(t, []dto.Failure{
		{Number: 300, Reason: "no_compatible_group"},
		{Number: 301, Reason: "no_slot"},
	}, report.Failures)
	assertScheduleInvariants(t, m)
}

func TestRunReoptimizeRespectsAreaFilter(t *testing.T) {
	m, id := foldFixture()
	svc := newReoptimizeService(t, m, true)

	report, err := svc.RunReoptimize(context.Background(), dto.ReoptimizeRequest{AreaID: int64Ptr(9)})
	require.NoError(t, err)

	assert.Zero(t, report.Changes)
	assert.Equal(t, []int64{100, 101}, m.groupNumbers(id))
}

func TestRunReoptimizeDryRunRollsBack(t *testing.T) {
	m, _ := foldFixture()
	svc := newReoptimizeService(t, m, false)

	report, err := svc.RunReoptimize(context.Background(), dto.ReoptimizeRequest{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Changes)
}

func TestRunReoptimizeValidation(t *testing.T) {
	m := newMemStore()
	tx, _ := newTxProviderMock(t)
	svc := NewReoptimizeService(m.stores(), tx, nil, nil, nil, zap.NewNop(), SchedulerOptions{})

	cases := []dto.ReoptimizeRequest{
		{MaxIter: 101},
		{StartDate: strPtr("2025-10-13")},
		{StartDate: strPtr("2025-10-13"), EndDate: strPtr("2025-10-01")},
		{AreaID: int64Ptr(-1)},
	}
	for _, req := range cases {
		_, err := svc.RunReoptimize(context.Background(), req)
		require.Error(t, err)
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation), "request %+v", req)
	}
}

func TestRunReoptimizeInvalidatesCandidatesWhenOnlyNormalizing(t *testing.T) {
	m := newMemStore()
	// An entry without units is purged by the post-step and nothing else changes.
	m.addEntry(777, nil)
	cached := newMemCache()
	cached.items[CandidatesKey(nil, nil, nil)] = []byte("[]")

	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	cache := NewCacheService(cached, nil, time.Minute, zap.NewNop(), true)
	svc := NewReoptimizeService(m.stores(), tx, cache, nil, nil, zap.NewNop(), SchedulerOptions{})

	report, err := svc.RunReoptimize(context.Background(), dto.ReoptimizeRequest{})
	require.NoError(t, err)

	assert.Zero(t, report.Changes)
	assert.Equal(t, 1, report.Normalization.PurgedEntries)
	assert.Empty(t, cached.items)
}
