package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/mesa-scheduler/internal/dto"
	"github.com/noah-isme/mesa-scheduler/internal/models"
	appErrors "github.com/noah-isme/mesa-scheduler/pkg/errors"
)

type examUnitStore interface {
	List(ctx context.Context, exec sqlx.ExtContext) ([]models.ExamUnit, error)
	Create(ctx context.Context, exec sqlx.ExtContext, unit *models.ExamUnit) error
	NextNumber(ctx context.Context, exec sqlx.ExtContext) (int64, error)
	SetNumberSlot(ctx context.Context, exec sqlx.ExtContext, number int64, slot *models.Slot) error
	ReassignStudent(ctx context.Context, exec sqlx.ExtContext, origin int64, dni string, target int64) (int64, error)
}

type examGroupStore interface {
	List(ctx context.Context, exec sqlx.ExtContext) ([]models.ExamGroup, error)
	LockAll(ctx context.Context, exec sqlx.ExtContext) error
	LockByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.ExamGroup, error)
	LockByNumber(ctx context.Context, exec sqlx.ExtContext, number int64) (*models.ExamGroup, error)
	LockForMove(ctx context.Context, exec sqlx.ExtContext, id, number int64) ([]models.ExamGroup, error)
	Create(ctx context.Context, exec sqlx.ExtContext, group *models.ExamGroup) error
	Update(ctx context.Context, exec sqlx.ExtContext, group *models.ExamGroup) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id int64) error
}

type ungroupedStore interface {
	List(ctx context.Context, exec sqlx.ExtContext) ([]models.UngroupedEntry, error)
	Upsert(ctx context.Context, exec sqlx.ExtContext, entry models.UngroupedEntry) error
	Delete(ctx context.Context, exec sqlx.ExtContext, number int64) error
}

type availabilityReader interface {
	List(ctx context.Context, exec sqlx.ExtContext) ([]models.TeacherAvailability, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// ScheduleStores bundles the persistence the scheduling engine writes through.
type ScheduleStores struct {
	Units        examUnitStore
	Groups       examGroupStore
	Ungrouped    ungroupedStore
	Availability availabilityReader
}

// scheduleSession carries one transaction's executor, snapshot and oracle. Every
// structural write goes through it so the snapshot mirrors the store.
type scheduleSession struct {
	ctx     context.Context
	exec    sqlx.ExtContext
	stores  ScheduleStores
	oracle  *ConflictOracle
	snap    *ScheduleSnapshot
	logger  *zap.Logger
	metrics *MetricsService
}

func openSession(ctx context.Context, exec sqlx.ExtContext, stores ScheduleStores, logger *zap.Logger, metrics *MetricsService) (*scheduleSession, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rows, err := stores.Availability.List(ctx, exec)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher availability")
	}
	sess := &scheduleSession{
		ctx:     ctx,
		exec:    exec,
		stores:  stores,
		oracle:  NewConflictOracle(rows),
		logger:  logger,
		metrics: metrics,
	}
	if err := sess.refresh(); err != nil {
		return nil, err
	}
	return sess, nil
}

// refresh rebuilds the snapshot from the store. Called at checkpoints after corrective writes.
func (s *scheduleSession) refresh() error {
	start := time.Now()
	defer func() { s.metrics.ObserveDBQuery("schedule_snapshot", time.Since(start)) }()
	units, err := s.stores.Units.List(s.ctx, s.exec)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam units")
	}
	groups, err := s.stores.Groups.List(s.ctx, s.exec)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam groups")
	}
	entries, err := s.stores.Ungrouped.List(s.ctx, s.exec)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ungrouped entries")
	}
	s.snap = BuildSnapshot(units, groups, entries)
	return nil
}

func internalErr(err error, message string) error {
	if appErrors.Is(err, appErrors.ErrConsistency) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// setNumberSlot writes the slot of every row of number.
func (s *scheduleSession) setNumberSlot(number int64, slot *models.Slot) error {
	if err := s.stores.Units.SetNumberSlot(s.ctx, s.exec, number, slot); err != nil {
		return internalErr(err, "failed to update exam number slot")
	}
	s.snap.placeNumber(number, slot)
	return nil
}

// markUngrouped records number as ungrouped carrying slot.
func (s *scheduleSession) markUngrouped(number int64, slot *models.Slot) error {
	entry := models.NewUngroupedEntry(number, slot)
	if err := s.stores.Ungrouped.Upsert(s.ctx, s.exec, entry); err != nil {
		return internalErr(err, "failed to record ungrouped entry")
	}
	s.snap.putUngrouped(entry)
	return nil
}

// ensureUngrouped is markUngrouped without the write when an identical entry exists.
func (s *scheduleSession) ensureUngrouped(number int64, slot *models.Slot) error {
	if entry, ok := s.snap.Entry(number); ok {
		current, dated := entry.Slot()
		if (!dated && slot == nil) || (dated && slot != nil && current == *slot) {
			return nil
		}
	}
	return s.markUngrouped(number, slot)
}

func (s *scheduleSession) clearUngrouped(number int64) error {
	if _, ok := s.snap.Entry(number); !ok {
		return nil
	}
	if err := s.stores.Ungrouped.Delete(s.ctx, s.exec, number); err != nil {
		return internalErr(err, "failed to remove ungrouped entry")
	}
	s.snap.dropUngrouped(number)
	return nil
}

// createGroup persists a group of numbers at slot and syncs every member to it.
func (s *scheduleSession) createGroup(areaID int64, numbers []int64, slot *models.Slot) (*models.ExamGroup, error) {
	if len(numbers) < 2 || len(numbers) > models.GroupColumns {
		return nil, appErrors.Clone(appErrors.ErrConsistency, "exam groups must hold between 2 and 4 numbers")
	}
	group := &models.ExamGroup{AreaID: areaID}
	for _, n := range numbers {
		group.Add(n)
	}
	group.SetSlot(slot)
	if err := s.stores.Groups.Create(s.ctx, s.exec, group); err != nil {
		return nil, internalErr(err, "failed to create exam group")
	}
	s.snap.putGroup(group.Clone())
	for _, n := range numbers {
		if err := s.clearUngrouped(n); err != nil {
			return nil, err
		}
		if err := s.syncNumber(n, slot); err != nil {
			return nil, err
		}
	}
	return group, nil
}

func (s *scheduleSession) syncNumber(number int64, slot *models.Slot) error {
	info, ok := s.snap.Number(number)
	if !ok {
		return nil
	}
	if slotsEqual(info.SlotPtr(), slot) {
		return nil
	}
	return s.setNumberSlot(number, slot)
}

// addMember puts number into the first free column of group and syncs its slot.
func (s *scheduleSession) addMember(group *models.ExamGroup, number int64) (int, error) {
	updated := group.Clone()
	column := updated.Add(number)
	if column == 0 {
		return 0, appErrors.Clone(appErrors.ErrConflict, "destination group has no free slot")
	}
	if err := s.stores.Groups.Update(s.ctx, s.exec, updated); err != nil {
		return 0, internalErr(err, "failed to update exam group")
	}
	s.snap.putGroup(updated)
	*group = *updated.Clone()
	if err := s.clearUngrouped(number); err != nil {
		return 0, err
	}
	slot, dated := updated.Slot()
	var target *models.Slot
	if dated {
		target = &slot
	}
	if err := s.syncNumber(number, target); err != nil {
		return 0, err
	}
	return column, nil
}

// removeMember clears number's column. The caller decides what the number becomes.
func (s *scheduleSession) removeMember(group *models.ExamGroup, number int64) error {
	updated := group.Clone()
	if !updated.Remove(number) {
		return nil
	}
	if err := s.stores.Groups.Update(s.ctx, s.exec, updated); err != nil {
		return internalErr(err, "failed to update exam group")
	}
	s.snap.putGroup(updated)
	*group = *updated.Clone()
	return nil
}

func (s *scheduleSession) deleteGroup(id int64) error {
	if err := s.stores.Groups.Delete(s.ctx, s.exec, id); err != nil {
		return internalErr(err, "failed to delete exam group")
	}
	s.snap.dropGroup(id)
	return nil
}

// dissolveGroup deletes the group and leaves every member undated and ungrouped.
func (s *scheduleSession) dissolveGroup(group *models.ExamGroup) ([]int64, error) {
	members := group.Numbers()
	if err := s.deleteGroup(group.ID); err != nil {
		return nil, err
	}
	for _, n := range members {
		if err := s.setNumberSlot(n, nil); err != nil {
			return nil, err
		}
		if err := s.markUngrouped(n, nil); err != nil {
			return nil, err
		}
	}
	return members, nil
}

// splitStudent moves dni's rows of origin to a fresh, undated, ungrouped number.
func (s *scheduleSession) splitStudent(origin int64, dni string) (int64, error) {
	target, err := s.stores.Units.NextNumber(s.ctx, s.exec)
	if err != nil {
		return 0, internalErr(err, "failed to allocate exam number")
	}
	affected, err := s.stores.Units.ReassignStudent(s.ctx, s.exec, origin, dni, target)
	if err != nil {
		return 0, internalErr(err, "failed to split student units")
	}
	if affected == 0 {
		return 0, appErrors.Clone(appErrors.ErrNotFound, "student has no units on the exam number")
	}
	if err := s.stores.Ungrouped.Upsert(s.ctx, s.exec, models.NewUngroupedEntry(target, nil)); err != nil {
		return 0, internalErr(err, "failed to record ungrouped entry")
	}
	if err := s.refresh(); err != nil {
		return 0, err
	}
	return target, nil
}

// detachNumber takes number out of its group, undated, leaving the rest of the group as it was.
func (s *scheduleSession) detachNumber(number int64) error {
	if id, ok := s.snap.GroupOf(number); ok {
		group, _ := s.snap.Group(id)
		if err := s.removeMember(group, number); err != nil {
			return err
		}
	}
	if err := s.setNumberSlot(number, nil); err != nil {
		return err
	}
	return s.markUngrouped(number, nil)
}

// deferNumber clears number's slot; a group holding it is dissolved since its slot is no longer valid for every member.
func (s *scheduleSession) deferNumber(number int64) ([]int64, error) {
	if id, ok := s.snap.GroupOf(number); ok {
		group, _ := s.snap.Group(id)
		return s.dissolveGroup(group)
	}
	if err := s.setNumberSlot(number, nil); err != nil {
		return nil, err
	}
	if err := s.markUngrouped(number, nil); err != nil {
		return nil, err
	}
	return []int64{number}, nil
}

// normalize is the always-run post-step restoring the structural invariants:
// groups hold 2..4 known numbers, every number sits in exactly one group or entry,
// and members and entries carry their number's slot.
func (s *scheduleSession) normalize() (dto.NormalizationReport, error) {
	var report dto.NormalizationReport

	for _, group := range s.snap.Groups() {
		for _, n := range group.Numbers() {
			if _, ok := s.snap.Number(n); ok {
				continue
			}
			if err := s.removeMember(group, n); err != nil {
				return report, err
			}
		}
		switch group.Size() {
		case 0:
			if err := s.deleteGroup(group.ID); err != nil {
				return report, err
			}
			report.RemovedGroups++
		case 1:
			last := group.Numbers()[0]
			slot, dated := group.Slot()
			var carried *models.Slot
			if dated {
				carried = &slot
			}
			if err := s.deleteGroup(group.ID); err != nil {
				return report, err
			}
			if err := s.syncNumber(last, carried); err != nil {
				return report, err
			}
			if err := s.markUngrouped(last, carried); err != nil {
				return report, err
			}
			report.DemotedGroups++
		}
	}

	for _, entry := range s.snap.Ungrouped() {
		_, grouped := s.snap.GroupOf(entry.Number)
		_, known := s.snap.Number(entry.Number)
		if !grouped && known {
			continue
		}
		if err := s.stores.Ungrouped.Delete(s.ctx, s.exec, entry.Number); err != nil {
			return report, internalErr(err, "failed to purge ungrouped entry")
		}
		s.snap.dropUngrouped(entry.Number)
		report.PurgedEntries++
	}

	for _, n := range s.snap.Numbers() {
		if _, grouped := s.snap.GroupOf(n); grouped {
			continue
		}
		if _, tracked := s.snap.Entry(n); tracked {
			continue
		}
		info, _ := s.snap.Number(n)
		if err := s.markUngrouped(n, info.SlotPtr()); err != nil {
			return report, err
		}
		report.RegisteredEntries++
	}

	for _, group := range s.snap.Groups() {
		slot, dated := group.Slot()
		var target *models.Slot
		if dated {
			target = &slot
		}
		for _, n := range group.Numbers() {
			info, _ := s.snap.Number(n)
			if slotsEqual(info.SlotPtr(), target) {
				continue
			}
			if err := s.setNumberSlot(n, target); err != nil {
				return report, err
			}
			report.ResyncedNumbers++
		}
	}
	for _, entry := range s.snap.Ungrouped() {
		info, _ := s.snap.Number(entry.Number)
		slot, dated := entry.Slot()
		var carried *models.Slot
		if dated {
			carried = &slot
		}
		if slotsEqual(info.SlotPtr(), carried) {
			continue
		}
		if err := s.markUngrouped(entry.Number, info.SlotPtr()); err != nil {
			return report, err
		}
		report.ResyncedNumbers++
	}

	if report.Changed() {
		s.logger.Info("schedule normalized",
			zap.Int("demoted_groups", report.DemotedGroups),
			zap.Int("removed_groups", report.RemovedGroups),
			zap.Int("purged_entries", report.PurgedEntries),
			zap.Int("registered_entries", report.RegisteredEntries),
			zap.Int("resynced_numbers", report.ResyncedNumbers),
		)
	}
	return report, nil
}

func slotsEqual(a, b *models.Slot) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func slotRef(slot *models.Slot) *dto.SlotRef {
	if slot == nil {
		return nil
	}
	return &dto.SlotRef{Date: slot.Date.Format(models.DateLayout), Shift: string(slot.Shift)}
}

func groupSummary(group *models.ExamGroup) dto.GroupSummary {
	summary := dto.GroupSummary{GroupID: group.ID, AreaID: group.AreaID, Numbers: group.Numbers()}
	if slot, ok := group.Slot(); ok {
		summary.Slot = slotRef(&slot)
	}
	return summary
}
