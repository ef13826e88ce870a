package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/mesa-scheduler/internal/dto"
	"github.com/noah-isme/mesa-scheduler/internal/models"
	appErrors "github.com/noah-isme/mesa-scheduler/pkg/errors"
)

const (
	operationSplit        = "split_student"
	operationMove         = "move_number"
	operationAddMember    = "add_member"
	operationRemoveMember = "remove_member"
)

// GroupMutationService applies single-group edits under row locks and lists candidates.
type GroupMutationService struct {
	stores    ScheduleStores
	tx        txProvider
	engine    *schedulingEngine
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGroupMutationService wires the group mutators.
func NewGroupMutationService(stores ScheduleStores, tx txProvider, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, opts SchedulerOptions) *GroupMutationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupMutationService{
		stores:    stores,
		tx:        tx,
		engine:    newSchedulingEngine(opts, logger),
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// SplitStudentOut moves the student's rows of origin to a fresh undated number.
// It is a no-op, returning a nil number, when origin itself holds fewer students
// than the split threshold. The size of origin's group does not count.
func (s *GroupMutationService) SplitStudentOut(ctx context.Context, origin int64, req dto.SplitStudentRequest) (*dto.SplitResult, error) {
	if origin <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam number must be positive")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid split payload")
	}

	result := &dto.SplitResult{Origin: origin}
	err := s.mutate(ctx, operationSplit, func(tx *sqlx.Tx) error {
		if _, err := s.lockHolder(ctx, tx, origin); err != nil {
			return err
		}
		sess, err := openSession(ctx, tx, s.stores, s.logger, s.metrics)
		if err != nil {
			return err
		}
		info, ok := sess.snap.Number(origin)
		if !ok {
			return appErrors.Clone(appErrors.ErrNotFound, "exam number not found")
		}
		if !lo.Contains(info.Students, req.DNI) {
			return appErrors.Clone(appErrors.ErrNotFound, "student has no units on the exam number")
		}
		if len(info.Students) < s.engine.opts.SplitThreshold || len(info.Students) < 2 {
			return nil
		}
		target, err := sess.splitStudent(origin, req.DNI)
		if err != nil {
			return err
		}
		result.NewNumber = &target
		_, err = sess.normalize()
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MoveNumber takes number out of its group, if any, and into the first free column of
// the destination group, syncing the number to the destination's slot.
func (s *GroupMutationService) MoveNumber(ctx context.Context, number int64, req dto.MoveNumberRequest) (*dto.MoveResult, error) {
	if number <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam number must be positive")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid move payload")
	}

	result := &dto.MoveResult{Number: number, GroupID: req.GroupID}
	err := s.mutate(ctx, operationMove, func(tx *sqlx.Tx) error {
		origin, err := s.lockPair(ctx, tx, req.GroupID, number)
		if err != nil {
			return err
		}
		if origin != nil && origin.ID == req.GroupID {
			return appErrors.Clone(appErrors.ErrConflict, "number already belongs to the destination group")
		}
		sess, err := openSession(ctx, tx, s.stores, s.logger, s.metrics)
		if err != nil {
			return err
		}
		dest, err := s.admissible(sess, req.GroupID, number, true)
		if err != nil {
			return err
		}

		if origin != nil {
			current, ok := sess.snap.Group(origin.ID)
			if ok {
				if err := sess.removeMember(current, number); err != nil {
					return err
				}
				id := origin.ID
				result.OriginGroupID = &id
			}
		}
		column, err := sess.addMember(dest, number)
		if err != nil {
			return err
		}
		result.Column = column
		if slot, dated := dest.Slot(); dated {
			result.Slot = slotRef(&slot)
		}
		_, err = sess.normalize()
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddNumberToGroup adds an ungrouped number to a group. With targetDate, a student of
// the number holding a priority-1 unit dated strictly after targetDate makes it ineligible.
func (s *GroupMutationService) AddNumberToGroup(ctx context.Context, groupID int64, req dto.AddMemberRequest) (*dto.MoveResult, error) {
	if groupID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "group id must be positive")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid add member payload")
	}
	var target *time.Time
	if req.TargetDate != nil && *req.TargetDate != "" {
		parsed, err := models.ParseDate(*req.TargetDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "targetDate must use YYYY-MM-DD")
		}
		target = &parsed
	}

	result := &dto.MoveResult{Number: req.Number, GroupID: groupID}
	err := s.mutate(ctx, operationAddMember, func(tx *sqlx.Tx) error {
		holder, err := s.lockPair(ctx, tx, groupID, req.Number)
		if err != nil {
			return err
		}
		if holder != nil {
			if holder.ID == groupID {
				return appErrors.Clone(appErrors.ErrConflict, "number is already a member of the group")
			}
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("number belongs to group %d; move it instead", holder.ID))
		}
		sess, err := openSession(ctx, tx, s.stores, s.logger, s.metrics)
		if err != nil {
			return err
		}
		group, err := s.admissible(sess, groupID, req.Number, false)
		if err != nil {
			return err
		}
		if target != nil && priorityConflict(sess.snap, req.Number, *target) {
			return appErrors.Clone(appErrors.ErrConflict, "a student of the number has a priority exam after the target date")
		}

		column, err := sess.addMember(group, req.Number)
		if err != nil {
			return err
		}
		result.Column = column
		if slot, dated := group.Slot(); dated {
			result.Slot = slotRef(&slot)
		}
		_, err = sess.normalize()
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveNumberFromGroup clears number's column and records it as ungrouped carrying
// the group's slot. A number outside any group yields a nil origin.
func (s *GroupMutationService) RemoveNumberFromGroup(ctx context.Context, number int64) (*dto.RemoveResult, error) {
	if number <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam number must be positive")
	}

	result := &dto.RemoveResult{Number: number}
	err := s.mutate(ctx, operationRemoveMember, func(tx *sqlx.Tx) error {
		holder, err := s.lockHolder(ctx, tx, number)
		if err != nil {
			return err
		}
		sess, err := openSession(ctx, tx, s.stores, s.logger, s.metrics)
		if err != nil {
			return err
		}
		if _, ok := sess.snap.Number(number); !ok {
			return appErrors.Clone(appErrors.ErrNotFound, "exam number not found")
		}
		if holder == nil {
			return nil
		}
		group, ok := sess.snap.Group(holder.ID)
		if !ok {
			return nil
		}
		var carried *models.Slot
		if slot, dated := group.Slot(); dated {
			carried = &slot
		}
		if err := sess.removeMember(group, number); err != nil {
			return err
		}
		if err := sess.syncNumber(number, carried); err != nil {
			return err
		}
		if err := sess.markUngrouped(number, carried); err != nil {
			return err
		}
		id := holder.ID
		result.OriginGroupID = &id
		result.Slot = slotRef(carried)
		_, err = sess.normalize()
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListUngroupedCandidates lists ungrouped numbers with their eligibility for the target
// slot. Without a date every candidate is eligible. Results are cached per query.
func (s *GroupMutationService) ListUngroupedCandidates(ctx context.Context, query dto.CandidateQuery) ([]dto.UngroupedCandidate, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid candidate query")
	}
	var (
		date   *time.Time
		shifts = models.Shifts
	)
	if query.Date != nil && *query.Date != "" {
		parsed, err := models.ParseDate(*query.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "date must use YYYY-MM-DD")
		}
		date = &parsed
	}
	if query.Shift != nil && *query.Shift != "" {
		shift, err := models.ParseShift(*query.Shift)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "shift must be 1, 2, FIRST or SECOND")
		}
		shifts = []models.Shift{shift}
	}

	var shiftFilter *models.Shift
	if len(shifts) == 1 {
		shiftFilter = &shifts[0]
	}
	key := CandidatesKey(date, shiftFilter, query.Exclude)
	cached, hit, err := s.cache.Candidates(ctx, key)
	if err != nil {
		s.logger.Warn("candidate cache read failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		return cached, nil
	}

	sess, err := openSession(ctx, nil, s.stores, s.logger, s.metrics)
	if err != nil {
		return nil, err
	}
	scheduler := NewSlotScheduler(sess.oracle, nil, nil)

	candidates := make([]dto.UngroupedCandidate, 0)
	for _, entry := range sess.snap.Ungrouped() {
		if query.Exclude != nil && entry.Number == *query.Exclude {
			continue
		}
		if _, grouped := sess.snap.GroupOf(entry.Number); grouped {
			continue
		}
		info, ok := sess.snap.Number(entry.Number)
		if !ok {
			continue
		}
		candidate := dto.UngroupedCandidate{
			Number:    info.Number,
			SubjectID: info.SubjectID,
			AreaID:    info.AreaID,
			Teachers:  info.Teachers,
			Students:  info.Students,
			Slot:      slotRef(info.SlotPtr()),
			Eligible:  true,
		}
		if date != nil {
			candidate.Eligible, candidate.Reason = eligibility(sess.snap, scheduler, info.Number, *date, shifts)
		}
		candidates = append(candidates, candidate)
	}

	if err := s.cache.StoreCandidates(ctx, key, candidates); err != nil {
		s.logger.Warn("candidate cache write failed", zap.String("key", key), zap.Error(err))
	}
	return candidates, nil
}

func eligibility(snap *ScheduleSnapshot, scheduler *SlotScheduler, number int64, date time.Time, shifts []models.Shift) (bool, string) {
	if priorityConflict(snap, number, date) {
		return false, dto.ReasonPriorityConflict
	}
	reason := ""
	for _, shift := range shifts {
		ok, why := scheduler.Feasible(snap, []int64{number}, models.NewSlot(date, shift))
		if ok {
			return true, ""
		}
		if reason == "" {
			reason = why
		}
	}
	return false, reason
}

// priorityConflict reports whether a student of number holds another priority-1
// number dated strictly after date.
func priorityConflict(snap *ScheduleSnapshot, number int64, date time.Time) bool {
	info, ok := snap.Number(number)
	if !ok {
		return false
	}
	day := models.DateOnly(date)
	for _, other := range snap.Numbers() {
		if other == number {
			continue
		}
		candidate, _ := snap.Number(other)
		if !candidate.Priority || !candidate.Dated || !candidate.Slot.Date.After(day) {
			continue
		}
		if UnitsShareStudent(candidate.Students, info.Students) {
			return true
		}
	}
	return false
}

// admissible loads the group and checks number may join it. allowGrouped lets a
// member of another group through, for moves.
func (s *GroupMutationService) admissible(sess *scheduleSession, groupID, number int64, allowGrouped bool) (*models.ExamGroup, error) {
	group, ok := sess.snap.Group(groupID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "exam group not found")
	}
	info, ok := sess.snap.Number(number)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "exam number not found")
	}
	if group.Has(number) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "number is already a member of the group")
	}
	if _, grouped := sess.snap.GroupOf(number); grouped && !allowGrouped {
		return nil, appErrors.Clone(appErrors.ErrConflict, "number already belongs to another group")
	}
	if group.Size() >= s.engine.builder.MaxSize() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "destination group has no free slot")
	}
	if group.AreaID != info.AreaID {
		return nil, appErrors.Clone(appErrors.ErrConflict, "number belongs to a different area")
	}
	if UnitsShareStudent(sess.snap.GroupStudents(group), info.Students) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a student already sits an exam of the group")
	}
	if slot, dated := group.Slot(); dated {
		scheduler := NewSlotScheduler(sess.oracle, nil, nil)
		if ok, reason := scheduler.Feasible(sess.snap, []int64{number}, slot); !ok {
			return nil, appErrors.Clone(appErrors.ErrResourceShortage, "number cannot sit the group slot: "+reason)
		}
	}
	return group, nil
}

// lockPair locks the destination group and the group holding number in a single
// statement ordered by id, and returns the holder. Two-group mutations all lock
// through it, so concurrent cross moves queue on the lower id.
func (s *GroupMutationService) lockPair(ctx context.Context, tx *sqlx.Tx, groupID, number int64) (*models.ExamGroup, error) {
	groups, err := s.stores.Groups.LockForMove(ctx, tx, groupID, number)
	if err != nil {
		return nil, internalErr(err, "failed to lock exam groups")
	}
	if !lo.ContainsBy(groups, func(g models.ExamGroup) bool { return g.ID == groupID }) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "exam group not found")
	}
	for i := range groups {
		if groups[i].Has(number) {
			return &groups[i], nil
		}
	}
	return nil, nil
}

// lockHolder locks the group holding number, returning nil when it is ungrouped.
func (s *GroupMutationService) lockHolder(ctx context.Context, tx *sqlx.Tx, number int64) (*models.ExamGroup, error) {
	group, err := s.stores.Groups.LockByNumber(ctx, tx, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, internalErr(err, "failed to lock exam group")
	}
	return group, nil
}

// mutate runs fn in a committed transaction, then records metrics and drops cached candidates.
func (s *GroupMutationService) mutate(ctx context.Context, operation string, fn func(tx *sqlx.Tx) error) error {
	started := time.Now()
	committed, err := withTx(ctx, s.tx, false, fn)
	changes := 0
	if committed {
		changes = 1
	}
	observeRun(s.metrics, s.logger, operation, "", false, started, changes, err)
	if err != nil {
		return err
	}
	invalidateCandidates(ctx, s.cache, s.logger)
	return nil
}
