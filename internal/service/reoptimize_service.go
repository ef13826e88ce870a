package service

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/mesa-scheduler/internal/dto"
	"github.com/noah-isme/mesa-scheduler/internal/models"
	appErrors "github.com/noah-isme/mesa-scheduler/pkg/errors"
)

const operationReoptimize = "reoptimize"

// Failure reasons reported by reoptimization.
const (
	failureNoCompatibleGroup = "no_compatible_group"
	failureNoSlot            = "no_slot"
)

// ReoptimizeService consolidates ungrouped numbers until the schedule stops changing.
type ReoptimizeService struct {
	stores    ScheduleStores
	tx        txProvider
	engine    *schedulingEngine
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReoptimizeService wires the consolidation loop.
func NewReoptimizeService(stores ScheduleStores, tx txProvider, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, opts SchedulerOptions) *ReoptimizeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReoptimizeService{
		stores:    stores,
		tx:        tx,
		engine:    newSchedulingEngine(opts, logger),
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// RunReoptimize folds ungrouped numbers into compatible groups and forms new groups
// from local pools, pass after pass, until a pass changes nothing or maxIter passes ran.
func (s *ReoptimizeService) RunReoptimize(ctx context.Context, req dto.ReoptimizeRequest) (*dto.ReoptimizeReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reoptimize payload")
	}
	start, end, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	maxIter := req.MaxIter
	if maxIter <= 0 {
		maxIter = s.engine.opts.MaxIterations
	}

	started := time.Now()
	report := &dto.ReoptimizeReport{RunID: uuid.NewString(), DryRun: req.DryRun}
	committed, err := withTx(ctx, s.tx, req.DryRun, func(tx *sqlx.Tx) error {
		if err := s.stores.Groups.LockAll(ctx, tx); err != nil {
			return internalErr(err, "failed to lock exam groups")
		}
		sess, err := openSession(ctx, tx, s.stores, s.logger, s.metrics)
		if err != nil {
			return err
		}
		loop := &reoptimizeLoop{
			sess:    sess,
			engine:  s.engine,
			areaID:  req.AreaID,
			failed:  make(map[int64]struct{}),
			report:  report,
			maxSize: s.engine.builder.MaxSize(),
		}
		if start != nil {
			loop.fixedSlots = BuildSlots(*start, *end, s.engine.opts.SkipWeekends)
		}
		if err := loop.run(maxIter); err != nil {
			return err
		}
		normalization, err := sess.normalize()
		if err != nil {
			return err
		}
		report.Normalization = normalization
		return nil
	})
	observeRun(s.metrics, s.logger, operationReoptimize, report.RunID, req.DryRun, started, report.Changes, err)
	if err != nil {
		return nil, err
	}
	if committed && (report.Changes > 0 || report.Normalization.Changed()) {
		invalidateCandidates(ctx, s.cache, s.logger)
	}
	return report, nil
}

type reoptimizeLoop struct {
	sess       *scheduleSession
	engine     *schedulingEngine
	areaID     *int64
	fixedSlots []models.Slot
	failed     map[int64]struct{}
	report     *dto.ReoptimizeReport
	maxSize    int
}

func (l *reoptimizeLoop) run(maxIter int) error {
	for l.report.Iterations < maxIter {
		l.report.Iterations++
		changes, err := l.pass()
		if err != nil {
			return err
		}
		l.report.Changes += changes
		if changes == 0 {
			break
		}
	}
	// Numbers placed by a later pass are no longer failures.
	l.report.Failures = lo.Filter(l.report.Failures, func(f dto.Failure, _ int) bool {
		_, grouped := l.sess.snap.GroupOf(f.Number)
		return !grouped
	})
	sort.Slice(l.report.Failures, func(i, j int) bool { return l.report.Failures[i].Number < l.report.Failures[j].Number })
	return nil
}

// slots returns the candidate slots of a pass: the requested range or every slot in use.
func (l *reoptimizeLoop) slots() []models.Slot {
	if l.fixedSlots != nil {
		return l.fixedSlots
	}
	return l.sess.snap.UsedSlots()
}

func (l *reoptimizeLoop) inScope(slot models.Slot) bool {
	if l.fixedSlots == nil {
		return true
	}
	return lo.Contains(l.fixedSlots, slot)
}

// pending lists the ungrouped numbers in scope, ordered by number.
func (l *reoptimizeLoop) pending() []int64 {
	var numbers []int64
	for _, entry := range l.sess.snap.Ungrouped() {
		info, ok := l.sess.snap.Number(entry.Number)
		if !ok {
			continue
		}
		if _, grouped := l.sess.snap.GroupOf(entry.Number); grouped {
			continue
		}
		if l.areaID != nil && info.AreaID != *l.areaID {
			continue
		}
		numbers = append(numbers, entry.Number)
	}
	return numbers
}

func (l *reoptimizeLoop) pass() (int, error) {
	scheduler := NewSlotScheduler(l.sess.oracle, LoadBalancedRanker{}, l.sess.snap)
	changes := 0

	var leftovers []int64
	for _, n := range l.pending() {
		moved, err := l.fold(scheduler, n)
		if err != nil {
			return changes, err
		}
		if moved {
			changes++
			continue
		}
		leftovers = append(leftovers, n)
	}

	byArea := make(map[int64][]int64)
	for _, n := range leftovers {
		info, _ := l.sess.snap.Number(n)
		byArea[info.AreaID] = append(byArea[info.AreaID], n)
	}
	areas := lo.Keys(byArea)
	sort.Slice(areas, func(i, j int) bool { return areas[i] < areas[j] })
	for _, area := range areas {
		formed, err := l.formPools(scheduler, area, byArea[area])
		if err != nil {
			return changes, err
		}
		changes += formed
	}
	return changes, nil
}

// fold moves number into the best compatible same-area group with a free column.
func (l *reoptimizeLoop) fold(scheduler *SlotScheduler, number int64) (bool, error) {
	snap := l.sess.snap
	info, _ := snap.Number(number)
	current := info.SlotPtr()

	type target struct {
		group *models.ExamGroup
		slot  models.Slot
	}
	var targets []target
	for _, group := range snap.Groups() {
		if group.AreaID != info.AreaID || group.Size() >= l.maxSize {
			continue
		}
		slot, dated := group.Slot()
		if !dated || !l.inScope(slot) {
			continue
		}
		if UnitsShareStudent(snap.GroupStudents(group), info.Students) {
			continue
		}
		if ok, _ := scheduler.Feasible(snap, []int64{number}, slot); !ok {
			continue
		}
		targets = append(targets, target{group: group, slot: slot})
	}
	if len(targets) == 0 {
		return false, nil
	}
	sort.SliceStable(targets, func(i, j int) bool {
		a, b := targets[i], targets[j]
		aSame := current != nil && *current == a.slot
		bSame := current != nil && *current == b.slot
		if aSame != bSame {
			return aSame
		}
		if a.group.Size() != b.group.Size() {
			return a.group.Size() > b.group.Size()
		}
		if cmp := a.slot.Compare(b.slot); cmp != 0 {
			return cmp < 0
		}
		return a.group.ID < b.group.ID
	})

	best := targets[0]
	if _, err := l.sess.addMember(best.group, number); err != nil {
		return false, err
	}
	if current != nil {
		scheduler.Release(*current, 1)
	}
	scheduler.Reserve(best.slot, 1)
	l.report.Moves = append(l.report.Moves, dto.Move{
		Number:  number,
		GroupID: best.group.ID,
		From:    slotRef(current),
		To:      slotRef(&best.slot),
	})
	return true, nil
}

// formPools builds groups from the area's leftovers and dates the remaining undated singles.
func (l *reoptimizeLoop) formPools(scheduler *SlotScheduler, area int64, numbers []int64) (int, error) {
	snap := l.sess.snap
	slots := l.slots()
	changes := 0

	accept := func(members []Candidate, next Candidate) bool {
		_, ok := scheduler.Pick(snap, append(candidateNumbers(members), next.Number), slots)
		return ok
	}
	built, singles := l.engine.builder.Build(candidatesOf(snap, numbers), accept)
	for _, g := range built {
		members := g.Members
		placed := false
		for size := len(members); size >= 2; size-- {
			chosen := candidateNumbers(members[:size])
			slot, ok := scheduler.Pick(snap, chosen, slots)
			if !ok {
				continue
			}
			for _, n := range chosen {
				if info, _ := snap.Number(n); info.Dated {
					scheduler.Release(info.Slot, 1)
				}
			}
			group, err := l.sess.createGroup(area, chosen, &slot)
			if err != nil {
				return changes, err
			}
			scheduler.Reserve(slot, len(chosen))
			l.report.NewGroups = append(l.report.NewGroups, groupSummary(group))
			changes++
			singles = append(singles, members[size:]...)
			placed = true
			break
		}
		if !placed {
			singles = append(singles, members...)
		}
	}

	sort.Slice(singles, func(i, j int) bool { return singles[i].Number < singles[j].Number })
	for _, single := range singles {
		info, _ := snap.Number(single.Number)
		if info.Dated {
			l.fail(single.Number, failureNoCompatibleGroup)
			continue
		}
		slot, ok := scheduler.Pick(snap, []int64{single.Number}, slots)
		if !ok {
			l.fail(single.Number, failureNoSlot)
			continue
		}
		if err := l.sess.setNumberSlot(single.Number, &slot); err != nil {
			return changes, err
		}
		if err := l.sess.markUngrouped(single.Number, &slot); err != nil {
			return changes, err
		}
		scheduler.Reserve(slot, 1)
		l.report.Moves = append(l.report.Moves, dto.Move{Number: single.Number, To: slotRef(&slot)})
		changes++
	}
	return changes, nil
}

// fail records a failure once per number and run.
func (l *reoptimizeLoop) fail(number int64, reason string) {
	if _, seen := l.failed[number]; seen {
		return
	}
	l.failed[number] = struct{}{}
	l.report.Failures = append(l.report.Failures, dto.Failure{Number: number, Reason: reason})
}
