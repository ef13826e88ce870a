package service

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/mesa-scheduler/internal/dto"
	"github.com/noah-isme/mesa-scheduler/internal/models"
	appErrors "github.com/noah-isme/mesa-scheduler/pkg/errors"
)

// Run outcomes reported to metrics.
const (
	outcomeCommitted = "committed"
	outcomeDryRun    = "dry_run"
	outcomeFailed    = "failed"
)

// SchedulerOptions tunes the scheduling heuristics shared by the run services.
type SchedulerOptions struct {
	SplitThreshold int
	FormationOrder []int
	MaxGroupSize   int
	MaxPoolSize    int
	MaxIterations  int
	SkipWeekends   bool
}

func (o SchedulerOptions) normalized() SchedulerOptions {
	if o.SplitThreshold <= 0 {
		o.SplitThreshold = DefaultSplitThreshold
	}
	if len(o.FormationOrder) == 0 {
		o.FormationOrder = DefaultFormationOrder
	}
	if o.MaxGroupSize < 2 || o.MaxGroupSize > models.GroupColumns {
		o.MaxGroupSize = DefaultMaxGroupSize
	}
	if o.MaxPoolSize < o.MaxGroupSize {
		o.MaxPoolSize = DefaultMaxPoolSize
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	return o
}

// schedulingEngine holds the heuristics a run applies to a session.
type schedulingEngine struct {
	opts     SchedulerOptions
	builder  *GroupBuilder
	resolver *PrecedenceResolver
	logger   *zap.Logger
}

func newSchedulingEngine(opts SchedulerOptions, logger *zap.Logger) *schedulingEngine {
	opts = opts.normalized()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &schedulingEngine{
		opts:     opts,
		builder:  NewGroupBuilder(opts.FormationOrder, opts.MaxGroupSize, opts.MaxPoolSize),
		resolver: NewPrecedenceResolver(opts.SplitThreshold, logger),
		logger:   logger,
	}
}

// groupingPlan narrows one grouping pass.
type groupingPlan struct {
	scheduleUndated bool
	slots           []models.Slot
	filter          func(models.Slot) bool
}

// group runs the grouping pipeline: undated scheduling when requested, per
// (slot, area) grouping of dated numbers, expansion of existing groups, then the
// resolver and the normalization post-step.
func (e *schedulingEngine) group(sess *scheduleSession, plan groupingPlan, report *dto.GroupingReport) error {
	for _, entry := range sess.snap.Ungrouped() {
		if _, grouped := sess.snap.GroupOf(entry.Number); grouped {
			report.DuplicatesSkipped++
		}
	}

	if plan.scheduleUndated {
		scheduler := NewSlotScheduler(sess.oracle, LoadBalancedRanker{}, sess.snap)
		if err := e.scheduleUndated(sess, scheduler, plan.slots, report); err != nil {
			return err
		}
	}
	if err := e.groupDated(sess, plan.filter, report); err != nil {
		return err
	}

	resolution, normalization, err := e.settle(sess)
	if err != nil {
		return err
	}
	report.Deferred = append(report.Deferred, resolution.Deferred...)
	report.Splits = append(report.Splits, resolution.Splits...)
	report.Normalization = normalization

	singles := lo.Uniq(report.Singles)
	singles = lo.Filter(singles, func(n int64, _ int) bool {
		_, grouped := sess.snap.GroupOf(n)
		return !grouped
	})
	sort.Slice(singles, func(i, j int) bool { return singles[i] < singles[j] })
	report.Singles = singles
	return nil
}

func (e *schedulingEngine) scheduleUndated(sess *scheduleSession, scheduler *SlotScheduler, slots []models.Slot, report *dto.GroupingReport) error {
	byArea := make(map[int64][]int64)
	for _, n := range sess.snap.Numbers() {
		info, _ := sess.snap.Number(n)
		if info.Dated {
			continue
		}
		if _, grouped := sess.snap.GroupOf(n); grouped {
			continue
		}
		byArea[info.AreaID] = append(byArea[info.AreaID], n)
	}
	areas := lo.Keys(byArea)
	sort.Slice(areas, func(i, j int) bool { return areas[i] < areas[j] })

	for _, area := range areas {
		pool := candidatesOf(sess.snap, byArea[area])
		accept := func(members []Candidate, next Candidate) bool {
			numbers := append(candidateNumbers(members), next.Number)
			_, ok := scheduler.Pick(sess.snap, numbers, slots)
			return ok
		}
		built, singles := e.builder.Build(pool, accept)
		for _, g := range built {
			numbers := g.Numbers()
			slot, ok := scheduler.Pick(sess.snap, numbers, slots)
			if !ok {
				singles = append(singles, g.Members...)
				continue
			}
			group, err := sess.createGroup(area, numbers, &slot)
			if err != nil {
				return err
			}
			scheduler.Reserve(slot, len(numbers))
			report.CreatedGroups = append(report.CreatedGroups, groupSummary(group))
		}
		sort.Slice(singles, func(i, j int) bool { return singles[i].Number < singles[j].Number })
		for _, single := range singles {
			if err := e.placeSingle(sess, scheduler, single.Number, slots, report); err != nil {
				return err
			}
		}
	}
	return nil
}

// placeSingle dates a lone number at its best slot, or records it as unplaced.
func (e *schedulingEngine) placeSingle(sess *scheduleSession, scheduler *SlotScheduler, number int64, slots []models.Slot, report *dto.GroupingReport) error {
	slot, ok := scheduler.Pick(sess.snap, []int64{number}, slots)
	if !ok {
		report.Unplaced = append(report.Unplaced, number)
		return sess.ensureUngrouped(number, nil)
	}
	if err := sess.setNumberSlot(number, &slot); err != nil {
		return err
	}
	scheduler.Reserve(slot, 1)
	report.Singles = append(report.Singles, number)
	return sess.ensureUngrouped(number, &slot)
}

func (e *schedulingEngine) groupDated(sess *scheduleSession, filter func(models.Slot) bool, report *dto.GroupingReport) error {
	buckets := make(map[models.SlotAreaKey][]int64)
	for _, n := range sess.snap.Numbers() {
		info, _ := sess.snap.Number(n)
		if !info.Dated {
			continue
		}
		if _, grouped := sess.snap.GroupOf(n); grouped {
			continue
		}
		if filter != nil && !filter(info.Slot) {
			continue
		}
		key := models.SlotAreaKey{Slot: info.Slot, AreaID: info.AreaID}
		buckets[key] = append(buckets[key], n)
	}
	keys := lo.Keys(buckets)
	sort.Slice(keys, func(i, j int) bool {
		if cmp := keys[i].Slot.Compare(keys[j].Slot); cmp != 0 {
			return cmp < 0
		}
		return keys[i].AreaID < keys[j].AreaID
	})

	for _, key := range keys {
		slot := key.Slot
		built, singles := e.builder.Build(candidatesOf(sess.snap, buckets[key]), nil)
		for _, g := range built {
			group, err := sess.createGroup(key.AreaID, g.Numbers(), &slot)
			if err != nil {
				return err
			}
			report.CreatedGroups = append(report.CreatedGroups, groupSummary(group))
		}
		left, err := e.expandAt(sess, key, singles, report)
		if err != nil {
			return err
		}
		for _, single := range left {
			if err := sess.ensureUngrouped(single.Number, &slot); err != nil {
				return err
			}
			report.Singles = append(report.Singles, single.Number)
		}
	}
	return nil
}

// expandAt grows same-area groups at key's slot with leftover numbers sitting that slot.
func (e *schedulingEngine) expandAt(sess *scheduleSession, key models.SlotAreaKey, leftovers []Candidate, report *dto.GroupingReport) ([]Candidate, error) {
	if len(leftovers) == 0 {
		return nil, nil
	}
	var targets []*models.ExamGroup
	for _, g := range sess.snap.Groups() {
		slot, dated := g.Slot()
		if !dated || slot != key.Slot || g.AreaID != key.AreaID || g.Size() >= e.builder.MaxSize() {
			continue
		}
		targets = append(targets, g)
	}
	if len(targets) == 0 {
		return leftovers, nil
	}
	members := make([][]Candidate, len(targets))
	for i, g := range targets {
		members[i] = candidatesOf(sess.snap, g.Numbers())
	}
	accept := func(_ []Candidate, next Candidate) bool {
		info, ok := sess.snap.Number(next.Number)
		if !ok || sess.oracle.AnyTeacherBlocked(info.Teachers, key.Slot) {
			return false
		}
		return !lo.SomeBy(info.Students, func(dni string) bool {
			return sess.snap.StudentBusy(dni, key.Slot, next.Number)
		})
	}
	unused, added := e.builder.Expand(members, leftovers, accept)

	indexes := lo.Keys(added)
	sort.Ints(indexes)
	for _, i := range indexes {
		group := targets[i]
		for _, cand := range added[i] {
			if _, err := sess.addMember(group, cand.Number); err != nil {
				return nil, err
			}
		}
		report.ExpandedGroups = append(report.ExpandedGroups, groupSummary(group))
	}
	return unused, nil
}

// settle resolves violations and normalizes. When normalization moved anything the
// resolver gets a second pass, since resynced slots can reintroduce violations.
func (e *schedulingEngine) settle(sess *scheduleSession) (ResolutionReport, dto.NormalizationReport, error) {
	resolution, err := e.resolver.Resolve(sess)
	if err != nil {
		return resolution, dto.NormalizationReport{}, err
	}
	normalization, err := sess.normalize()
	if err != nil {
		return resolution, normalization, err
	}
	if !normalization.Changed() {
		return resolution, normalization, nil
	}

	more, err := e.resolver.Resolve(sess)
	if err != nil {
		return resolution, normalization, err
	}
	resolution.Deferred = append(resolution.Deferred, more.Deferred...)
	resolution.Splits = append(resolution.Splits, more.Splits...)
	again, err := sess.normalize()
	if err != nil {
		return resolution, normalization, err
	}
	normalization.DemotedGroups += again.DemotedGroups
	normalization.RemovedGroups += again.RemovedGroups
	normalization.PurgedEntries += again.PurgedEntries
	normalization.RegisteredEntries += again.RegisteredEntries
	normalization.ResyncedNumbers += again.ResyncedNumbers
	return resolution, normalization, nil
}

func candidatesOf(snap *ScheduleSnapshot, numbers []int64) []Candidate {
	out := make([]Candidate, 0, len(numbers))
	for _, n := range numbers {
		info, ok := snap.Number(n)
		if !ok {
			continue
		}
		out = append(out, Candidate{Number: n, Students: info.Students})
	}
	return out
}

func candidateNumbers(members []Candidate) []int64 {
	return lo.Map(members, func(c Candidate, _ int) int64 { return c.Number })
}

// parseRange validates an optional inclusive date range. Both bounds or neither.
func parseRange(start, end *string) (*time.Time, *time.Time, error) {
	if (start == nil) != (end == nil) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "startDate and endDate must be provided together")
	}
	if start == nil {
		return nil, nil, nil
	}
	from, err := models.ParseDate(*start)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "startDate must use YYYY-MM-DD")
	}
	to, err := models.ParseDate(*end)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "endDate must use YYYY-MM-DD")
	}
	if to.Before(from) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "endDate must not be before startDate")
	}
	return &from, &to, nil
}

// invalidateCandidates drops cached candidate listings after a committed change.
func invalidateCandidates(ctx context.Context, cache *CacheService, logger *zap.Logger) {
	if err := cache.InvalidateCandidates(ctx); err != nil {
		logger.Warn("failed to invalidate candidate cache", zap.Error(err))
	}
}

// observeRun records metrics and the structured log line of a run.
func observeRun(metrics *MetricsService, logger *zap.Logger, operation, runID string, dryRun bool, started time.Time, changes int, err error) {
	duration := time.Since(started)
	outcome := outcomeCommitted
	switch {
	case err != nil:
		outcome = outcomeFailed
	case dryRun:
		outcome = outcomeDryRun
	}
	metrics.RecordSchedulerRun(operation, outcome, changes, duration)

	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("run_id", runID),
		zap.Bool("dry_run", dryRun),
		zap.Int("changes", changes),
		zap.Duration("duration", duration),
	}
	if err != nil {
		logger.Error("scheduler run rolled back", append(fields, zap.Error(err))...)
		return
	}
	logger.Info("scheduler run finished", fields...)
}
