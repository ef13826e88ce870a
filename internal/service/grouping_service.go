package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/mesa-scheduler/internal/dto"
	"github.com/noah-isme/mesa-scheduler/internal/models"
	appErrors "github.com/noah-isme/mesa-scheduler/pkg/errors"
)

const operationGrouping = "grouping"

// GroupingService packs ungrouped exam numbers into groups and settles the schedule.
type GroupingService struct {
	stores    ScheduleStores
	tx        txProvider
	engine    *schedulingEngine
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGroupingService wires the grouping run.
func NewGroupingService(stores ScheduleStores, tx txProvider, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, opts SchedulerOptions) *GroupingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupingService{
		stores:    stores,
		tx:        tx,
		engine:    newSchedulingEngine(opts, logger),
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// RunGrouping groups dated ungrouped numbers per (slot, area), optionally dating the
// undated ones inside [startDate, endDate] first, then resolves precedence and
// collisions and normalizes. The whole run is one transaction; dry runs roll back.
func (s *GroupingService) RunGrouping(ctx context.Context, req dto.RunGroupingRequest) (*dto.GroupingReport, error) {
	plan, err := s.plan(req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	report := &dto.GroupingReport{RunID: uuid.NewString(), DryRun: req.DryRun}
	committed, err := withTx(ctx, s.tx, req.DryRun, func(tx *sqlx.Tx) error {
		if err := s.stores.Groups.LockAll(ctx, tx); err != nil {
			return internalErr(err, "failed to lock exam groups")
		}
		sess, err := openSession(ctx, tx, s.stores, s.logger, s.metrics)
		if err != nil {
			return err
		}
		return s.engine.group(sess, plan, report)
	})
	observeRun(s.metrics, s.logger, operationGrouping, report.RunID, req.DryRun, started, groupingChanges(report), err)
	if err != nil {
		return nil, err
	}
	if committed {
		invalidateCandidates(ctx, s.cache, s.logger)
	}
	return report, nil
}

func (s *GroupingService) plan(req dto.RunGroupingRequest) (groupingPlan, error) {
	if err := s.validator.Struct(req); err != nil {
		return groupingPlan{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grouping payload")
	}
	start, end, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return groupingPlan{}, err
	}
	filter, err := slotFilter(req.FilterDate, req.FilterShift)
	if err != nil {
		return groupingPlan{}, err
	}

	plan := groupingPlan{scheduleUndated: req.ScheduleUndated, filter: filter}
	if req.ScheduleUndated {
		if start == nil {
			return groupingPlan{}, appErrors.Clone(appErrors.ErrValidation, "startDate and endDate are required to schedule undated numbers")
		}
		for _, slot := range BuildSlots(*start, *end, s.engine.opts.SkipWeekends) {
			if filter == nil || filter(slot) {
				plan.slots = append(plan.slots, slot)
			}
		}
	}
	return plan, nil
}

// slotFilter builds the optional date/shift restriction. nil means every slot.
func slotFilter(date, shift *string) (func(models.Slot) bool, error) {
	var (
		day      time.Time
		hasDay   bool
		turn     models.Shift
		hasShift bool
	)
	if date != nil && *date != "" {
		parsed, err := models.ParseDate(*date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "filterDate must use YYYY-MM-DD")
		}
		day, hasDay = parsed, true
	}
	if shift != nil && *shift != "" {
		parsed, err := models.ParseShift(*shift)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "filterShift must be 1, 2, FIRST or SECOND")
		}
		turn, hasShift = parsed, true
	}
	if !hasDay && !hasShift {
		return nil, nil
	}
	return func(slot models.Slot) bool {
		if hasDay && !slot.Date.Equal(day) {
			return false
		}
		if hasShift && slot.Shift != turn {
			return false
		}
		return true
	}, nil
}

func groupingChanges(report *dto.GroupingReport) int {
	if report == nil {
		return 0
	}
	return len(report.CreatedGroups) + len(report.ExpandedGroups) + len(report.Deferred) + len(report.Splits)
}
