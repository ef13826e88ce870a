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

const (
	operationBatchAssign = "batch_assign"

	// maxSubjectsPerStudent caps the placements one student gets per batch run.
	maxSubjectsPerStudent = 2
	// panelMembers counts the examiners joining the lead teacher.
	panelMembers = 2
)

type enrollmentReader interface {
	ListPending(ctx context.Context, exec sqlx.ExtContext) ([]models.Enrollment, error)
}

type subjectReader interface {
	List(ctx context.Context, exec sqlx.ExtContext) ([]models.Subject, error)
}

type teacherReader interface {
	ListActive(ctx context.Context, exec sqlx.ExtContext) ([]models.Teacher, error)
}

// CatalogStores bundles the read-only inputs of batch assignment.
type CatalogStores struct {
	Enrollments enrollmentReader
	Subjects    subjectReader
	Teachers    teacherReader
}

// BatchAssignService turns the pending-subject backlog into dated exam units.
type BatchAssignService struct {
	stores    ScheduleStores
	catalog   CatalogStores
	tx        txProvider
	engine    *schedulingEngine
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBatchAssignService wires batch assignment.
func NewBatchAssignService(stores ScheduleStores, catalog CatalogStores, tx txProvider, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, opts SchedulerOptions) *BatchAssignService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchAssignService{
		stores:    stores,
		catalog:   catalog,
		tx:        tx,
		engine:    newSchedulingEngine(opts, logger),
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// RunBatchAssign places every inscribed (student, subject) pair inside the date range.
// Items that cannot be placed are reported as omissions; they never abort the run.
func (s *BatchAssignService) RunBatchAssign(ctx context.Context, req dto.BatchAssignRequest) (*dto.BatchAssignReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch assignment payload")
	}
	start, end, err := parseRange(&req.StartDate, &req.EndDate)
	if err != nil {
		return nil, err
	}
	days := BuildDates(*start, *end, s.engine.opts.SkipWeekends)
	if len(days) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date range holds no schedulable days")
	}

	started := time.Now()
	report := &dto.BatchAssignReport{RunID: uuid.NewString(), DryRun: req.DryRun, OmittedCount: make(map[string]int)}
	committed, err := withTx(ctx, s.tx, req.DryRun, func(tx *sqlx.Tx) error {
		if err := s.stores.Groups.LockAll(ctx, tx); err != nil {
			return internalErr(err, "failed to lock exam groups")
		}
		sess, err := openSession(ctx, tx, s.stores, s.logger, s.metrics)
		if err != nil {
			return err
		}
		run, err := s.prepare(ctx, tx, sess, days)
		if err != nil {
			return err
		}
		if err := run.assign(filterBacklog(run.backlog, run.subjects, req.Filters), report); err != nil {
			return err
		}

		if req.Group {
			grouping := &dto.GroupingReport{RunID: report.RunID, DryRun: req.DryRun}
			plan := groupingPlan{filter: func(slot models.Slot) bool {
				return !slot.Date.Before(*start) && !slot.Date.After(*end)
			}}
			if err := s.engine.group(sess, plan, grouping); err != nil {
				return err
			}
			report.Grouping = grouping
			report.Normalization = grouping.Normalization
			return nil
		}
		normalization, err := sess.normalize()
		if err != nil {
			return err
		}
		report.Normalization = normalization
		return nil
	})

	changes := report.CreatedCount
	if report.Grouping != nil {
		changes += groupingChanges(report.Grouping)
	}
	observeRun(s.metrics, s.logger, operationBatchAssign, report.RunID, req.DryRun, started, changes, err)
	if err != nil {
		return nil, err
	}
	for reason, count := range report.OmittedCount {
		s.metrics.RecordOmission(reason, count)
	}
	if committed {
		invalidateCandidates(ctx, s.cache, s.logger)
	}
	return report, nil
}

func (s *BatchAssignService) prepare(ctx context.Context, exec sqlx.ExtContext, sess *scheduleSession, days []time.Time) (*batchRun, error) {
	backlog, err := s.catalog.Enrollments.ListPending(ctx, exec)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending enrollments")
	}
	subjects, err := s.catalog.Subjects.List(ctx, exec)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	teachers, err := s.catalog.Teachers.ListActive(ctx, exec)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}

	// Round-robin pattern: every day at the first shift, then every day at the second.
	var pattern []models.Slot
	for _, shift := range models.Shifts {
		for _, day := range days {
			pattern = append(pattern, models.NewSlot(day, shift))
		}
	}
	return &batchRun{
		sess:     sess,
		logger:   s.logger,
		days:     days,
		pattern:  pattern,
		backlog:  backlog,
		subjects: lo.KeyBy(subjects, func(subject models.Subject) int64 { return subject.ID }),
		teachers: teachers,
		load:     make(map[int64]int),
		shared:   make(map[sharedNumberKey]sharedNumber),
	}, nil
}

// filterBacklog applies the optional area/subject/student filters.
func filterBacklog(backlog []models.Enrollment, subjects map[int64]models.Subject, filters *dto.BatchAssignFilters) []models.Enrollment {
	if filters == nil {
		return backlog
	}
	return lo.Filter(backlog, func(item models.Enrollment, _ int) bool {
		if len(filters.SubjectIDs) > 0 && !lo.Contains(filters.SubjectIDs, item.SubjectID) {
			return false
		}
		if len(filters.DNIs) > 0 && !lo.Contains(filters.DNIs, item.DNI) {
			return false
		}
		if filters.AreaID != nil {
			subject, ok := subjects[item.SubjectID]
			if !ok || subject.AreaID == nil || *subject.AreaID != *filters.AreaID {
				return false
			}
		}
		return true
	})
}

type sharedNumberKey struct {
	SubjectID int64
	Slot      models.Slot
}

type sharedNumber struct {
	Number int64
	Panel  []int64
}

// batchRun is the working state of one batch assignment.
type batchRun struct {
	sess     *scheduleSession
	logger   *zap.Logger
	days     []time.Time
	pattern  []models.Slot
	cursor   int
	backlog  []models.Enrollment
	subjects map[int64]models.Subject
	teachers []models.Teacher
	load     map[int64]int
	shared   map[sharedNumberKey]sharedNumber
}

// pendingItem is a backlog row that resolved to a catalog subject.
type pendingItem struct {
	enrollment models.Enrollment
	subject    models.Subject
}

func (r *batchRun) assign(backlog []models.Enrollment, report *dto.BatchAssignReport) error {
	byStudent := lo.GroupBy(backlog, func(item models.Enrollment) string { return item.DNI })
	students := lo.Keys(byStudent)
	sort.Strings(students)

	for _, dni := range students {
		items := byStudent[dni]
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].CourseYear != items[j].CourseYear {
				return items[i].CourseYear < items[j].CourseYear
			}
			return items[i].RegisteredAt.Before(items[j].RegisteredAt)
		})

		var pending []pendingItem
		seen := make(map[int64]struct{})
		for _, item := range items {
			if _, dup := seen[item.SubjectID]; dup {
				r.omit(report, item, dto.OmissionDuplicate)
				continue
			}
			seen[item.SubjectID] = struct{}{}
			if _, exists := r.sess.snap.Enrolled(item.DNI, item.SubjectID); exists {
				r.omit(report, item, dto.OmissionDuplicate)
				continue
			}
			subject, ok := r.subjects[item.SubjectID]
			if !ok || !subject.Resolvable() || item.DNI == "" {
				r.omit(report, item, dto.OmissionMissingData)
				continue
			}
			if len(pending) == maxSubjectsPerStudent {
				r.omit(report, item, dto.OmissionCap)
				continue
			}
			pending = append(pending, pendingItem{enrollment: item, subject: subject})
		}

		var err error
		switch len(pending) {
		case 1:
			err = r.placeFromPattern(pending[0], report)
		case 2:
			err = r.placePair(pending[0], pending[1], report)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *batchRun) omit(report *dto.BatchAssignReport, item models.Enrollment, reason string) {
	report.Omitted = append(report.Omitted, dto.Omission{DNI: item.DNI, SubjectID: item.SubjectID, Reason: reason})
	report.OmittedCount[reason]++
	r.logger.Warn("batch item omitted", zap.String("dni", item.DNI), zap.Int64("subject_id", item.SubjectID), zap.String("reason", reason))
}

// placePair tries the lower-year subject at the first shift and the other at the
// second shift of one day. When only one of the two fits a day it is placed and the
// other searched on the following days; the round-robin pattern is the last resort.
func (r *batchRun) placePair(first, second pendingItem, report *dto.BatchAssignReport) error {
	for i, day := range r.days {
		early := models.NewSlot(day, models.ShiftFirst)
		late := models.NewSlot(day, models.ShiftSecond)
		firstPanel, firstOK := r.fits(first, early)
		secondPanel, secondOK := r.fits(second, late)

		switch {
		case firstOK && secondOK:
			if err := r.create(first, early, firstPanel, report); err != nil {
				return err
			}
			// Panels are ranked by run load, so the second panel is recomputed after the first placement.
			if panel, ok := r.fits(second, late); ok {
				return r.create(second, late, panel, report)
			}
			return r.placeAfter(second, i+1, report)
		case firstOK:
			if err := r.create(first, early, firstPanel, report); err != nil {
				return err
			}
			return r.placeAfter(second, i+1, report)
		case secondOK:
			if err := r.create(second, late, secondPanel, report); err != nil {
				return err
			}
			return r.placeAfter(first, i+1, report)
		}
	}
	if err := r.placeFromPattern(first, report); err != nil {
		return err
	}
	return r.placeFromPattern(second, report)
}

// placeAfter searches the days from index from onwards, falling back to the pattern.
func (r *batchRun) placeAfter(item pendingItem, from int, report *dto.BatchAssignReport) error {
	for _, day := range r.days[from:] {
		for _, shift := range models.Shifts {
			slot := models.NewSlot(day, shift)
			if panel, ok := r.fits(item, slot); ok {
				return r.create(item, slot, panel, report)
			}
		}
	}
	return r.placeFromPattern(item, report)
}

// placeFromPattern walks the global pattern from the shared cursor.
func (r *batchRun) placeFromPattern(item pendingItem, report *dto.BatchAssignReport) error {
	studentFree := false
	for step := 0; step < len(r.pattern); step++ {
		idx := (r.cursor + step) % len(r.pattern)
		slot := r.pattern[idx]
		if !r.studentFits(item, slot) {
			continue
		}
		studentFree = true
		panel, ok := r.panelAt(item.subject, slot)
		if !ok {
			continue
		}
		r.cursor = (idx + 1) % len(r.pattern)
		return r.create(item, slot, panel, report)
	}
	reason := dto.OmissionNoSlot
	if studentFree {
		reason = dto.OmissionPanel
	}
	r.omit(report, item.enrollment, reason)
	return nil
}

func (r *batchRun) fits(item pendingItem, slot models.Slot) ([]int64, bool) {
	if !r.studentFits(item, slot) {
		return nil, false
	}
	return r.panelAt(item.subject, slot)
}

// studentFits checks the student's own calendar: a free slot and ascending years inside the area.
func (r *batchRun) studentFits(item pendingItem, slot models.Slot) bool {
	dni := item.enrollment.DNI
	if r.sess.snap.StudentBusy(dni, slot) {
		return false
	}
	return !ViolatesPrecedence(item.enrollment.CourseYear, slot, r.sess.snap.History(dni, *item.subject.AreaID))
}

// panelAt returns the panel for subject at slot. Numbers created earlier in the run
// for the same subject and slot are reused with their panel.
func (r *batchRun) panelAt(subject models.Subject, slot models.Slot) ([]int64, bool) {
	if shared, ok := r.shared[sharedNumberKey{SubjectID: subject.ID, Slot: slot}]; ok {
		return shared.Panel, true
	}
	lead := *subject.LeadTeacherID
	if r.sess.oracle.TeacherBlocked(lead, slot) {
		return nil, false
	}
	available := lo.Filter(r.teachers, func(t models.Teacher, _ int) bool {
		return t.ID != lead && !r.sess.oracle.TeacherBlocked(t.ID, slot)
	})
	sort.SliceStable(available, func(i, j int) bool {
		if r.load[available[i].ID] != r.load[available[j].ID] {
			return r.load[available[i].ID] < r.load[available[j].ID]
		}
		return available[i].ID < available[j].ID
	})

	panel := []int64{lead}
	sameArea := lo.Filter(available, func(t models.Teacher, _ int) bool {
		return t.AreaID != nil && *t.AreaID == *subject.AreaID
	})
	for _, t := range sameArea {
		if len(panel) == panelMembers+1 {
			break
		}
		panel = append(panel, t.ID)
	}
	// Unconstrained fallback when the area cannot staff the panel.
	for _, t := range available {
		if len(panel) == panelMembers+1 {
			break
		}
		if !lo.Contains(panel, t.ID) {
			panel = append(panel, t.ID)
		}
	}
	if len(panel) < panelMembers+1 {
		return nil, false
	}
	return panel, true
}

func (r *batchRun) create(item pendingItem, slot models.Slot, panel []int64, report *dto.BatchAssignReport) error {
	key := sharedNumberKey{SubjectID: item.subject.ID, Slot: slot}
	shared, reused := r.shared[key]
	if !reused {
		number, err := r.sess.stores.Units.NextNumber(r.sess.ctx, r.sess.exec)
		if err != nil {
			return internalErr(err, "failed to allocate exam number")
		}
		shared = sharedNumber{Number: number, Panel: panel}
	}

	unit := models.ExamUnit{
		Number:     shared.Number,
		DNI:        item.enrollment.DNI,
		SubjectID:  item.subject.ID,
		AreaID:     *item.subject.AreaID,
		CourseYear: item.enrollment.CourseYear,
		ExamDate:   slot.DatePtr(),
		Shift:      slot.ShiftPtr(),
	}
	unit.SetPanel(shared.Panel)
	if err := r.sess.stores.Units.Create(r.sess.ctx, r.sess.exec, &unit); err != nil {
		return internalErr(err, "failed to create exam unit")
	}
	r.sess.snap.insertUnit(unit)

	if !reused {
		r.shared[key] = shared
		for _, id := range shared.Panel {
			r.load[id]++
		}
		if err := r.sess.markUngrouped(shared.Number, &slot); err != nil {
			return err
		}
	}

	report.CreatedCount++
	report.Created = append(report.Created, dto.CreatedUnit{
		Number:    shared.Number,
		DNI:       unit.DNI,
		SubjectID: unit.SubjectID,
		Slot:      *slotRef(&slot),
		Panel:     shared.Panel,
	})
	return nil
}
