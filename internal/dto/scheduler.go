package dto

import "time"

// RunGroupingRequest drives a grouping run over the current schedule.
type RunGroupingRequest struct {
	DryRun          bool    `json:"dryRun"`
	ScheduleUndated bool    `json:"scheduleUndated"`
	StartDate       *string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate         *string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	FilterDate      *string `json:"filterDate" validate:"omitempty,datetime=2006-01-02"`
	FilterShift     *string `json:"filterShift"`
}

// SlotRef is the wire form of a (date, shift) pair.
type SlotRef struct {
	Date  string `json:"date"`
	Shift string `json:"shift"`
}

// GroupSummary describes a group created or touched by a run.
type GroupSummary struct {
	GroupID int64    `json:"groupId"`
	AreaID  int64    `json:"areaId"`
	Numbers []int64  `json:"numbers"`
	Slot    *SlotRef `json:"slot,omitempty"`
}

// SplitSummary records a student moved out of a crowded number.
type SplitSummary struct {
	Origin    int64  `json:"origin"`
	DNI       string `json:"dni"`
	NewNumber int64  `json:"newNumber"`
}

// NormalizationReport counts the repairs applied by the consistency post-step.
type NormalizationReport struct {
	DemotedGroups     int `json:"demotedGroups"`
	RemovedGroups     int `json:"removedGroups"`
	PurgedEntries     int `json:"purgedEntries"`
	RegisteredEntries int `json:"registeredEntries"`
	ResyncedNumbers   int `json:"resyncedNumbers"`
}

// Changed reports whether the post-step touched anything.
func (r NormalizationReport) Changed() bool {
	return r.DemotedGroups+r.RemovedGroups+r.PurgedEntries+r.RegisteredEntries+r.ResyncedNumbers > 0
}

// GroupingReport is the result of RunGrouping.
type GroupingReport struct {
	RunID             string              `json:"runId"`
	DryRun            bool                `json:"dryRun"`
	CreatedGroups     []GroupSummary      `json:"createdGroups"`
	ExpandedGroups    []GroupSummary      `json:"expandedGroups"`
	Singles           []int64             `json:"singles"`
	Unplaced          []int64             `json:"unplaced"`
	Deferred          []int64             `json:"deferred"`
	Splits            []SplitSummary      `json:"splits"`
	DuplicatesSkipped int                 `json:"duplicatesSkipped"`
	Normalization     NormalizationReport `json:"normalization"`
}

// BatchAssignFilters narrows the backlog considered by a batch run.
type BatchAssignFilters struct {
	AreaID     *int64   `json:"areaId" validate:"omitempty,min=1"`
	SubjectIDs []int64  `json:"subjectIds" validate:"omitempty,dive,min=1"`
	DNIs       []string `json:"dnis" validate:"omitempty,dive,required"`
}

// BatchAssignRequest creates exam units for pending subjects over a date range.
type BatchAssignRequest struct {
	StartDate string              `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string              `json:"endDate" validate:"required,datetime=2006-01-02"`
	DryRun    bool                `json:"dryRun"`
	Group     bool                `json:"group"`
	Filters   *BatchAssignFilters `json:"filters"`
}

// CreatedUnit describes an exam unit written by a batch run.
type CreatedUnit struct {
	Number    int64   `json:"number"`
	DNI       string  `json:"dni"`
	SubjectID int64   `json:"subjectId"`
	Slot      SlotRef `json:"slot"`
	Panel     []int64 `json:"panel"`
}

// Omission reasons reported by batch assignment.
const (
	OmissionDuplicate   = "duplicate"
	OmissionMissingData = "missing_data"
	OmissionCap         = "cap"
	OmissionPanel       = "panel"
	OmissionNoSlot      = "no_slot"
)

// Omission is a backlog item that could not be placed.
type Omission struct {
	DNI       string `json:"dni"`
	SubjectID int64  `json:"subjectId"`
	Reason    string `json:"reason"`
}

// BatchAssignReport is the result of RunBatchAssign.
type BatchAssignReport struct {
	RunID         string              `json:"runId"`
	DryRun        bool                `json:"dryRun"`
	CreatedCount  int                 `json:"createdCount"`
	OmittedCount  map[string]int      `json:"omittedCount"`
	Created       []CreatedUnit       `json:"created"`
	Omitted       []Omission          `json:"omitted"`
	Grouping      *GroupingReport     `json:"grouping,omitempty"`
	Normalization NormalizationReport `json:"normalization"`
}

// ReoptimizeRequest drives the consolidation loop.
type ReoptimizeRequest struct {
	DryRun    bool    `json:"dryRun"`
	MaxIter   int     `json:"maxIter" validate:"omitempty,min=1,max=100"`
	StartDate *string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate   *string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	AreaID    *int64  `json:"areaId" validate:"omitempty,min=1"`
}

// Move records a number folded into a group.
type Move struct {
	Number  int64    `json:"number"`
	GroupID int64    `json:"groupId"`
	From    *SlotRef `json:"from,omitempty"`
	To      *SlotRef `json:"to,omitempty"`
}

// Failure records a number the run could not place.
type Failure struct {
	Number int64  `json:"number"`
	Reason string `json:"reason"`
}

// ReoptimizeReport is the result of RunReoptimize.
type ReoptimizeReport struct {
	RunID         string              `json:"runId"`
	DryRun        bool                `json:"dryRun"`
	Iterations    int                 `json:"iterations"`
	Changes       int                 `json:"changes"`
	Moves         []Move              `json:"moves"`
	NewGroups     []GroupSummary      `json:"newGroups"`
	Failures      []Failure           `json:"failures"`
	Normalization NormalizationReport `json:"normalization"`
}

// SplitStudentRequest is the payload of the split endpoint.
type SplitStudentRequest struct {
	DNI string `json:"dni" validate:"required"`
}

// SplitResult reports the new number, nil when the split was a no-op.
type SplitResult struct {
	Origin    int64  `json:"origin"`
	NewNumber *int64 `json:"newNumber"`
}

// MoveNumberRequest is the payload of the move endpoint.
type MoveNumberRequest struct {
	GroupID int64 `json:"groupId" validate:"required,min=1"`
}

// MoveResult reports where the number landed.
type MoveResult struct {
	Number        int64    `json:"number"`
	GroupID       int64    `json:"groupId"`
	Column        int      `json:"column"`
	OriginGroupID *int64   `json:"originGroupId,omitempty"`
	Slot          *SlotRef `json:"slot,omitempty"`
}

// AddMemberRequest is the payload of the add-to-group endpoint.
type AddMemberRequest struct {
	Number     int64   `json:"number" validate:"required,min=1"`
	TargetDate *string `json:"targetDate" validate:"omitempty,datetime=2006-01-02"`
}

// RemoveResult reports the group a number left.
type RemoveResult struct {
	Number        int64    `json:"number"`
	OriginGroupID *int64   `json:"originGroupId"`
	Slot          *SlotRef `json:"slot,omitempty"`
}

// CandidateQuery filters the ungrouped candidate listing.
type CandidateQuery struct {
	Date    *string `form:"date" json:"date" validate:"omitempty,datetime=2006-01-02"`
	Shift   *string `form:"shift" json:"shift"`
	Exclude *int64  `form:"exclude" json:"exclude" validate:"omitempty,min=1"`
}

// Candidate ineligibility reasons.
const (
	ReasonTeacherUnavailable = "teacher_unavailable"
	ReasonStudentBusy        = "student_busy"
	ReasonPrecedence         = "precedence"
	ReasonPriorityConflict   = "priority_conflict"
)

// UngroupedCandidate is one entry of the candidate listing.
type UngroupedCandidate struct {
	Number    int64    `json:"number"`
	SubjectID int64    `json:"subjectId"`
	AreaID    int64    `json:"areaId"`
	Teachers  []int64  `json:"teachers"`
	Students  []string `json:"students"`
	Slot      *SlotRef `json:"slot,omitempty"`
	Eligible  bool     `json:"eligible"`
	Reason    string   `json:"reason,omitempty"`
}

// Scheduler job kinds.
const (
	JobKindGrouping    = "grouping"
	JobKindBatchAssign = "batch_assign"
	JobKindReoptimize  = "reoptimize"
)

// Scheduler job states.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// SchedulerJobRequest submits a run for asynchronous execution.
type SchedulerJobRequest struct {
	Kind        string              `json:"kind" validate:"required,oneof=grouping batch_assign reoptimize"`
	Grouping    *RunGroupingRequest `json:"grouping"`
	BatchAssign *BatchAssignRequest `json:"batchAssign"`
	Reoptimize  *ReoptimizeRequest  `json:"reoptimize"`
}

// SchedulerJob exposes the state of an asynchronous run.
type SchedulerJob struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	Status     string      `json:"status"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	EnqueuedAt time.Time   `json:"enqueuedAt"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
}
