package service

import (
	"sort"
	"time"

	"github.com/noah-isme/mesa-scheduler/internal/dto"
	"github.com/noah-isme/mesa-scheduler/internal/models"
)

// SlotCandidate is a slot that passed every hard check, with its current load.
type SlotCandidate struct {
	Slot models.Slot
	Load int
}

// SlotRanker orders feasible slots. priority is true when any member carries the priority flag.
type SlotRanker interface {
	Less(a, b SlotCandidate, priority bool) bool
}

// LoadBalancedRanker prefers the emptiest slot, switching to earliest-first for priority sets.
type LoadBalancedRanker struct{}

// Less implements SlotRanker.
func (LoadBalancedRanker) Less(a, b SlotCandidate, priority bool) bool {
	cmp := a.Slot.Compare(b.Slot)
	if priority {
		if cmp != 0 {
			return cmp < 0
		}
		return a.Load < b.Load
	}
	if a.Load != b.Load {
		return a.Load < b.Load
	}
	return cmp < 0
}

// SlotScheduler picks slots for candidate sets. Its load counters are scoped to one run.
type SlotScheduler struct {
	oracle *ConflictOracle
	ranker SlotRanker
	load   map[models.Slot]int
}

// NewSlotScheduler seeds the run's load counters from the snapshot.
func NewSlotScheduler(oracle *ConflictOracle, ranker SlotRanker, snap *ScheduleSnapshot) *SlotScheduler {
	if ranker == nil {
		ranker = LoadBalancedRanker{}
	}
	load := make(map[models.Slot]int)
	if snap != nil {
		for _, slot := range snap.UsedSlots() {
			load[slot] = snap.Load(slot)
		}
	}
	return &SlotScheduler{oracle: oracle, ranker: ranker, load: load}
}

// Feasible checks teacher availability, student collisions and precedence for placing
// numbers together at slot. The numbers' own current placement is ignored. The returned
// reason is empty when the slot is feasible.
func (s *SlotScheduler) Feasible(snap *ScheduleSnapshot, numbers []int64, slot models.Slot) (bool, string) {
	for _, n := range numbers {
		info, ok := snap.Number(n)
		if !ok {
			continue
		}
		if s.oracle.AnyTeacherBlocked(info.Teachers, slot) {
			return false, dto.ReasonTeacherUnavailable
		}
	}
	for _, n := range numbers {
		info, ok := snap.Number(n)
		if !ok {
			continue
		}
		for _, dni := range info.Students {
			if snap.StudentBusy(dni, slot, numbers...) {
				return false, dto.ReasonStudentBusy
			}
			if ViolatesPrecedence(info.CourseYears[dni], slot, snap.History(dni, info.AreaID), numbers...) {
				return false, dto.ReasonPrecedence
			}
		}
	}
	return true, ""
}

// Pick returns the best feasible slot among slots, or false when none qualifies.
func (s *SlotScheduler) Pick(snap *ScheduleSnapshot, numbers []int64, slots []models.Slot) (models.Slot, bool) {
	priority := false
	for _, n := range numbers {
		if info, ok := snap.Number(n); ok && info.Priority {
			priority = true
			break
		}
	}

	var feasible []SlotCandidate
	for _, slot := range slots {
		if ok, _ := s.Feasible(snap, numbers, slot); ok {
			feasible = append(feasible, SlotCandidate{Slot: slot, Load: s.load[slot]})
		}
	}
	if len(feasible) == 0 {
		return models.Slot{}, false
	}
	sort.SliceStable(feasible, func(i, j int) bool { return s.ranker.Less(feasible[i], feasible[j], priority) })
	return feasible[0].Slot, true
}

// Reserve records count more numbers placed at slot during this run.
func (s *SlotScheduler) Reserve(slot models.Slot, count int) {
	s.load[slot] += count
}

// Release undoes a reservation when a number leaves slot during this run.
func (s *SlotScheduler) Release(slot models.Slot, count int) {
	s.load[slot] -= count
	if s.load[slot] < 0 {
		s.load[slot] = 0
	}
}

// BuildSlots expands a date range into chronological slots, both shifts per day.
func BuildSlots(start, end time.Time, skipWeekends bool) []models.Slot {
	var slots []models.Slot
	for _, day := range BuildDates(start, end, skipWeekends) {
		for _, shift := range models.Shifts {
			slots = append(slots, models.NewSlot(day, shift))
		}
	}
	return slots
}

// BuildDates lists the usable calendar days of a range.
func BuildDates(start, end time.Time, skipWeekends bool) []time.Time {
	start, end = models.DateOnly(start), models.DateOnly(end)
	var days []time.Time
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if skipWeekends && isWeekend(day) {
			continue
		}
		days = append(days, day)
	}
	return days
}

func isWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
