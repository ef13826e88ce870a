package service

import (
	"sort"

	"github.com/samber/lo"

	"github.com/noah-isme/mesa-scheduler/internal/models"
)

// NumberInfo aggregates the unit rows sharing one exam number.
type NumberInfo struct {
	Number      int64
	SubjectID   int64
	AreaID      int64
	Students    []string
	CourseYears map[string]int
	Teachers    []int64
	Slot        models.Slot
	Dated       bool
	Priority    bool
}

// SlotPtr returns the number's slot or nil when undated.
func (n *NumberInfo) SlotPtr() *models.Slot {
	if !n.Dated {
		return nil
	}
	slot := n.Slot
	return &slot
}

type enrollmentKey struct {
	DNI       string
	SubjectID int64
}

// ScheduleSnapshot is an indexed, in-memory view of the schedule inside one transaction.
// Components read it instead of querying; the session keeps it in step with its writes
// and rebuilds it from the store at checkpoints.
type ScheduleSnapshot struct {
	numbers   map[int64]*NumberInfo
	groups    map[int64]*models.ExamGroup
	groupOf   map[int64]int64
	ungrouped map[int64]models.UngroupedEntry
	occupancy map[models.Slot]map[string][]int64
	history   map[models.StudentAreaKey][]Assignment
	enrolled  map[enrollmentKey]int64
}

// BuildSnapshot indexes the raw rows. It is pure: the same rows always give the same snapshot.
func BuildSnapshot(units []models.ExamUnit, groups []models.ExamGroup, ungrouped []models.UngroupedEntry) *ScheduleSnapshot {
	snap := &ScheduleSnapshot{
		numbers:   make(map[int64]*NumberInfo),
		groups:    make(map[int64]*models.ExamGroup, len(groups)),
		groupOf:   make(map[int64]int64),
		ungrouped: make(map[int64]models.UngroupedEntry, len(ungrouped)),
		occupancy: make(map[models.Slot]map[string][]int64),
		history:   make(map[models.StudentAreaKey][]Assignment),
		enrolled:  make(map[enrollmentKey]int64, len(units)),
	}
	for _, unit := range units {
		snap.addUnit(unit)
	}
	for _, info := range snap.numbers {
		sort.Strings(info.Students)
		if info.Dated {
			snap.index(info)
		}
	}
	for i := range groups {
		snap.putGroup(groups[i].Clone())
	}
	for _, entry := range ungrouped {
		snap.ungrouped[entry.Number] = entry
	}
	return snap
}

// addUnit folds a unit row into its number. The first row fixes subject, area, panel and slot.
func (s *ScheduleSnapshot) addUnit(unit models.ExamUnit) *NumberInfo {
	info, ok := s.numbers[unit.Number]
	if !ok {
		info = &NumberInfo{
			Number:      unit.Number,
			SubjectID:   unit.SubjectID,
			AreaID:      unit.AreaID,
			CourseYears: make(map[string]int),
			Teachers:    unit.Teachers(),
		}
		info.Slot, info.Dated = unit.Slot()
		s.numbers[unit.Number] = info
	}
	if _, seen := info.CourseYears[unit.DNI]; !seen {
		info.Students = append(info.Students, unit.DNI)
	}
	info.CourseYears[unit.DNI] = unit.CourseYear
	if unit.IsPriority() {
		info.Priority = true
	}
	s.enrolled[enrollmentKey{DNI: unit.DNI, SubjectID: unit.SubjectID}] = unit.Number
	return info
}

// insertUnit adds a freshly created row and keeps the derived indexes current.
func (s *ScheduleSnapshot) insertUnit(unit models.ExamUnit) {
	if info, ok := s.numbers[unit.Number]; ok && info.Dated {
		s.unindex(info)
	}
	info := s.addUnit(unit)
	sort.Strings(info.Students)
	if info.Dated {
		s.index(info)
	}
}

func (s *ScheduleSnapshot) index(info *NumberInfo) {
	bySlot := s.occupancy[info.Slot]
	if bySlot == nil {
		bySlot = make(map[string][]int64)
		s.occupancy[info.Slot] = bySlot
	}
	for _, dni := range info.Students {
		bySlot[dni] = append(bySlot[dni], info.Number)
		key := models.StudentAreaKey{DNI: dni, AreaID: info.AreaID}
		s.history[key] = append(s.history[key], Assignment{
			Number:     info.Number,
			CourseYear: info.CourseYears[dni],
			Slot:       info.Slot,
			Priority:   info.Priority,
		})
	}
}

func (s *ScheduleSnapshot) unindex(info *NumberInfo) {
	bySlot := s.occupancy[info.Slot]
	for _, dni := range info.Students {
		if bySlot != nil {
			bySlot[dni] = lo.Without(bySlot[dni], info.Number)
			if len(bySlot[dni]) == 0 {
				delete(bySlot, dni)
			}
		}
		key := models.StudentAreaKey{DNI: dni, AreaID: info.AreaID}
		s.history[key] = lo.Reject(s.history[key], func(a Assignment, _ int) bool { return a.Number == info.Number })
	}
	if bySlot != nil && len(bySlot) == 0 {
		delete(s.occupancy, info.Slot)
	}
}

// placeNumber moves a number to slot, or undates it when slot is nil.
func (s *ScheduleSnapshot) placeNumber(number int64, slot *models.Slot) {
	info, ok := s.numbers[number]
	if !ok {
		return
	}
	if info.Dated {
		s.unindex(info)
	}
	if slot == nil {
		info.Slot, info.Dated = models.Slot{}, false
		return
	}
	info.Slot, info.Dated = *slot, true
	s.index(info)
}

func (s *ScheduleSnapshot) putGroup(group *models.ExamGroup) {
	if prev, ok := s.groups[group.ID]; ok {
		for _, n := range prev.Numbers() {
			if s.groupOf[n] == group.ID {
				delete(s.groupOf, n)
			}
		}
	}
	s.groups[group.ID] = group
	for _, n := range group.Numbers() {
		s.groupOf[n] = group.ID
	}
}

func (s *ScheduleSnapshot) dropGroup(id int64) {
	group, ok := s.groups[id]
	if !ok {
		return
	}
	for _, n := range group.Numbers() {
		if s.groupOf[n] == id {
			delete(s.groupOf, n)
		}
	}
	delete(s.groups, id)
}

func (s *ScheduleSnapshot) putUngrouped(entry models.UngroupedEntry) {
	s.ungrouped[entry.Number] = entry
}

func (s *ScheduleSnapshot) dropUngrouped(number int64) {
	delete(s.ungrouped, number)
}

// Number returns the aggregated view of an exam number.
func (s *ScheduleSnapshot) Number(number int64) (*NumberInfo, bool) {
	info, ok := s.numbers[number]
	return info, ok
}

// Numbers returns every known exam number in ascending order.
func (s *ScheduleSnapshot) Numbers() []int64 {
	numbers := lo.Keys(s.numbers)
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers
}

// Group returns a group by id.
func (s *ScheduleSnapshot) Group(id int64) (*models.ExamGroup, bool) {
	group, ok := s.groups[id]
	return group, ok
}

// Groups returns every group ordered by id.
func (s *ScheduleSnapshot) Groups() []*models.ExamGroup {
	groups := lo.Values(s.groups)
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups
}

// GroupOf returns the id of the group holding number.
func (s *ScheduleSnapshot) GroupOf(number int64) (int64, bool) {
	id, ok := s.groupOf[number]
	return id, ok
}

// Entry returns the ungrouped entry for number.
func (s *ScheduleSnapshot) Entry(number int64) (models.UngroupedEntry, bool) {
	entry, ok := s.ungrouped[number]
	return entry, ok
}

// Ungrouped returns every ungrouped entry ordered by number.
func (s *ScheduleSnapshot) Ungrouped() []models.UngroupedEntry {
	entries := lo.Values(s.ungrouped)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Number < entries[j].Number })
	return entries
}

// GroupStudents returns the union of students across a group's members.
func (s *ScheduleSnapshot) GroupStudents(group *models.ExamGroup) []string {
	var students []string
	for _, n := range group.Numbers() {
		if info, ok := s.numbers[n]; ok {
			students = append(students, info.Students...)
		}
	}
	return lo.Uniq(students)
}

// StudentBusy reports whether dni sits another exam at slot, ignoring the listed numbers.
func (s *ScheduleSnapshot) StudentBusy(dni string, slot models.Slot, ignore ...int64) bool {
	numbers := s.occupancy[slot][dni]
	return lo.SomeBy(numbers, func(n int64) bool { return !lo.Contains(ignore, n) })
}

// History returns the dated assignments of a student inside an area.
func (s *ScheduleSnapshot) History(dni string, areaID int64) []Assignment {
	return s.history[models.StudentAreaKey{DNI: dni, AreaID: areaID}]
}

// Enrolled returns the number already holding a (student, subject) pair.
func (s *ScheduleSnapshot) Enrolled(dni string, subjectID int64) (int64, bool) {
	number, ok := s.enrolled[enrollmentKey{DNI: dni, SubjectID: subjectID}]
	return number, ok
}

// Load counts the numbers dated at slot.
func (s *ScheduleSnapshot) Load(slot models.Slot) int {
	numbers := make(map[int64]struct{})
	for _, list := range s.occupancy[slot] {
		for _, n := range list {
			numbers[n] = struct{}{}
		}
	}
	return len(numbers)
}

// UsedSlots returns every slot holding at least one number, chronologically.
func (s *ScheduleSnapshot) UsedSlots() []models.Slot {
	slots := lo.Keys(s.occupancy)
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots
}

// assignments exposes every student history bucket for violation scans.
func (s *ScheduleSnapshot) assignments() map[models.StudentAreaKey][]Assignment {
	return s.history
}

// occupants returns the per-student numbers at slot.
func (s *ScheduleSnapshot) occupants(slot models.Slot) map[string][]int64 {
	return s.occupancy[slot]
}
