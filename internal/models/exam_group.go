package models

import "time"

// GroupColumns is the number of member columns on an exam group row.
const GroupColumns = 4

// ExamGroup bundles up to four exam numbers sharing one date and shift.
type ExamGroup struct {
	ID        int64      `db:"id" json:"id"`
	AreaID    int64      `db:"area_id" json:"areaId"`
	Number1   *int64     `db:"number1" json:"number1,omitempty"`
	Number2   *int64     `db:"number2" json:"number2,omitempty"`
	Number3   *int64     `db:"number3" json:"number3,omitempty"`
	Number4   *int64     `db:"number4" json:"number4,omitempty"`
	ExamDate  *time.Time `db:"exam_date" json:"examDate,omitempty"`
	Shift     *Shift     `db:"shift" json:"shift,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

func (g *ExamGroup) columns() []**int64 {
	return []**int64{&g.Number1, &g.Number2, &g.Number3, &g.Number4}
}

// Numbers returns the member numbers in column order.
func (g *ExamGroup) Numbers() []int64 {
	numbers := make([]int64, 0, GroupColumns)
	for _, col := range g.columns() {
		if *col != nil {
			numbers = append(numbers, **col)
		}
	}
	return numbers
}

// Size counts the filled member columns.
func (g *ExamGroup) Size() int {
	return len(g.Numbers())
}

// Has reports whether number occupies one of the member columns.
func (g *ExamGroup) Has(number int64) bool {
	return g.Column(number) > 0
}

// Column returns the 1-based column holding number, or 0.
func (g *ExamGroup) Column(number int64) int {
	for i, col := range g.columns() {
		if *col != nil && **col == number {
			return i + 1
		}
	}
	return 0
}

// Add stores number in the first free column and returns that column, or 0 when full.
func (g *ExamGroup) Add(number int64) int {
	for i, col := range g.columns() {
		if *col == nil {
			n := number
			*col = &n
			return i + 1
		}
	}
	return 0
}

// Remove clears the column holding number.
func (g *ExamGroup) Remove(number int64) bool {
	for _, col := range g.columns() {
		if *col != nil && **col == number {
			*col = nil
			return true
		}
	}
	return false
}

// Slot returns the group's slot if both date and shift are set.
func (g *ExamGroup) Slot() (Slot, bool) {
	return SlotOf(g.ExamDate, g.Shift)
}

// SetSlot assigns or clears the group's slot.
func (g *ExamGroup) SetSlot(slot *Slot) {
	if slot == nil {
		g.ExamDate, g.Shift = nil, nil
		return
	}
	g.ExamDate, g.Shift = slot.DatePtr(), slot.ShiftPtr()
}

// Clone returns a deep copy so callers can mutate columns freely.
func (g *ExamGroup) Clone() *ExamGroup {
	clone := *g
	for i, col := range clone.columns() {
		src := g.columns()[i]
		if *src != nil {
			n := **src
			*col = &n
		}
	}
	if g.ExamDate != nil {
		d := *g.ExamDate
		clone.ExamDate = &d
	}
	if g.Shift != nil {
		sh := *g.Shift
		clone.Shift = &sh
	}
	return &clone
}

// UngroupedEntry records an exam number that is not part of any group.
type UngroupedEntry struct {
	Number    int64      `db:"number" json:"number"`
	ExamDate  *time.Time `db:"exam_date" json:"examDate,omitempty"`
	Shift     *Shift     `db:"shift" json:"shift,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}

// Slot returns the entry's slot if both date and shift are set.
func (e UngroupedEntry) Slot() (Slot, bool) {
	return SlotOf(e.ExamDate, e.Shift)
}

// NewUngroupedEntry builds an entry carrying the given slot, or nulls.
func NewUngroupedEntry(number int64, slot *Slot) UngroupedEntry {
	entry := UngroupedEntry{Number: number}
	if slot != nil {
		entry.ExamDate, entry.Shift = slot.DatePtr(), slot.ShiftPtr()
	}
	return entry
}
