package models

import "time"

// PriorityFirst flags an exam unit with scheduling priority.
const PriorityFirst = 1

// ExamUnit is one student's exam in one subject. Rows sharing Number sit together
// under the same teacher panel and slot.
type ExamUnit struct {
	ID         int64      `db:"id" json:"id"`
	Number     int64      `db:"number" json:"number"`
	DNI        string     `db:"dni" json:"dni"`
	SubjectID  int64      `db:"subject_id" json:"subjectId"`
	AreaID     int64      `db:"area_id" json:"areaId"`
	CourseYear int        `db:"course_year" json:"courseYear"`
	Teacher1ID *int64     `db:"teacher1_id" json:"teacher1Id,omitempty"`
	Teacher2ID *int64     `db:"teacher2_id" json:"teacher2Id,omitempty"`
	Teacher3ID *int64     `db:"teacher3_id" json:"teacher3Id,omitempty"`
	ExamDate   *time.Time `db:"exam_date" json:"examDate,omitempty"`
	Shift      *Shift     `db:"shift" json:"shift,omitempty"`
	Priority   int        `db:"priority" json:"priority"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// Teachers returns the non-empty panel members in column order.
func (u ExamUnit) Teachers() []int64 {
	teachers := make([]int64, 0, 3)
	for _, id := range []*int64{u.Teacher1ID, u.Teacher2ID, u.Teacher3ID} {
		if id != nil && *id > 0 {
			teachers = append(teachers, *id)
		}
	}
	return teachers
}

// SetPanel fills the teacher columns from the provided ids.
func (u *ExamUnit) SetPanel(panel []int64) {
	cols := []**int64{&u.Teacher1ID, &u.Teacher2ID, &u.Teacher3ID}
	for i, col := range cols {
		if i < len(panel) {
			id := panel[i]
			*col = &id
			continue
		}
		*col = nil
	}
}

// Slot returns the scheduled slot if both date and shift are set.
func (u ExamUnit) Slot() (Slot, bool) {
	return SlotOf(u.ExamDate, u.Shift)
}

// IsPriority reports whether the unit carries the priority-1 flag.
func (u ExamUnit) IsPriority() bool {
	return u.Priority == PriorityFirst
}
