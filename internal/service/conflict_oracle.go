package service

import (
	"github.com/samber/lo"

	"github.com/noah-isme/mesa-scheduler/internal/models"
)

// Assignment is one dated exam number in a student's per-area history.
type Assignment struct {
	Number     int64
	CourseYear int
	Slot       models.Slot
	Priority   bool
}

// ConflictOracle answers the placement predicates shared by every scheduler component.
// It holds only the read-only teacher availability; everything else is passed in.
type ConflictOracle struct {
	blocks map[int64][]models.TeacherAvailability
}

// NewConflictOracle indexes availability rows by teacher.
func NewConflictOracle(rows []models.TeacherAvailability) *ConflictOracle {
	return &ConflictOracle{
		blocks: lo.GroupBy(rows, func(row models.TeacherAvailability) int64 { return row.TeacherID }),
	}
}

// UnitsShareStudent reports whether two student sets intersect.
func UnitsShareStudent(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return len(lo.Intersect(a, b)) > 0
}

// TeacherBlocked reports whether teacherID declared the slot unavailable.
func (o *ConflictOracle) TeacherBlocked(teacherID int64, slot models.Slot) bool {
	if o == nil {
		return false
	}
	for _, row := range o.blocks[teacherID] {
		dateSet := row.BlockedDate != nil
		shiftSet := row.BlockedShift != nil && row.BlockedShift.Valid()
		dateMatch := dateSet && models.DateOnly(*row.BlockedDate).Equal(slot.Date)
		shiftMatch := shiftSet && *row.BlockedShift == slot.Shift
		switch {
		case dateSet && shiftSet:
			if dateMatch && shiftMatch {
				return true
			}
		case dateSet:
			if dateMatch {
				return true
			}
		case shiftSet:
			if shiftMatch {
				return true
			}
		}
	}
	return false
}

// AnyTeacherBlocked reports whether any panel member is blocked at slot.
func (o *ConflictOracle) AnyTeacherBlocked(teachers []int64, slot models.Slot) bool {
	return lo.SomeBy(teachers, func(id int64) bool { return o.TeacherBlocked(id, slot) })
}

// ViolatesPrecedence reports whether placing a unit of courseYear at candidate breaks the
// student's ascending year order against history. Entries for exclude are ignored so a
// number can be re-checked at a new slot.
func ViolatesPrecedence(courseYear int, candidate models.Slot, history []Assignment, exclude ...int64) bool {
	for _, prior := range history {
		if lo.Contains(exclude, prior.Number) {
			continue
		}
		switch {
		case prior.Slot.Before(candidate) && prior.CourseYear > courseYear:
			return true
		case candidate.Before(prior.Slot) && prior.CourseYear < courseYear:
			return true
		}
	}
	return false
}
