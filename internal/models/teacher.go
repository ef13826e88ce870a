package models

import "time"

// Teacher represents an examiner from the registry.
type Teacher struct {
	ID       int64  `db:"id" json:"id"`
	FullName string `db:"full_name" json:"fullName"`
	AreaID   *int64 `db:"area_id" json:"areaId,omitempty"`
	Active   bool   `db:"active" json:"active"`
}

// TeacherAvailability declares when a teacher cannot examine. A row with only a
// date blocks both shifts of that day; a row with only a shift blocks that shift on every date.
type TeacherAvailability struct {
	ID           int64      `db:"id" json:"id"`
	TeacherID    int64      `db:"teacher_id" json:"teacherId"`
	BlockedDate  *time.Time `db:"blocked_date" json:"blockedDate,omitempty"`
	BlockedShift *Shift     `db:"blocked_shift" json:"blockedShift,omitempty"`
}
