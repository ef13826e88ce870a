package models

// Subject is a catalog entry ("catedra") tied to an area and a course year.
type Subject struct {
	ID            int64  `db:"id" json:"id"`
	Name          string `db:"name" json:"name"`
	AreaID        *int64 `db:"area_id" json:"areaId,omitempty"`
	CourseYear    int    `db:"course_year" json:"courseYear"`
	LeadTeacherID *int64 `db:"lead_teacher_id" json:"leadTeacherId,omitempty"`
}

// Resolvable reports whether the subject carries the area and lead teacher needed to sit an exam.
func (s Subject) Resolvable() bool {
	return s.AreaID != nil && *s.AreaID > 0 && s.LeadTeacherID != nil && *s.LeadTeacherID > 0
}
