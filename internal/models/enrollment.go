package models

import "time"

// EnrollmentStatus represents the lifecycle of a pending-subject record.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusInscribed EnrollmentStatus = "INSCRIBED"
	EnrollmentStatusApproved  EnrollmentStatus = "APPROVED"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
)

// Enrollment is a student's pending subject ("previa") awaiting an exam.
type Enrollment struct {
	ID           int64            `db:"id" json:"id"`
	DNI          string           `db:"dni" json:"dni"`
	SubjectID    int64            `db:"subject_id" json:"subjectId"`
	CourseYear   int              `db:"course_year" json:"courseYear"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	RegisteredAt time.Time        `db:"registered_at" json:"registeredAt"`
}
