package models

import "time"

// StudentDues is one reconciliation row. Every non-deleted student appears
// exactly once, zero-valued when they have no lessons or payments.
type StudentDues struct {
	StudentID     string  `json:"student_id"`
	FullName      string  `json:"full_name"`
	IndividualDue float64 `json:"individual_due"`
	GroupDue      float64 `json:"group_due"`
	RemedialDue   float64 `json:"remedial_due"`
	TotalDue      float64 `json:"total_due"`
	TotalPaid     float64 `json:"total_paid"`
	Remaining     float64 `json:"remaining"`
}

// StudentAmount is a per-student aggregation row produced by the lesson
// and payment repositories.
type StudentAmount struct {
	StudentID string  `db:"student_id" json:"student_id"`
	Total     float64 `db:"total" json:"total"`
}

// GroupMembership pairs a group lesson with its active participant count,
// used by the student soft-delete cascade.
type GroupMembership struct {
	GroupLessonID    string `db:"group_lesson_id"`
	ParticipantCount int    `db:"participant_count"`
}

// DuesSummary aggregates the full reconciliation run.
type DuesSummary struct {
	Students    []StudentDues `json:"students"`
	TotalDue    float64       `json:"total_due"`
	TotalPaid   float64       `json:"total_paid"`
	Remaining   float64       `json:"remaining"`
	GeneratedAt time.Time     `json:"generated_at"`
}
