package models

import "time"

// LessonCore carries the fields shared by every lesson kind.
//
// Invariants enforced across the services:
//   - approved = true implies price_locked = true; an approved lesson's
//     total_cost and scheduling fields never change and the lesson cannot
//     be deleted by any role.
//   - deleted_at set means the lesson is excluded from all financial
//     aggregation and cannot be edited, approved or re-deleted.
type LessonCore struct {
	ID           string     `db:"id" json:"id"`
	TeacherID    string     `db:"teacher_id" json:"teacher_id"`
	LessonDate   time.Time  `db:"lesson_date" json:"lesson_date"`
	StartTime    string     `db:"start_time" json:"start_time"`
	Hours        float64    `db:"hours" json:"hours"`
	TotalCost    *float64   `db:"total_cost" json:"total_cost"`
	Approved     bool       `db:"approved" json:"approved"`
	PriceLocked  bool       `db:"price_locked" json:"price_locked"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	DeletionNote *string    `db:"deletion_note" json:"deletion_note,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Deleted reports whether the lesson has been soft deleted.
func (l LessonCore) Deleted() bool {
	return l.DeletedAt != nil
}

// IndividualLesson is a one-teacher one-student session priced from the
// (level, individual) hourly rate.
type IndividualLesson struct {
	LessonCore
	StudentID        string `db:"student_id" json:"student_id"`
	EducationLevelID string `db:"education_level_id" json:"education_level_id"`
}

// GroupLesson is a session shared by two or more students. total_cost is
// the whole-group cost; per-student shares are derived at read time.
type GroupLesson struct {
	LessonCore
	EducationLevelID string   `db:"education_level_id" json:"education_level_id"`
	ParticipantIDs   []string `db:"-" json:"participant_ids"`
}

// RemedialLesson has no education level; its rate is the flat-rate pair
// selected by the student's prior approved remedial count.
type RemedialLesson struct {
	LessonCore
	StudentID string `db:"student_id" json:"student_id"`
}

// LessonFilter captures the list query parameters shared by the three
// lesson collections.
type LessonFilter struct {
	DateFrom         *time.Time
	DateTo           *time.Time
	TeacherID        string
	StudentID        string
	EducationLevelID string
	Approved         *bool
	ShowDeleted      bool
	Page             int
	PageSize         int
}

// ApproveAllResult reports the outcome of a bulk approval. Failures are
// independent per lesson; the batch is never atomic.
type ApproveAllResult struct {
	Approved int `json:"approved"`
	Failed   int `json:"failed"`
	Total    int `json:"total"`
}

// LessonLedgerRow is one line of the flattened lesson export: all three
// lesson kinds with names resolved. Students holds the single student's
// name, or the joined participant names for a group lesson.
type LessonLedgerRow struct {
	LessonType  string    `db:"lesson_type"`
	TeacherName string    `db:"teacher_name"`
	Students    string    `db:"students"`
	LessonDate  time.Time `db:"lesson_date"`
	StartTime   string    `db:"start_time"`
	Hours       float64   `db:"hours"`
	TotalCost   *float64  `db:"total_cost"`
	Approved    bool      `db:"approved"`
}
