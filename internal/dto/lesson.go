package dto

// CreateIndividualLessonRequest records a one-student session. The cost is
// computed server-side from the pricing table; clients never submit prices.
type CreateIndividualLessonRequest struct {
	TeacherID        string  `json:"teacher_id" validate:"required,uuid4"`
	StudentID        string  `json:"student_id" validate:"required,uuid4"`
	EducationLevelID string  `json:"education_level_id" validate:"required,uuid4"`
	LessonDate       string  `json:"lesson_date" validate:"required,datetime=2006-01-02"`
	StartTime        string  `json:"start_time" validate:"required,datetime=15:04"`
	Hours            float64 `json:"hours" validate:"required,gt=0,lte=12"`
}

// UpdateIndividualLessonRequest rewrites a pending unlocked lesson.
type UpdateIndividualLessonRequest = CreateIndividualLessonRequest

// CreateGroupLessonRequest records a shared session. Participants must all
// be active students; the tier lookup uses their count.
type CreateGroupLessonRequest struct {
	TeacherID        string   `json:"teacher_id" validate:"required,uuid4"`
	EducationLevelID string   `json:"education_level_id" validate:"required,uuid4"`
	LessonDate       string   `json:"lesson_date" validate:"required,datetime=2006-01-02"`
	StartTime        string   `json:"start_time" validate:"required,datetime=15:04"`
	Hours            float64  `json:"hours" validate:"required,gt=0,lte=12"`
	ParticipantIDs   []string `json:"participant_ids" validate:"required,min=2,unique,dive,uuid4"`
}

// UpdateGroupLessonRequest rewrites a pending unlocked group lesson,
// participants included.
type UpdateGroupLessonRequest = CreateGroupLessonRequest

// CreateRemedialLessonRequest records a remedial session. No level; the
// rate comes from the flat-rate settings pair.
type CreateRemedialLessonRequest struct {
	TeacherID  string  `json:"teacher_id" validate:"required,uuid4"`
	StudentID  string  `json:"student_id" validate:"required,uuid4"`
	LessonDate string  `json:"lesson_date" validate:"required,datetime=2006-01-02"`
	StartTime  string  `json:"start_time" validate:"required,datetime=15:04"`
	Hours      float64 `json:"hours" validate:"required,gt=0,lte=12"`
}

// UpdateRemedialLessonRequest rewrites a pending unlocked remedial lesson.
type UpdateRemedialLessonRequest = CreateRemedialLessonRequest

// DeleteLessonRequest soft-deletes a lesson with an optional note.
type DeleteLessonRequest struct {
	Note *string `json:"note" validate:"omitempty,max=500"`
}
