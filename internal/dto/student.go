package dto

// CreateStudentRequest registers a new student. ParentPhone follows the
// local mobile format 05XXXXXXXX enforced by the saphone rule.
type CreateStudentRequest struct {
	FullName         string  `json:"full_name" validate:"required,min=3,max=120"`
	ParentPhone      string  `json:"parent_phone" validate:"required,saphone"`
	EducationLevelID string  `json:"education_level_id" validate:"required,uuid4"`
	ClassLabel       *string `json:"class_label" validate:"omitempty,max=60"`
}

// UpdateStudentRequest modifies an existing student.
type UpdateStudentRequest struct {
	FullName         string  `json:"full_name" validate:"required,min=3,max=120"`
	ParentPhone      string  `json:"parent_phone" validate:"required,saphone"`
	EducationLevelID string  `json:"education_level_id" validate:"required,uuid4"`
	ClassLabel       *string `json:"class_label" validate:"omitempty,max=60"`
}
