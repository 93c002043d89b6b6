package dto

// CreatePaymentRequest records money received for a student. Rejected when
// the amount exceeds the student's remaining balance.
type CreatePaymentRequest struct {
	StudentID   string  `json:"student_id" validate:"required,uuid4"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	PaymentDate string  `json:"payment_date" validate:"required,datetime=2006-01-02"`
	Note        *string `json:"note" validate:"omitempty,max=500"`
}

// UpdatePaymentRequest edits a recorded payment. The student cannot change;
// the new amount is re-checked against the remaining balance.
type UpdatePaymentRequest struct {
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	PaymentDate string  `json:"payment_date" validate:"required,datetime=2006-01-02"`
	Note        *string `json:"note" validate:"omitempty,max=500"`
}
