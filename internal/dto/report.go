package dto

// CreateReportRequest queues an asynchronous dues statement export.
type CreateReportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf"`
}
