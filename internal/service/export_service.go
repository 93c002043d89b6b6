package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/markaz-adp-api/internal/dto"
	"github.com/noah-isme/markaz-adp-api/internal/models"
	appErrors "github.com/noah-isme/markaz-adp-api/pkg/errors"
	"github.com/noah-isme/markaz-adp-api/pkg/export"
	"github.com/noah-isme/markaz-adp-api/pkg/jobs"
)

type duesSummarizer interface {
	Summary(ctx context.Context) (*models.DuesSummary, error)
}

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	UpdateStatus(ctx context.Context, id string, status models.ReportStatus, filePath, errorText *string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.ReportJob, error)
}

type reportQueue interface {
	Enqueue(job jobs.Job) error
}

type studentRoster interface {
	ExportRoster(ctx context.Context) ([]models.StudentDetail, error)
}

type lessonLedger interface {
	ExportLedger(ctx context.Context) ([]models.LessonLedgerRow, error)
}

type renderMetrics interface {
	RecordReportRendered(format string)
}

// duesCSVHeaders are the Arabic column titles used by the spreadsheet
// export; the office works in Arabic.
var duesCSVHeaders = []string{"اسم الطالب", "دروس فردية", "دروس مجموعات", "دروس تقوية", "الإجمالي", "المدفوع", "المتبقي"}

// duesPDFHeaders use Latin titles; the core PDF fonts cannot shape Arabic.
var duesPDFHeaders = []string{"Student", "Individual", "Group", "Remedial", "Total Due", "Paid", "Remaining"}

var studentCSVHeaders = []string{"اسم الطالب", "هاتف ولي الأمر", "المرحلة الدراسية", "الفصل"}

var lessonCSVHeaders = []string{"نوع الدرس", "المعلم", "الطلاب", "التاريخ", "وقت البدء", "عدد الساعات", "التكلفة", "معتمد"}

// lessonTypeLabels translate the ledger's type discriminator for the
// Arabic spreadsheet.
var lessonTypeLabels = map[string]string{
	"individual": "فردي",
	"group":      "مجموعة",
	"remedial":   "تقوية",
}

// ExportService renders dues statements synchronously (download) and
// asynchronously (queued report jobs written to the storage directory).
type ExportService struct {
	dues       duesSummarizer
	reports    reportJobStore
	students   studentRoster
	lessons    lessonLedger
	queue      reportQueue
	metrics    renderMetrics
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	storageDir string
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewExportService constructs an ExportService. The queue may be attached
// later with AttachQueue since the queue handler needs the service itself.
func NewExportService(dues duesSummarizer, reports reportJobStore, students studentRoster, lessons lessonLedger, storageDir string, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ExportService{
		dues:       dues,
		reports:    reports,
		students:   students,
		lessons:    lessons,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		storageDir: storageDir,
		validator:  validate,
		logger:     logger,
	}
}

// AttachQueue wires the background queue used for async statements.
func (s *ExportService) AttachQueue(queue reportQueue) {
	s.queue = queue
}

// AttachMetrics wires the render counters.
func (s *ExportService) AttachMetrics(metrics renderMetrics) {
	s.metrics = metrics
}

// RenderDues renders the current dues summary in the requested format for
// immediate download.
func (s *ExportService) RenderDues(ctx context.Context, format models.ReportFormat) ([]byte, string, error) {
	summary, err := s.dues.Summary(ctx)
	if err != nil {
		return nil, "", err
	}

	switch format {
	case models.ReportFormatCSV:
		payload, err := s.csv.Render(duesDataset(summary, duesCSVHeaders))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		s.recordRender("csv")
		return payload, "text/csv; charset=utf-8", nil
	case models.ReportFormatPDF:
		payload, err := s.pdf.Render(duesDataset(summary, duesPDFHeaders), "Dues Statement")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		s.recordRender("pdf")
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unknown export format")
	}
}

// RenderStudents renders the non-deleted student roster as a CSV download.
func (s *ExportService) RenderStudents(ctx context.Context) ([]byte, string, error) {
	roster, err := s.students.ExportRoster(ctx)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	rows := make([]map[string]string, 0, len(roster))
	for _, student := range roster {
		level := ""
		if student.LevelNameAr != nil {
			level = *student.LevelNameAr
		}
		class := ""
		if student.ClassLabel != nil {
			class = *student.ClassLabel
		}
		rows = append(rows, map[string]string{
			studentCSVHeaders[0]: student.FullName,
			studentCSVHeaders[1]: student.ParentPhone,
			studentCSVHeaders[2]: level,
			studentCSVHeaders[3]: class,
		})
	}

	payload, err := s.csv.Render(export.Dataset{Headers: studentCSVHeaders, Rows: rows})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	s.recordRender("csv")
	return payload, "text/csv; charset=utf-8", nil
}

// RenderLessons renders the flattened lesson ledger as a CSV download.
func (s *ExportService) RenderLessons(ctx context.Context) ([]byte, string, error) {
	ledger, err := s.lessons.ExportLedger(ctx)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson ledger")
	}

	rows := make([]map[string]string, 0, len(ledger))
	for _, entry := range ledger {
		cost := ""
		if entry.TotalCost != nil {
			cost = formatAmount(*entry.TotalCost)
		}
		approved := "لا"
		if entry.Approved {
			approved = "نعم"
		}
		rows = append(rows, map[string]string{
			lessonCSVHeaders[0]: lessonTypeLabels[entry.LessonType],
			lessonCSVHeaders[1]: entry.TeacherName,
			lessonCSVHeaders[2]: entry.Students,
			lessonCSVHeaders[3]: entry.LessonDate.Format("2006-01-02"),
			lessonCSVHeaders[4]: entry.StartTime,
			lessonCSVHeaders[5]: strconv.FormatFloat(entry.Hours, 'f', -1, 64),
			lessonCSVHeaders[6]: cost,
			lessonCSVHeaders[7]: approved,
		})
	}

	payload, err := s.csv.Render(export.Dataset{Headers: lessonCSVHeaders, Rows: rows})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	s.recordRender("csv")
	return payload, "text/csv; charset=utf-8", nil
}

// QueueDuesReport records a pending report job and enqueues it.
func (s *ExportService) QueueDuesReport(ctx context.Context, actor *models.JWTClaims, req dto.CreateReportRequest) (*models.ReportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "report queue is not running")
	}

	job := &models.ReportJob{
		RequestedBy: actor.UserID,
		Format:      models.ReportFormat(req.Format),
		Status:      models.ReportStatusPending,
	}
	if err := s.reports.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: "dues_report", Payload: job.ID}); err != nil {
		errText := err.Error()
		if updateErr := s.reports.UpdateStatus(ctx, job.ID, models.ReportStatusFailed, nil, &errText); updateErr != nil {
			s.logger.Warn("failed to mark report job failed", zap.Error(updateErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	return job, nil
}

// ProcessReportJob is the queue handler: it renders the statement to the
// storage directory and transitions the job record.
func (s *ExportService) ProcessReportJob(ctx context.Context, queued jobs.Job) error {
	jobID, ok := queued.Payload.(string)
	if !ok {
		return fmt.Errorf("dues report job carries no job ID")
	}

	job, err := s.reports.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", jobID, err)
	}
	if job.Status == models.ReportStatusCompleted {
		return nil
	}

	if err := s.reports.UpdateStatus(ctx, jobID, models.ReportStatusRunning, nil, nil); err != nil {
		return fmt.Errorf("mark report running: %w", err)
	}

	payload, _, err := s.RenderDues(ctx, job.Format)
	if err != nil {
		errText := err.Error()
		if updateErr := s.reports.UpdateStatus(ctx, jobID, models.ReportStatusFailed, nil, &errText); updateErr != nil {
			s.logger.Warn("failed to mark report job failed", zap.Error(updateErr))
		}
		return err
	}

	if err := os.MkdirAll(s.storageDir, 0o755); err != nil {
		return fmt.Errorf("prepare storage dir: %w", err)
	}
	fileName := fmt.Sprintf("dues-%s-%s.%s", time.Now().UTC().Format("20060102-150405"), jobID[:8], job.Format)
	filePath := filepath.Join(s.storageDir, fileName)
	if err := os.WriteFile(filePath, payload, 0o644); err != nil {
		errText := err.Error()
		if updateErr := s.reports.UpdateStatus(ctx, jobID, models.ReportStatusFailed, nil, &errText); updateErr != nil {
			s.logger.Warn("failed to mark report job failed", zap.Error(updateErr))
		}
		return fmt.Errorf("write report file: %w", err)
	}

	if err := s.reports.UpdateStatus(ctx, jobID, models.ReportStatusCompleted, &filePath, nil); err != nil {
		return fmt.Errorf("mark report completed: %w", err)
	}
	s.logger.Info("dues report rendered", zap.String("job_id", jobID), zap.String("file", filePath))
	return nil
}

// GetReport returns a report job visible to the actor. Non-admins only
// see their own jobs.
func (s *ExportService) GetReport(ctx context.Context, actor *models.JWTClaims, id string) (*models.ReportJob, error) {
	job, err := s.reports.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	if actor.Role != models.RoleAdmin && job.RequestedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report belongs to another user")
	}
	return job, nil
}

// ListReports returns the actor's recent report jobs.
func (s *ExportService) ListReports(ctx context.Context, actor *models.JWTClaims, limit int) ([]models.ReportJob, error) {
	reports, err := s.reports.ListByUser(ctx, actor.UserID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}
	return reports, nil
}

func duesDataset(summary *models.DuesSummary, headers []string) export.Dataset {
	rows := make([]map[string]string, 0, len(summary.Students))
	for _, row := range summary.Students {
		rows = append(rows, map[string]string{
			headers[0]: row.FullName,
			headers[1]: formatAmount(row.IndividualDue),
			headers[2]: formatAmount(row.GroupDue),
			headers[3]: formatAmount(row.RemedialDue),
			headers[4]: formatAmount(row.TotalDue),
			headers[5]: formatAmount(row.TotalPaid),
			headers[6]: formatAmount(row.Remaining),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func (s *ExportService) recordRender(format string) {
	if s.metrics != nil {
		s.metrics.RecordReportRendered(format)
	}
}
