package service

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/markaz-adp-api/internal/dto"
	"github.com/noah-isme/markaz-adp-api/internal/models"
	appErrors "github.com/noah-isme/markaz-adp-api/pkg/errors"
	"github.com/noah-isme/markaz-adp-api/pkg/jobs"
)

type stubSummarizer struct {
	summary *models.DuesSummary
}

func (s *stubSummarizer) Summary(ctx context.Context) (*models.DuesSummary, error) {
	return s.summary, nil
}

type mockReportStore struct {
	items map[string]*models.ReportJob
}

func (m *mockReportStore) Create(ctx context.Context, job *models.ReportJob) error {
	if m.items == nil {
		m.items = make(map[string]*models.ReportJob)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.CreatedAt = time.Now()
	cp := *job
	m.items[job.ID] = &cp
	return nil
}

func (m *mockReportStore) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	if job, ok := m.items[id]; ok {
		cp := *job
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockReportStore) UpdateStatus(ctx context.Context, id string, status models.ReportStatus, filePath, errorText *string) error {
	job, ok := m.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	job.Status = status
	job.FilePath = filePath
	job.ErrorText = errorText
	return nil
}

func (m *mockReportStore) ListByUser(ctx context.Context, userID string, limit int) ([]models.ReportJob, error) {
	var reports []models.ReportJob
	for _, job := range m.items {
		if job.RequestedBy == userID {
			reports = append(reports, *job)
		}
	}
	return reports, nil
}

type mockExportRoster struct {
	roster []models.StudentDetail
}

func (m *mockExportRoster) ExportRoster(ctx context.Context) ([]models.StudentDetail, error) {
	return m.roster, nil
}

type stubLessonLedger struct {
	rows []models.LessonLedgerRow
}

func (s *stubLessonLedger) ExportLedger(ctx context.Context) ([]models.LessonLedgerRow, error) {
	return s.rows, nil
}

type spyReportQueue struct {
	jobs []jobs.Job
	err  error
}

func (s *spyReportQueue) Enqueue(job jobs.Job) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func exportFixtureSummary() *models.DuesSummary {
	return &models.DuesSummary{
		Students: []models.StudentDues{
			{StudentID: "s1", FullName: "طالب أول", IndividualDue: 150, TotalDue: 150, TotalPaid: 100, Remaining: 50},
		},
		TotalDue:    150,
		TotalPaid:   100,
		Remaining:   50,
		GeneratedAt: time.Now().UTC(),
	}
}

func TestExportServiceRenderDuesCSV(t *testing.T) {
	service := NewExportService(&stubSummarizer{summary: exportFixtureSummary()}, &mockReportStore{}, &mockExportRoster{}, &stubLessonLedger{}, t.TempDir(), validator.New(), zap.NewNop())

	payload, contentType, err := service.RenderDues(context.Background(), models.ReportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", contentType)

	// spreadsheet tools need the BOM to detect the Arabic headers
	assert.True(t, bytes.HasPrefix(payload, []byte{0xEF, 0xBB, 0xBF}))
	assert.Contains(t, string(payload), "اسم الطالب")
	assert.Contains(t, string(payload), "طالب أول")
	assert.Contains(t, string(payload), "150.00")
}

func TestExportServiceRenderDuesPDF(t *testing.T) {
	service := NewExportService(&stubSummarizer{summary: exportFixtureSummary()}, &mockReportStore{}, &mockExportRoster{}, &stubLessonLedger{}, t.TempDir(), validator.New(), zap.NewNop())

	payload, contentType, err := service.RenderDues(context.Background(), models.ReportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.True(t, bytes.HasPrefix(payload, []byte("%PDF")))
}

func TestExportServiceRenderStudents(t *testing.T) {
	levelName := "المرحلة الثانوية"
	class := "أ"
	roster := &mockExportRoster{roster: []models.StudentDetail{
		{
			Student:     models.Student{ID: uuid.NewString(), FullName: "محمد أحمد", ParentPhone: "0512345678"},
			LevelNameAr: &levelName,
		},
		{
			Student: models.Student{ID: uuid.NewString(), FullName: "سارة خالد", ParentPhone: "0598765432", ClassLabel: &class},
		},
	}}
	service := NewExportService(&stubSummarizer{summary: exportFixtureSummary()}, &mockReportStore{}, roster, &stubLessonLedger{}, t.TempDir(), validator.New(), zap.NewNop())

	payload, contentType, err := service.RenderStudents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", contentType)
	assert.Contains(t, string(payload), "هاتف ولي الأمر")
	assert.Contains(t, string(payload), "محمد أحمد")
	assert.Contains(t, string(payload), "0598765432")
}

func TestExportServiceRenderLessons(t *testing.T) {
	cost := 180.0
	ledger := &stubLessonLedger{rows: []models.LessonLedgerRow{
		{
			LessonType:  "group",
			TeacherName: "أحمد علي",
			Students:    "محمد أحمد، سارة خالد، ليلى حسن",
			LessonDate:  time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
			StartTime:   "16:00",
			Hours:       2,
			TotalCost:   &cost,
			Approved:    true,
		},
		{
			LessonType:  "remedial",
			TeacherName: "أحمد علي",
			Students:    "محمد أحمد",
			LessonDate:  time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
			StartTime:   "17:30",
			Hours:       1.5,
		},
	}}
	service := NewExportService(&stubSummarizer{summary: exportFixtureSummary()}, &mockReportStore{}, &mockExportRoster{}, ledger, t.TempDir(), validator.New(), zap.NewNop())

	payload, contentType, err := service.RenderLessons(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", contentType)
	assert.True(t, bytes.HasPrefix(payload, []byte{0xEF, 0xBB, 0xBF}))

	text := string(payload)
	assert.Contains(t, text, "نوع الدرس")
	assert.Contains(t, text, "مجموعة")
	assert.Contains(t, text, "تقوية")
	assert.Contains(t, text, "2026-03-14")
	assert.Contains(t, text, "180.00")
	assert.Contains(t, text, "نعم")
	assert.Contains(t, text, "لا")
}

func TestExportServiceQueueWithoutWorkers(t *testing.T) {
	service := NewExportService(&stubSummarizer{summary: exportFixtureSummary()}, &mockReportStore{}, &mockExportRoster{}, &stubLessonLedger{}, t.TempDir(), validator.New(), zap.NewNop())

	_, err := service.QueueDuesReport(context.Background(), adminActor(), dto.CreateReportRequest{Format: "csv"})
	require.Error(t, err)
}

func TestExportServiceQueueDuesReport(t *testing.T) {
	store := &mockReportStore{}
	queue := &spyReportQueue{}
	service := NewExportService(&stubSummarizer{summary: exportFixtureSummary()}, store, &mockExportRoster{}, &stubLessonLedger{}, t.TempDir(), validator.New(), zap.NewNop())
	service.AttachQueue(queue)

	actor := adminActor()
	job, err := service.QueueDuesReport(context.Background(), actor, dto.CreateReportRequest{Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusPending, job.Status)
	assert.Equal(t, actor.UserID, job.RequestedBy)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, job.ID, queue.jobs[0].Payload)
}

func TestExportServiceProcessReportJob(t *testing.T) {
	dir := t.TempDir()
	store := &mockReportStore{}
	service := NewExportService(&stubSummarizer{summary: exportFixtureSummary()}, store, &mockExportRoster{}, &stubLessonLedger{}, dir, validator.New(), zap.NewNop())

	job := &models.ReportJob{RequestedBy: uuid.NewString(), Format: models.ReportFormatCSV, Status: models.ReportStatusPending}
	require.NoError(t, store.Create(context.Background(), job))

	require.NoError(t, service.ProcessReportJob(context.Background(), jobs.Job{ID: uuid.NewString(), Type: "dues_report", Payload: job.ID}))

	stored := store.items[job.ID]
	assert.Equal(t, models.ReportStatusCompleted, stored.Status)
	require.NotNil(t, stored.FilePath)

	payload, err := os.ReadFile(*stored.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "طالب أول")
}

func TestExportServiceProcessCompletedJobIsNoop(t *testing.T) {
	dir := t.TempDir()
	store := &mockReportStore{}
	service := NewExportService(&stubSummarizer{summary: exportFixtureSummary()}, store, &mockExportRoster{}, &stubLessonLedger{}, dir, validator.New(), zap.NewNop())

	path := dir + "/already.csv"
	job := &models.ReportJob{RequestedBy: uuid.NewString(), Format: models.ReportFormatCSV, Status: models.ReportStatusCompleted, FilePath: &path}
	require.NoError(t, store.Create(context.Background(), job))

	require.NoError(t, service.ProcessReportJob(context.Background(), jobs.Job{Payload: job.ID}))
	assert.Equal(t, models.ReportStatusCompleted, store.items[job.ID].Status)
}

func TestExportServiceGetReportForbidden(t *testing.T) {
	store := &mockReportStore{}
	service := NewExportService(&stubSummarizer{summary: exportFixtureSummary()}, store, &mockExportRoster{}, &stubLessonLedger{}, t.TempDir(), validator.New(), zap.NewNop())

	job := &models.ReportJob{RequestedBy: uuid.NewString(), Format: models.ReportFormatCSV, Status: models.ReportStatusPending}
	require.NoError(t, store.Create(context.Background(), job))

	teacher := &models.JWTClaims{UserID: uuid.NewString(), Role: models.RoleTeacher}
	_, err := service.GetReport(context.Background(), teacher, job.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// admins can read any job
	_, err = service.GetReport(context.Background(), adminActor(), job.ID)
	require.NoError(t, err)
}
