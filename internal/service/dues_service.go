package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/markaz-adp-api/internal/models"
	appErrors "github.com/noah-isme/markaz-adp-api/pkg/errors"
)

type duesStudentStore interface {
	ListRoster(ctx context.Context) ([]models.Student, error)
}

type duesLessonStore interface {
	ApprovedIndividualTotals(ctx context.Context) ([]models.StudentAmount, error)
	ApprovedGroupShares(ctx context.Context) ([]models.StudentAmount, error)
	ApprovedRemedialTotals(ctx context.Context) ([]models.StudentAmount, error)
}

type duesPaymentStore interface {
	Totals(ctx context.Context) ([]models.StudentAmount, error)
	Create(ctx context.Context, payment *models.Payment) error
}

type cacheMetrics interface {
	RecordCacheLookup(hit bool)
}

// DuesCacheConfig controls the Redis summary cache.
type DuesCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

const duesSummaryCacheKey = "dues:summary"

// autoPaymentNote marks payments written by the auto-complete action.
const autoPaymentNote = "دفع تلقائي"

// DuesService reconciles approved lesson charges against payments. Every
// non-deleted student gets a row; only approved non-deleted lessons count
// toward dues, so pending and deleted work never bills anyone.
type DuesService struct {
	students duesStudentStore
	lessons  duesLessonStore
	payments duesPaymentStore
	cache    *redis.Client
	cacheCfg DuesCacheConfig
	metrics  cacheMetrics
	audit    auditWriter
	logger   *zap.Logger
}

// NewDuesService constructs a DuesService. cache may be nil, which
// disables the summary cache.
func NewDuesService(students duesStudentStore, lessons duesLessonStore, payments duesPaymentStore, cache *redis.Client, cacheCfg DuesCacheConfig, audit auditWriter, logger *zap.Logger) *DuesService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DuesService{students: students, lessons: lessons, payments: payments, cache: cache, cacheCfg: cacheCfg, audit: audit, logger: logger}
}

// AttachMetrics wires the cache hit/miss counters.
func (s *DuesService) AttachMetrics(metrics cacheMetrics) {
	s.metrics = metrics
}

// Summary runs (or returns the cached) full reconciliation.
func (s *DuesService) Summary(ctx context.Context) (*models.DuesSummary, error) {
	if s.cacheEnabled() {
		if cached, err := s.cache.Get(ctx, duesSummaryCacheKey).Bytes(); err == nil {
			var summary models.DuesSummary
			if err := json.Unmarshal(cached, &summary); err == nil {
				s.recordCacheLookup(true)
				return &summary, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn("dues cache read failed", zap.Error(err))
		}
		s.recordCacheLookup(false)
	}

	summary, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}

	if s.cacheEnabled() {
		if payload, err := json.Marshal(summary); err == nil {
			if err := s.cache.Set(ctx, duesSummaryCacheKey, payload, s.cacheCfg.TTL).Err(); err != nil {
				s.logger.Warn("dues cache write failed", zap.Error(err))
			}
		}
	}
	return summary, nil
}

// StudentDues computes one student's reconciliation row directly,
// bypassing the cache.
func (s *DuesService) StudentDues(ctx context.Context, studentID string) (*models.StudentDues, error) {
	summary, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}
	for i := range summary.Students {
		if summary.Students[i].StudentID == studentID {
			return &summary.Students[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
}

// StudentRemaining returns one student's live remaining balance;
// overpayment guards need the uncached figure.
func (s *DuesService) StudentRemaining(ctx context.Context, studentID string) (float64, error) {
	row, err := s.StudentDues(ctx, studentID)
	if err != nil {
		return 0, err
	}
	return row.Remaining, nil
}

// AutoCompletePayment settles a student's remaining balance with a single
// generated payment.
func (s *DuesService) AutoCompletePayment(ctx context.Context, actor *models.JWTClaims, studentID string) (*models.Payment, error) {
	remaining, err := s.StudentRemaining(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if remaining <= 0 {
		return nil, appErrors.Clone(appErrors.ErrBusinessRule, "student has no remaining balance")
	}

	note := autoPaymentNote
	payment := &models.Payment{
		StudentID:   studentID,
		Amount:      round2(remaining),
		PaymentDate: time.Now().UTC(),
		Note:        &note,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	s.Invalidate(ctx)

	if s.audit != nil {
		values, _ := json.Marshal(map[string]interface{}{"amount": payment.Amount, "auto": true})
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionPaymentWrite,
			Resource:   "payment",
			ResourceID: &payment.ID,
			NewValues:  values,
		}); err != nil {
			s.logger.Warn("failed to record payment audit log", zap.Error(err))
		}
	}
	return payment, nil
}

// Invalidate drops the cached summary after a financial write.
func (s *DuesService) Invalidate(ctx context.Context) {
	if !s.cacheEnabled() {
		return
	}
	if err := s.cache.Del(ctx, duesSummaryCacheKey).Err(); err != nil {
		s.logger.Warn("dues cache invalidation failed", zap.Error(err))
	}
}

func (s *DuesService) cacheEnabled() bool {
	return s.cache != nil && s.cacheCfg.Enabled
}

func (s *DuesService) recordCacheLookup(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(hit)
	}
}

func (s *DuesService) compute(ctx context.Context) (*models.DuesSummary, error) {
	roster, err := s.students.ListRoster(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	individual, err := s.lessons.ApprovedIndividualTotals(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate individual dues")
	}
	group, err := s.lessons.ApprovedGroupShares(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate group dues")
	}
	remedial, err := s.lessons.ApprovedRemedialTotals(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate remedial dues")
	}
	paid, err := s.payments.Totals(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate payments")
	}

	individualByStudent := amountMap(individual)
	groupByStudent := amountMap(group)
	remedialByStudent := amountMap(remedial)
	paidByStudent := amountMap(paid)

	summary := &models.DuesSummary{GeneratedAt: time.Now().UTC()}
	for _, student := range roster {
		row := models.StudentDues{
			StudentID:     student.ID,
			FullName:      student.FullName,
			IndividualDue: round2(individualByStudent[student.ID]),
			GroupDue:      round2(groupByStudent[student.ID]),
			RemedialDue:   round2(remedialByStudent[student.ID]),
			TotalPaid:     round2(paidByStudent[student.ID]),
		}
		row.TotalDue = round2(row.IndividualDue + row.GroupDue + row.RemedialDue)
		row.Remaining = round2(row.TotalDue - row.TotalPaid)
		summary.Students = append(summary.Students, row)

		summary.TotalDue = round2(summary.TotalDue + row.TotalDue)
		summary.TotalPaid = round2(summary.TotalPaid + row.TotalPaid)
		summary.Remaining = round2(summary.Remaining + row.Remaining)
	}
	return summary, nil
}

func amountMap(amounts []models.StudentAmount) map[string]float64 {
	m := make(map[string]float64, len(amounts))
	for _, a := range amounts {
		m[a.StudentID] = a.Total
	}
	return m
}
