package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/markaz-adp-api/internal/dto"
	"github.com/noah-isme/markaz-adp-api/internal/models"
	appErrors "github.com/noah-isme/markaz-adp-api/pkg/errors"
)

type paymentStore interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	Create(ctx context.Context, payment *models.Payment) error
	Update(ctx context.Context, payment *models.Payment) error
	Delete(ctx context.Context, id string) error
}

type balanceReader interface {
	StudentRemaining(ctx context.Context, studentID string) (float64, error)
}

type duesInvalidator interface {
	Invalidate(ctx context.Context)
}

// PaymentService records money received. A payment may never push the
// student's remaining balance below zero.
type PaymentService struct {
	repo      paymentStore
	students  studentReader
	balances  balanceReader
	dues      duesInvalidator
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(repo paymentStore, students studentReader, balances balanceReader, dues duesInvalidator, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PaymentService{repo: repo, students: students, balances: balances, dues: dues, audit: audit, validator: validate, logger: logger}
}

// List returns payments matching the filter.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	payments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return payments, total, nil
}

// Get returns one payment.
func (s *PaymentService) Get(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

// Create records a payment after checking the student exists, is not
// deleted and has enough remaining balance.
func (s *PaymentService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreatePaymentRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Deleted() {
		return nil, appErrors.Clone(appErrors.ErrBusinessRule, "payments cannot be recorded for a deleted student")
	}

	remaining, err := s.balances.StudentRemaining(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if req.Amount > remaining {
		return nil, appErrors.Clone(appErrors.ErrBusinessRule, "payment exceeds the student's remaining balance")
	}

	paymentDate, err := time.Parse("2006-01-02", req.PaymentDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid payment date")
	}

	payment := &models.Payment{
		StudentID:   req.StudentID,
		Amount:      round2(req.Amount),
		PaymentDate: paymentDate,
		Note:        req.Note,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	if s.dues != nil {
		s.dues.Invalidate(ctx)
	}

	if s.audit != nil {
		values, _ := json.Marshal(map[string]interface{}{"student_id": payment.StudentID, "amount": payment.Amount})
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

// Update edits a recorded payment. The new amount may not exceed the
// student's remaining balance plus the amount being replaced.
func (s *PaymentService) Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdatePaymentRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	remaining, err := s.balances.StudentRemaining(ctx, payment.StudentID)
	if err != nil {
		return nil, err
	}
	if req.Amount > round2(remaining+payment.Amount) {
		return nil, appErrors.Clone(appErrors.ErrBusinessRule, "payment exceeds the student's remaining balance")
	}

	paymentDate, err := time.Parse("2006-01-02", req.PaymentDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid payment date")
	}

	oldAmount := payment.Amount
	payment.Amount = round2(req.Amount)
	payment.PaymentDate = paymentDate
	payment.Note = req.Note
	if err := s.repo.Update(ctx, payment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment")
	}

	if s.dues != nil {
		s.dues.Invalidate(ctx)
	}

	if s.audit != nil {
		oldValues, _ := json.Marshal(map[string]interface{}{"amount": oldAmount})
		newValues, _ := json.Marshal(map[string]interface{}{"amount": payment.Amount})
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionPaymentWrite,
			Resource:   "payment",
			ResourceID: &payment.ID,
			OldValues:  oldValues,
			NewValues:  newValues,
		}); err != nil {
			s.logger.Warn("failed to record payment audit log", zap.Error(err))
		}
	}
	return payment, nil
}

// Delete removes a payment, raising the student's remaining balance.
func (s *PaymentService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	payment, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete payment")
	}

	if s.dues != nil {
		s.dues.Invalidate(ctx)
	}

	if s.audit != nil {
		oldValues, _ := json.Marshal(map[string]interface{}{"student_id": payment.StudentID, "amount": payment.Amount})
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionPaymentWrite,
			Resource:   "payment",
			ResourceID: &payment.ID,
			OldValues:  oldValues,
		}); err != nil {
			s.logger.Warn("failed to record payment audit log", zap.Error(err))
		}
	}
	return nil
}
