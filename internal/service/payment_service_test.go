package service

import (
	"context"
	"database/sql"
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
)

type mockPaymentStore struct {
	items   map[string]*models.Payment
	deleted []string
}

func (m *mockPaymentStore) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	payments := make([]models.Payment, 0, len(m.items))
	for _, payment := range m.items {
		payments = append(payments, *payment)
	}
	return payments, len(payments), nil
}

func (m *mockPaymentStore) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	if payment, ok := m.items[id]; ok {
		cp := *payment
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPaymentStore) Create(ctx context.Context, payment *models.Payment) error {
	if m.items == nil {
		m.items = make(map[string]*models.Payment)
	}
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	payment.CreatedAt = time.Now()
	payment.UpdatedAt = payment.CreatedAt
	cp := *payment
	m.items[payment.ID] = &cp
	return nil
}

func (m *mockPaymentStore) Update(ctx context.Context, payment *models.Payment) error {
	if _, ok := m.items[payment.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *payment
	m.items[payment.ID] = &cp
	return nil
}

func (m *mockPaymentStore) Delete(ctx context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type stubBalances struct {
	remaining map[string]float64
}

func (s *stubBalances) StudentRemaining(ctx context.Context, studentID string) (float64, error) {
	return s.remaining[studentID], nil
}

func TestPaymentServiceCreate(t *testing.T) {
	studentID := uuid.NewString()
	repo := &mockPaymentStore{}
	dues := &spyDuesInvalidator{}
	service := NewPaymentService(repo, activeStudents(studentID), &stubBalances{remaining: map[string]float64{studentID: 200}}, dues, nil, validator.New(), zap.NewNop())

	payment, err := service.Create(context.Background(), adminActor(), dto.CreatePaymentRequest{
		StudentID:   studentID,
		Amount:      150,
		PaymentDate: "2025-09-01",
	})
	require.NoError(t, err)
	assert.Equal(t, 150.0, payment.Amount)
	assert.Len(t, repo.items, 1)
	assert.Equal(t, 1, dues.calls)
}

func TestPaymentServiceCreateOverpayment(t *testing.T) {
	studentID := uuid.NewString()
	repo := &mockPaymentStore{}
	service := NewPaymentService(repo, activeStudents(studentID), &stubBalances{remaining: map[string]float64{studentID: 100}}, nil, nil, validator.New(), zap.NewNop())

	_, err := service.Create(context.Background(), adminActor(), dto.CreatePaymentRequest{
		StudentID:   studentID,
		Amount:      100.01,
		PaymentDate: "2025-09-01",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBusinessRule.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.items)
}

func TestPaymentServiceCreateForDeletedStudent(t *testing.T) {
	studentID := uuid.NewString()
	deletedAt := time.Now()
	students := &mockStudentReader{students: map[string]*models.StudentDetail{
		studentID: {Student: models.Student{ID: studentID, FullName: "Former Student", DeletedAt: &deletedAt}},
	}}
	service := NewPaymentService(&mockPaymentStore{}, students, &stubBalances{remaining: map[string]float64{studentID: 100}}, nil, nil, validator.New(), zap.NewNop())

	_, err := service.Create(context.Background(), adminActor(), dto.CreatePaymentRequest{
		StudentID:   studentID,
		Amount:      50,
		PaymentDate: "2025-09-01",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBusinessRule.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceUpdateReplacesOwnAmount(t *testing.T) {
	studentID := uuid.NewString()
	repo := &mockPaymentStore{
		items: map[string]*models.Payment{
			"p1": {ID: "p1", StudentID: studentID, Amount: 100, PaymentDate: time.Now()},
		},
	}
	dues := &spyDuesInvalidator{}
	// remaining is computed with p1 already applied, so the edit may grow
	// up to remaining + the replaced amount
	service := NewPaymentService(repo, activeStudents(studentID), &stubBalances{remaining: map[string]float64{studentID: 50}}, dues, nil, validator.New(), zap.NewNop())

	payment, err := service.Update(context.Background(), adminActor(), "p1", dto.UpdatePaymentRequest{
		Amount:      150,
		PaymentDate: "2025-09-02",
	})
	require.NoError(t, err)
	assert.Equal(t, 150.0, payment.Amount)
	assert.Equal(t, 150.0, repo.items["p1"].Amount)
	assert.Equal(t, 1, dues.calls)
}

func TestPaymentServiceUpdateOverpayment(t *testing.T) {
	studentID := uuid.NewString()
	repo := &mockPaymentStore{
		items: map[string]*models.Payment{
			"p1": {ID: "p1", StudentID: studentID, Amount: 100, PaymentDate: time.Now()},
		},
	}
	service := NewPaymentService(repo, activeStudents(studentID), &stubBalances{remaining: map[string]float64{studentID: 50}}, nil, nil, validator.New(), zap.NewNop())

	_, err := service.Update(context.Background(), adminActor(), "p1", dto.UpdatePaymentRequest{
		Amount:      150.01,
		PaymentDate: "2025-09-02",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBusinessRule.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 100.0, repo.items["p1"].Amount)
}

func TestPaymentServiceDelete(t *testing.T) {
	studentID := uuid.NewString()
	repo := &mockPaymentStore{
		items: map[string]*models.Payment{
			"p1": {ID: "p1", StudentID: studentID, Amount: 100, PaymentDate: time.Now()},
		},
	}
	dues := &spyDuesInvalidator{}
	service := NewPaymentService(repo, activeStudents(studentID), &stubBalances{}, dues, nil, validator.New(), zap.NewNop())

	require.NoError(t, service.Delete(context.Background(), adminActor(), "p1"))
	assert.Equal(t, []string{"p1"}, repo.deleted)
	assert.Empty(t, repo.items)
	assert.Equal(t, 1, dues.calls)
}

func TestPaymentServiceDeleteMissing(t *testing.T) {
	service := NewPaymentService(&mockPaymentStore{}, activeStudents(), &stubBalances{}, nil, nil, validator.New(), zap.NewNop())

	err := service.Delete(context.Background(), adminActor(), uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
