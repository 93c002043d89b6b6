package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/markaz-adp-api/internal/dto"
	"github.com/noah-isme/markaz-adp-api/internal/models"
	"github.com/noah-isme/markaz-adp-api/internal/validation"
	appErrors "github.com/noah-isme/markaz-adp-api/pkg/errors"
)

type mockTeacherUserStore struct {
	items       map[string]*models.User
	emailIndex  map[string]string
	deactivated []string
}

func (m *mockTeacherUserStore) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var users []models.User
	for _, user := range m.items {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		users = append(users, *user)
	}
	return users, len(users), nil
}

func (m *mockTeacherUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.items[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTeacherUserStore) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	if owner, ok := m.emailIndex[email]; ok {
		if excludeID == "" || owner != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockTeacherUserStore) Create(ctx context.Context, user *models.User) error {
	if m.items == nil {
		m.items = make(map[string]*models.User)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	cp := *user
	m.items[user.ID] = &cp
	return nil
}

func (m *mockTeacherUserStore) Update(ctx context.Context, user *models.User) error {
	cp := *user
	m.items[user.ID] = &cp
	return nil
}

func (m *mockTeacherUserStore) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	if user, ok := m.items[id]; ok {
		user.Active = false
	}
	return nil
}

func TestTeacherServiceCreate(t *testing.T) {
	repo := &mockTeacherUserStore{}
	service := NewTeacherService(repo, validation.New(), zap.NewNop())

	teacher, err := service.Create(context.Background(), dto.CreateTeacherRequest{
		Email:    "teacher@markaz.example",
		Password: "secret123",
		FullName: "معلم أول",
		Phone:    "0512345678",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, teacher.Role)
	assert.True(t, teacher.Active)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(teacher.PasswordHash), []byte("secret123")))
	assert.Len(t, repo.items, 1)
}

func TestTeacherServiceCreateDuplicateEmail(t *testing.T) {
	repo := &mockTeacherUserStore{emailIndex: map[string]string{"teacher@markaz.example": "another"}}
	service := NewTeacherService(repo, validation.New(), zap.NewNop())

	_, err := service.Create(context.Background(), dto.CreateTeacherRequest{
		Email:    "teacher@markaz.example",
		Password: "secret123",
		FullName: "معلم أول",
		Phone:    "0512345678",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTeacherServiceUpdate(t *testing.T) {
	teacherID := uuid.NewString()
	repo := &mockTeacherUserStore{
		items: map[string]*models.User{
			teacherID: {ID: teacherID, Email: "teacher@markaz.example", FullName: "معلم أول", Role: models.RoleTeacher, Active: true},
		},
	}
	service := NewTeacherService(repo, validation.New(), zap.NewNop())

	inactive := false
	updated, err := service.Update(context.Background(), teacherID, dto.UpdateTeacherRequest{
		FullName: "معلم معدل",
		Phone:    "0598765432",
		Active:   &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "معلم معدل", updated.FullName)
	assert.False(t, updated.Active)
	// email never changes through this path
	assert.Equal(t, "teacher@markaz.example", updated.Email)
}

func TestTeacherServiceGetRejectsNonTeacher(t *testing.T) {
	adminID := uuid.NewString()
	repo := &mockTeacherUserStore{
		items: map[string]*models.User{
			adminID: {ID: adminID, Email: "admin@markaz.example", Role: models.RoleAdmin, Active: true},
		},
	}
	service := NewTeacherService(repo, validation.New(), zap.NewNop())

	_, err := service.Get(context.Background(), adminID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTeacherServiceDeactivate(t *testing.T) {
	teacherID := uuid.NewString()
	repo := &mockTeacherUserStore{
		items: map[string]*models.User{
			teacherID: {ID: teacherID, Email: "teacher@markaz.example", Role: models.RoleTeacher, Active: true},
		},
	}
	service := NewTeacherService(repo, validation.New(), zap.NewNop())

	require.NoError(t, service.Deactivate(context.Background(), teacherID))
	assert.Equal(t, []string{teacherID}, repo.deactivated)
	assert.False(t, repo.items[teacherID].Active)
}
