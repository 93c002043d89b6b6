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

	"github.com/noah-isme/markaz-adp-api/internal/dto"
	"github.com/noah-isme/markaz-adp-api/internal/models"
	"github.com/noah-isme/markaz-adp-api/internal/validation"
	appErrors "github.com/noah-isme/markaz-adp-api/pkg/errors"
)

type mockStudentStore struct {
	items       map[string]*models.StudentDetail
	nameIndex   map[string]string
	softDeleted []string
}

func (m *mockStudentStore) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	students := make([]models.StudentDetail, 0, len(m.items))
	for _, student := range m.items {
		students = append(students, *student)
	}
	return students, len(students), nil
}

func (m *mockStudentStore) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if student, ok := m.items[id]; ok {
		cp := *student
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentStore) ExistsByName(ctx context.Context, fullName string, excludeID string) (bool, error) {
	if owner, ok := m.nameIndex[fullName]; ok {
		if excludeID == "" || owner != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentStore) Create(ctx context.Context, student *models.Student) error {
	if m.items == nil {
		m.items = make(map[string]*models.StudentDetail)
	}
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now()
	student.CreatedAt = now
	student.UpdatedAt = now
	m.items[student.ID] = &models.StudentDetail{Student: *student}
	return nil
}

func (m *mockStudentStore) Update(ctx context.Context, student *models.Student) error {
	m.items[student.ID] = &models.StudentDetail{Student: *student}
	return nil
}

func (m *mockStudentStore) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	if student, ok := m.items[id]; ok {
		student.DeletedAt = &deletedAt
	}
	m.softDeleted = append(m.softDeleted, id)
	return nil
}

type mockCascadeLessons struct {
	cascaded    map[models.LessonType][]string
	memberships []models.GroupMembership
	groups      map[string]*models.GroupLesson

	deletedGroups []string
	removed       []string
	updated       []*models.GroupLesson
}

func (m *mockCascadeLessons) SoftDeleteByStudent(ctx context.Context, lessonType models.LessonType, studentID string, note *string) error {
	if m.cascaded == nil {
		m.cascaded = make(map[models.LessonType][]string)
	}
	m.cascaded[lessonType] = append(m.cascaded[lessonType], studentID)
	return nil
}

func (m *mockCascadeLessons) GroupMemberships(ctx context.Context, studentID string) ([]models.GroupMembership, error) {
	return m.memberships, nil
}

func (m *mockCascadeLessons) FindGroupByID(ctx context.Context, id string) (*models.GroupLesson, error) {
	if lesson, ok := m.groups[id]; ok {
		cp := *lesson
		cp.ParticipantIDs = append([]string(nil), lesson.ParticipantIDs...)
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCascadeLessons) RemoveParticipant(ctx context.Context, groupLessonID, studentID string) error {
	m.removed = append(m.removed, groupLessonID+"/"+studentID)
	return nil
}

func (m *mockCascadeLessons) SoftDelete(ctx context.Context, lessonType models.LessonType, id string, note *string) error {
	m.deletedGroups = append(m.deletedGroups, id)
	return nil
}

func (m *mockCascadeLessons) UpdateGroup(ctx context.Context, lesson *models.GroupLesson) error {
	cp := *lesson
	m.updated = append(m.updated, &cp)
	return nil
}

type stubLevels struct {
	levels map[string]*models.EducationLevel
}

func (s *stubLevels) FindByID(ctx context.Context, id string) (*models.EducationLevel, error) {
	if level, ok := s.levels[id]; ok {
		cp := *level
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func knownLevels(ids ...string) *stubLevels {
	levels := make(map[string]*models.EducationLevel, len(ids))
	for _, id := range ids {
		levels[id] = &models.EducationLevel{ID: id, NameAr: "مرحلة", NameEn: "Level"}
	}
	return &stubLevels{levels: levels}
}

func TestStudentServiceCreate(t *testing.T) {
	levelID := uuid.NewString()
	repo := &mockStudentStore{}
	service := NewStudentService(repo, &mockCascadeLessons{}, knownLevels(levelID), &stubCostCalc{}, nil, validation.New(), zap.NewNop())

	student, err := service.Create(context.Background(), dto.CreateStudentRequest{
		FullName:         "محمد أحمد",
		ParentPhone:      "0512345678",
		EducationLevelID: levelID,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.Len(t, repo.items, 1)
}

func TestStudentServiceCreateDuplicateName(t *testing.T) {
	levelID := uuid.NewString()
	repo := &mockStudentStore{nameIndex: map[string]string{"محمد أحمد": "existing"}}
	service := NewStudentService(repo, &mockCascadeLessons{}, knownLevels(levelID), &stubCostCalc{}, nil, validation.New(), zap.NewNop())

	_, err := service.Create(context.Background(), dto.CreateStudentRequest{
		FullName:         "محمد أحمد",
		ParentPhone:      "0512345678",
		EducationLevelID: levelID,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceCreateUnknownLevel(t *testing.T) {
	service := NewStudentService(&mockStudentStore{}, &mockCascadeLessons{}, knownLevels(), &stubCostCalc{}, nil, validation.New(), zap.NewNop())

	_, err := service.Create(context.Background(), dto.CreateStudentRequest{
		FullName:         "محمد أحمد",
		ParentPhone:      "0512345678",
		EducationLevelID: uuid.NewString(),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceCreateRejectsBadPhone(t *testing.T) {
	levelID := uuid.NewString()
	service := NewStudentService(&mockStudentStore{}, &mockCascadeLessons{}, knownLevels(levelID), &stubCostCalc{}, nil, validation.New(), zap.NewNop())

	_, err := service.Create(context.Background(), dto.CreateStudentRequest{
		FullName:         "محمد أحمد",
		ParentPhone:      "12345",
		EducationLevelID: levelID,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceDeleteCascades(t *testing.T) {
	studentID := uuid.NewString()
	other := uuid.NewString()
	third := uuid.NewString()
	levelID := uuid.NewString()

	lessons := &mockCascadeLessons{
		memberships: []models.GroupMembership{
			{GroupLessonID: "gLocked", ParticipantCount: 3},
			{GroupLessonID: "gSmall", ParticipantCount: 2},
			{GroupLessonID: "gBig", ParticipantCount: 3},
		},
		groups: map[string]*models.GroupLesson{
			"gLocked": {
				LessonCore:       models.LessonCore{ID: "gLocked", Hours: 1, Approved: true, PriceLocked: true, TotalCost: floatPtr(90)},
				EducationLevelID: levelID,
				ParticipantIDs:   []string{studentID, other, third},
			},
			"gSmall": {
				LessonCore:       models.LessonCore{ID: "gSmall", Hours: 1, TotalCost: floatPtr(80)},
				EducationLevelID: levelID,
				ParticipantIDs:   []string{studentID, other},
			},
			"gBig": {
				LessonCore:       models.LessonCore{ID: "gBig", Hours: 2, TotalCost: floatPtr(180)},
				EducationLevelID: levelID,
				ParticipantIDs:   []string{studentID, other, third},
			},
		},
	}
	repo := &mockStudentStore{
		items: map[string]*models.StudentDetail{
			studentID: {Student: models.Student{ID: studentID, FullName: "محمد أحمد", EducationLevelID: levelID}},
		},
	}
	dues := &spyDuesInvalidator{}
	pricing := &stubCostCalc{groupRates: map[int]float64{2: 80, 3: 90}}
	service := NewStudentService(repo, lessons, knownLevels(levelID), pricing, nil, validation.New(), zap.NewNop())
	service.AttachDues(dues)

	require.NoError(t, service.Delete(context.Background(), adminActor(), studentID))

	assert.Equal(t, []string{studentID}, lessons.cascaded[models.LessonTypeIndividual])
	assert.Equal(t, []string{studentID}, lessons.cascaded[models.LessonTypeRemedial])

	// the locked group keeps its membership; the two-student group is
	// soft-deleted; the larger group loses the student and is repriced
	assert.Equal(t, []string{"gSmall"}, lessons.deletedGroups)
	assert.Equal(t, []string{"gBig/" + studentID}, lessons.removed)
	require.Len(t, lessons.updated, 1)
	repriced := lessons.updated[0]
	assert.Equal(t, "gBig", repriced.ID)
	assert.Len(t, repriced.ParticipantIDs, 2)
	require.NotNil(t, repriced.TotalCost)
	assert.Equal(t, 160.0, *repriced.TotalCost)

	assert.Equal(t, []string{studentID}, repo.softDeleted)
	assert.Equal(t, 1, dues.calls)
}

func TestStudentServiceDeleteAlreadyDeleted(t *testing.T) {
	studentID := uuid.NewString()
	deletedAt := time.Now()
	repo := &mockStudentStore{
		items: map[string]*models.StudentDetail{
			studentID: {Student: models.Student{ID: studentID, FullName: "محمد أحمد", DeletedAt: &deletedAt}},
		},
	}
	service := NewStudentService(repo, &mockCascadeLessons{}, knownLevels(), &stubCostCalc{}, nil, validation.New(), zap.NewNop())

	err := service.Delete(context.Background(), adminActor(), studentID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBusinessRule.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.softDeleted)
}

func TestStudentServiceUpdateDeletedStudent(t *testing.T) {
	studentID := uuid.NewString()
	levelID := uuid.NewString()
	deletedAt := time.Now()
	repo := &mockStudentStore{
		items: map[string]*models.StudentDetail{
			studentID: {Student: models.Student{ID: studentID, FullName: "محمد أحمد", DeletedAt: &deletedAt}},
		},
	}
	service := NewStudentService(repo, &mockCascadeLessons{}, knownLevels(levelID), &stubCostCalc{}, nil, validation.New(), zap.NewNop())

	_, err := service.Update(context.Background(), studentID, dto.UpdateStudentRequest{
		FullName:         "محمد أحمد",
		ParentPhone:      "0512345678",
		EducationLevelID: levelID,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBusinessRule.Code, appErrors.FromError(err).Code)
}
