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
	"github.com/noah-isme/markaz-adp-api/internal/repository"
	appErrors "github.com/noah-isme/markaz-adp-api/pkg/errors"
)

type studentStore interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ExistsByName(ctx context.Context, fullName string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
}

type cascadeLessonStore interface {
	SoftDeleteByStudent(ctx context.Context, lessonType models.LessonType, studentID string, note *string) error
	GroupMemberships(ctx context.Context, studentID string) ([]models.GroupMembership, error)
	FindGroupByID(ctx context.Context, id string) (*models.GroupLesson, error)
	RemoveParticipant(ctx context.Context, groupLessonID, studentID string) error
	SoftDelete(ctx context.Context, lessonType models.LessonType, id string, note *string) error
	UpdateGroup(ctx context.Context, lesson *models.GroupLesson) error
}

type levelReader interface {
	FindByID(ctx context.Context, id string) (*models.EducationLevel, error)
}

type groupRepricer interface {
	GroupCost(ctx context.Context, levelID string, participantCount int, hours float64) (*float64, error)
}

// StudentService manages the student roster. Deleting a student cascades
// through their lessons so no orphaned financial rows survive in active
// aggregations.
type StudentService struct {
	repo      studentStore
	lessons   cascadeLessonStore
	levels    levelReader
	pricing   groupRepricer
	dues      duesInvalidator
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(repo studentStore, lessons cascadeLessonStore, levels levelReader, pricing groupRepricer, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{repo: repo, lessons: lessons, levels: levels, pricing: pricing, audit: audit, validator: validate, logger: logger}
}

// AttachDues wires the dues cache invalidator; the delete cascade touches
// billed lessons.
func (s *StudentService) AttachDues(dues duesInvalidator) {
	s.dues = dues
}

// List returns students matching the filter. ShowDeleted is honoured only
// for admin and sub-admin; handlers clear it for teachers.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, total, nil
}

// Get returns one student, deleted rows included so admins can inspect
// historical records.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a student. Full name must be unique among non-deleted
// students; the pre-check gives a friendly message and the DB partial
// unique index stays authoritative under races.
func (s *StudentService) Create(ctx context.Context, req dto.CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if err := s.requireLevel(ctx, req.EducationLevelID); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByName(ctx, req.FullName, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a student with this name already exists")
	}

	student := &models.Student{
		FullName:         req.FullName,
		ParentPhone:      req.ParentPhone,
		EducationLevelID: req.EducationLevelID,
		ClassLabel:       req.ClassLabel,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a student with this name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Update modifies a non-deleted student.
func (s *StudentService) Update(ctx context.Context, id string, req dto.UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if existing.Deleted() {
		return nil, appErrors.Clone(appErrors.ErrBusinessRule, "deleted student cannot be modified")
	}
	if err := s.requireLevel(ctx, req.EducationLevelID); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByName(ctx, req.FullName, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a student with this name already exists")
	}

	student := existing.Student
	student.FullName = req.FullName
	student.ParentPhone = req.ParentPhone
	student.EducationLevelID = req.EducationLevelID
	student.ClassLabel = req.ClassLabel

	if err := s.repo.Update(ctx, &student); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a student with this name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return &student, nil
}

// Delete soft-deletes a student and cascades through their lessons:
// individual and remedial lessons are soft-deleted whatever their state,
// pending group lessons lose the participant (and are repriced, or
// soft-deleted when they would fall below two participants). Approved
// group lessons keep their locked cost and membership as history.
func (s *StudentService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Deleted() {
		return appErrors.Clone(appErrors.ErrBusinessRule, "student is already deleted")
	}

	note := "student deleted: " + student.FullName

	if err := s.lessons.SoftDeleteByStudent(ctx, models.LessonTypeIndividual, id, &note); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cascade individual lessons")
	}
	if err := s.lessons.SoftDeleteByStudent(ctx, models.LessonTypeRemedial, id, &note); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cascade remedial lessons")
	}

	memberships, err := s.lessons.GroupMemberships(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list group memberships")
	}
	for _, membership := range memberships {
		if err := s.cascadeGroupLesson(ctx, membership, id, &note); err != nil {
			return err
		}
	}

	if err := s.repo.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}

	if s.dues != nil {
		s.dues.Invalidate(ctx)
	}

	s.recordStudentAudit(ctx, actor, id, student.FullName)
	return nil
}

func (s *StudentService) cascadeGroupLesson(ctx context.Context, membership models.GroupMembership, studentID string, note *string) error {
	lesson, err := s.lessons.FindGroupByID(ctx, membership.GroupLessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group lesson")
	}
	// approved lessons keep their locked price and membership as history
	if lesson.PriceLocked {
		return nil
	}

	if membership.ParticipantCount <= 2 {
		if err := s.lessons.SoftDelete(ctx, models.LessonTypeGroup, lesson.ID, note); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cascade group lesson")
		}
		return nil
	}

	if err := s.lessons.RemoveParticipant(ctx, lesson.ID, studentID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove participant")
	}

	remaining := lesson.ParticipantIDs[:0]
	for _, existing := range lesson.ParticipantIDs {
		if existing != studentID {
			remaining = append(remaining, existing)
		}
	}
	lesson.ParticipantIDs = remaining

	cost, err := s.pricing.GroupCost(ctx, lesson.EducationLevelID, len(lesson.ParticipantIDs), lesson.Hours)
	if err != nil {
		return err
	}
	lesson.TotalCost = cost
	if err := s.lessons.UpdateGroup(ctx, lesson); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reprice group lesson")
	}
	return nil
}

func (s *StudentService) requireLevel(ctx context.Context, levelID string) error {
	if _, err := s.levels.FindByID(ctx, levelID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "unknown education level")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load education level")
	}
	return nil
}

func (s *StudentService) recordStudentAudit(ctx context.Context, actor *models.JWTClaims, id, fullName string) {
	if s.audit == nil {
		return
	}
	values, _ := json.Marshal(map[string]string{"full_name": fullName})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionStudentDelete,
		Resource:   "student",
		ResourceID: &id,
		OldValues:  values,
	}); err != nil {
		s.logger.Warn("failed to record student audit log", zap.Error(err))
	}
}
