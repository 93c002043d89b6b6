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

type lessonStore interface {
	ListIndividual(ctx context.Context, filter models.LessonFilter) ([]models.IndividualLesson, int, error)
	ListGroup(ctx context.Context, filter models.LessonFilter) ([]models.GroupLesson, int, error)
	ListRemedial(ctx context.Context, filter models.LessonFilter) ([]models.RemedialLesson, int, error)
	FindIndividualByID(ctx context.Context, id string) (*models.IndividualLesson, error)
	FindGroupByID(ctx context.Context, id string) (*models.GroupLesson, error)
	FindRemedialByID(ctx context.Context, id string) (*models.RemedialLesson, error)
	CreateIndividual(ctx context.Context, lesson *models.IndividualLesson) error
	CreateGroup(ctx context.Context, lesson *models.GroupLesson) error
	CreateRemedial(ctx context.Context, lesson *models.RemedialLesson) error
	UpdateIndividual(ctx context.Context, lesson *models.IndividualLesson) error
	UpdateGroup(ctx context.Context, lesson *models.GroupLesson) error
	UpdateRemedial(ctx context.Context, lesson *models.RemedialLesson) error
	UpdateRemedialCost(ctx context.Context, id string, totalCost *float64) error
	Approve(ctx context.Context, lessonType models.LessonType, id string) error
	ListPendingIDs(ctx context.Context, lessonType models.LessonType) ([]string, error)
	SoftDelete(ctx context.Context, lessonType models.LessonType, id string, note *string) error
	ListParticipants(ctx context.Context, groupLessonID string) ([]string, error)
	AddParticipant(ctx context.Context, groupLessonID, studentID string) error
	RemoveParticipant(ctx context.Context, groupLessonID, studentID string) error
	CountApprovedRemedial(ctx context.Context, studentID string) (int, error)
	ListPendingRemedialByStudent(ctx context.Context, studentID string) ([]models.RemedialLesson, error)
}

type costCalculator interface {
	IndividualCost(ctx context.Context, levelID string, hours float64) (*float64, error)
	GroupCost(ctx context.Context, levelID string, participantCount int, hours float64) (*float64, error)
	RemedialCost(ctx context.Context, priorApproved int, hours float64) (*float64, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type approvalMetrics interface {
	RecordLessonApproved(lessonType string)
}

// LessonService owns the lesson lifecycle: creation with server-side
// pricing, edits while unlocked, the one-way approval gate and soft
// deletion. Teachers only touch their own lessons; admin and sub-admin
// see everything.
type LessonService struct {
	repo      lessonStore
	pricing   costCalculator
	students  studentReader
	dues      duesInvalidator
	metrics   approvalMetrics
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLessonService constructs a LessonService.
func NewLessonService(repo lessonStore, pricing costCalculator, students studentReader, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *LessonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &LessonService{repo: repo, pricing: pricing, students: students, audit: audit, validator: validate, logger: logger}
}

// AttachDues wires the dues cache invalidator; approval and deletion both
// move money around.
func (s *LessonService) AttachDues(dues duesInvalidator) {
	s.dues = dues
}

// AttachMetrics wires the approval counters.
func (s *LessonService) AttachMetrics(metrics approvalMetrics) {
	s.metrics = metrics
}

const lessonDateLayout = "2006-01-02"

// scopeFilter pins teacher queries to their own lessons and hides deleted
// rows from non-admin roles.
func scopeFilter(actor *models.JWTClaims, filter models.LessonFilter) models.LessonFilter {
	if actor.Role == models.RoleTeacher {
		filter.TeacherID = actor.UserID
		filter.ShowDeleted = false
	}
	return filter
}

func (s *LessonService) requireStudent(ctx context.Context, studentID string) error {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Deleted() {
		return appErrors.Clone(appErrors.ErrBusinessRule, "student has been deleted")
	}
	return nil
}

func requireOwnership(actor *models.JWTClaims, teacherID string) error {
	if actor.Role == models.RoleTeacher && actor.UserID != teacherID {
		return appErrors.Clone(appErrors.ErrForbidden, "lesson belongs to another teacher")
	}
	return nil
}

func requireEditable(core models.LessonCore) error {
	if core.Deleted() {
		return appErrors.Clone(appErrors.ErrBusinessRule, "lesson has been deleted")
	}
	if core.PriceLocked {
		return appErrors.Clone(appErrors.ErrBusinessRule, "approved lesson cannot be modified")
	}
	return nil
}

// ListIndividual returns individual lessons visible to the actor.
func (s *LessonService) ListIndividual(ctx context.Context, actor *models.JWTClaims, filter models.LessonFilter) ([]models.IndividualLesson, int, error) {
	lessons, total, err := s.repo.ListIndividual(ctx, scopeFilter(actor, filter))
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, total, nil
}

// ListGroup returns group lessons visible to the actor.
func (s *LessonService) ListGroup(ctx context.Context, actor *models.JWTClaims, filter models.LessonFilter) ([]models.GroupLesson, int, error) {
	lessons, total, err := s.repo.ListGroup(ctx, scopeFilter(actor, filter))
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, total, nil
}

// ListRemedial returns remedial lessons visible to the actor.
func (s *LessonService) ListRemedial(ctx context.Context, actor *models.JWTClaims, filter models.LessonFilter) ([]models.RemedialLesson, int, error) {
	lessons, total, err := s.repo.ListRemedial(ctx, scopeFilter(actor, filter))
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, total, nil
}

// CreateIndividual records a new individual lesson. The cost comes from
// the hourly rate table; absent a rule the lesson is stored with an
// unknown cost and cannot be approved until pricing exists.
func (s *LessonService) CreateIndividual(ctx context.Context, actor *models.JWTClaims, req dto.CreateIndividualLessonRequest) (*models.IndividualLesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	if err := requireOwnership(actor, req.TeacherID); err != nil {
		return nil, err
	}
	if err := s.requireStudent(ctx, req.StudentID); err != nil {
		return nil, err
	}
	lessonDate, err := time.Parse(lessonDateLayout, req.LessonDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid lesson date")
	}

	cost, err := s.pricing.IndividualCost(ctx, req.EducationLevelID, req.Hours)
	if err != nil {
		return nil, err
	}

	lesson := &models.IndividualLesson{
		LessonCore: models.LessonCore{
			TeacherID:  req.TeacherID,
			LessonDate: lessonDate,
			StartTime:  req.StartTime,
			Hours:      req.Hours,
			TotalCost:  cost,
		},
		StudentID:        req.StudentID,
		EducationLevelID: req.EducationLevelID,
	}
	if err := s.repo.CreateIndividual(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	return lesson, nil
}

// CreateGroup records a new group lesson with its participants. The cost
// is the whole-group tier price for the participant count.
func (s *LessonService) CreateGroup(ctx context.Context, actor *models.JWTClaims, req dto.CreateGroupLessonRequest) (*models.GroupLesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	if err := requireOwnership(actor, req.TeacherID); err != nil {
		return nil, err
	}
	for _, studentID := range req.ParticipantIDs {
		if err := s.requireStudent(ctx, studentID); err != nil {
			return nil, err
		}
	}
	lessonDate, err := time.Parse(lessonDateLayout, req.LessonDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid lesson date")
	}

	cost, err := s.pricing.GroupCost(ctx, req.EducationLevelID, len(req.ParticipantIDs), req.Hours)
	if err != nil {
		return nil, err
	}

	lesson := &models.GroupLesson{
		LessonCore: models.LessonCore{
			TeacherID:  req.TeacherID,
			LessonDate: lessonDate,
			StartTime:  req.StartTime,
			Hours:      req.Hours,
			TotalCost:  cost,
		},
		EducationLevelID: req.EducationLevelID,
		ParticipantIDs:   req.ParticipantIDs,
	}
	if err := s.repo.CreateGroup(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	return lesson, nil
}

// CreateRemedial records a new remedial lesson priced by the student's
// prior approved remedial count against the flat-rate pair.
func (s *LessonService) CreateRemedial(ctx context.Context, actor *models.JWTClaims, req dto.CreateRemedialLessonRequest) (*models.RemedialLesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	if err := requireOwnership(actor, req.TeacherID); err != nil {
		return nil, err
	}
	if err := s.requireStudent(ctx, req.StudentID); err != nil {
		return nil, err
	}
	lessonDate, err := time.Parse(lessonDateLayout, req.LessonDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid lesson date")
	}

	cost, err := s.remedialCostFor(ctx, req.StudentID, req.Hours)
	if err != nil {
		return nil, err
	}

	lesson := &models.RemedialLesson{
		LessonCore: models.LessonCore{
			TeacherID:  req.TeacherID,
			LessonDate: lessonDate,
			StartTime:  req.StartTime,
			Hours:      req.Hours,
			TotalCost:  cost,
		},
		StudentID: req.StudentID,
	}
	if err := s.repo.CreateRemedial(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	return lesson, nil
}

// UpdateIndividual rewrites a pending unlocked lesson, recomputing its
// cost from current pricing.
func (s *LessonService) UpdateIndividual(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateIndividualLessonRequest) (*models.IndividualLesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	lesson, err := s.repo.FindIndividualByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if err := requireOwnership(actor, lesson.TeacherID); err != nil {
		return nil, err
	}
	if err := requireEditable(lesson.LessonCore); err != nil {
		return nil, err
	}
	if err := requireOwnership(actor, req.TeacherID); err != nil {
		return nil, err
	}
	if err := s.requireStudent(ctx, req.StudentID); err != nil {
		return nil, err
	}
	lessonDate, err := time.Parse(lessonDateLayout, req.LessonDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid lesson date")
	}

	cost, err := s.pricing.IndividualCost(ctx, req.EducationLevelID, req.Hours)
	if err != nil {
		return nil, err
	}

	lesson.TeacherID = req.TeacherID
	lesson.StudentID = req.StudentID
	lesson.EducationLevelID = req.EducationLevelID
	lesson.LessonDate = lessonDate
	lesson.StartTime = req.StartTime
	lesson.Hours = req.Hours
	lesson.TotalCost = cost

	if err := s.repo.UpdateIndividual(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}
	return lesson, nil
}

// UpdateGroup rewrites a pending unlocked group lesson. Participant
// changes go through the participant endpoints, not here.
func (s *LessonService) UpdateGroup(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateGroupLessonRequest) (*models.GroupLesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	lesson, err := s.repo.FindGroupByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if err := requireOwnership(actor, lesson.TeacherID); err != nil {
		return nil, err
	}
	if err := requireEditable(lesson.LessonCore); err != nil {
		return nil, err
	}
	if err := requireOwnership(actor, req.TeacherID); err != nil {
		return nil, err
	}
	lessonDate, err := time.Parse(lessonDateLayout, req.LessonDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid lesson date")
	}

	// participants stay as stored; price follows the stored count
	cost, err := s.pricing.GroupCost(ctx, req.EducationLevelID, len(lesson.ParticipantIDs), req.Hours)
	if err != nil {
		return nil, err
	}

	lesson.TeacherID = req.TeacherID
	lesson.EducationLevelID = req.EducationLevelID
	lesson.LessonDate = lessonDate
	lesson.StartTime = req.StartTime
	lesson.Hours = req.Hours
	lesson.TotalCost = cost

	if err := s.repo.UpdateGroup(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}
	return lesson, nil
}

// UpdateRemedial rewrites a pending unlocked remedial lesson.
func (s *LessonService) UpdateRemedial(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateRemedialLessonRequest) (*models.RemedialLesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	lesson, err := s.repo.FindRemedialByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if err := requireOwnership(actor, lesson.TeacherID); err != nil {
		return nil, err
	}
	if err := requireEditable(lesson.LessonCore); err != nil {
		return nil, err
	}
	if err := requireOwnership(actor, req.TeacherID); err != nil {
		return nil, err
	}
	if err := s.requireStudent(ctx, req.StudentID); err != nil {
		return nil, err
	}
	lessonDate, err := time.Parse(lessonDateLayout, req.LessonDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid lesson date")
	}

	cost, err := s.remedialCostFor(ctx, req.StudentID, req.Hours)
	if err != nil {
		return nil, err
	}

	lesson.TeacherID = req.TeacherID
	lesson.StudentID = req.StudentID
	lesson.LessonDate = lessonDate
	lesson.StartTime = req.StartTime
	lesson.Hours = req.Hours
	lesson.TotalCost = cost

	if err := s.repo.UpdateRemedial(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}
	return lesson, nil
}

// AddParticipant joins a student to a pending group lesson and reprices
// the group for the new count.
func (s *LessonService) AddParticipant(ctx context.Context, actor *models.JWTClaims, lessonID, studentID string) (*models.GroupLesson, error) {
	lesson, err := s.repo.FindGroupByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if err := requireOwnership(actor, lesson.TeacherID); err != nil {
		return nil, err
	}
	if err := requireEditable(lesson.LessonCore); err != nil {
		return nil, err
	}
	if err := s.requireStudent(ctx, studentID); err != nil {
		return nil, err
	}
	for _, existing := range lesson.ParticipantIDs {
		if existing == studentID {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student is already a participant")
		}
	}

	if err := s.repo.AddParticipant(ctx, lessonID, studentID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add participant")
	}
	lesson.ParticipantIDs = append(lesson.ParticipantIDs, studentID)

	return s.repriceGroup(ctx, lesson)
}

// RemoveParticipant drops a student from a pending group lesson. The
// group must keep at least two participants.
func (s *LessonService) RemoveParticipant(ctx context.Context, actor *models.JWTClaims, lessonID, studentID string) (*models.GroupLesson, error) {
	lesson, err := s.repo.FindGroupByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if err := requireOwnership(actor, lesson.TeacherID); err != nil {
		return nil, err
	}
	if err := requireEditable(lesson.LessonCore); err != nil {
		return nil, err
	}
	if len(lesson.ParticipantIDs) <= 2 {
		return nil, appErrors.Clone(appErrors.ErrBusinessRule, "a group lesson needs at least two participants")
	}

	if err := s.repo.RemoveParticipant(ctx, lessonID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student is not a participant")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove participant")
	}

	remaining := lesson.ParticipantIDs[:0]
	for _, existing := range lesson.ParticipantIDs {
		if existing != studentID {
			remaining = append(remaining, existing)
		}
	}
	lesson.ParticipantIDs = remaining

	return s.repriceGroup(ctx, lesson)
}

func (s *LessonService) repriceGroup(ctx context.Context, lesson *models.GroupLesson) (*models.GroupLesson, error) {
	cost, err := s.pricing.GroupCost(ctx, lesson.EducationLevelID, len(lesson.ParticipantIDs), lesson.Hours)
	if err != nil {
		return nil, err
	}
	lesson.TotalCost = cost
	if err := s.repo.UpdateGroup(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reprice lesson")
	}
	return lesson, nil
}

// Approve flips a pending lesson to approved and locks its price. The
// transition is one-way and idempotent; approving an approved lesson is a
// no-op success. A lesson with no computed cost cannot be approved.
// Approving a remedial lesson recomputes the student's remaining pending
// remedial lessons, since the approval may push them past the threshold.
func (s *LessonService) Approve(ctx context.Context, actor *models.JWTClaims, lessonType models.LessonType, id string) error {
	if !lessonType.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown lesson type")
	}

	core, studentID, err := s.loadCore(ctx, lessonType, id)
	if err != nil {
		return err
	}
	if core.Deleted() {
		return appErrors.Clone(appErrors.ErrBusinessRule, "deleted lesson cannot be approved")
	}
	if core.Approved {
		return nil
	}
	if core.TotalCost == nil {
		return appErrors.Clone(appErrors.ErrBusinessRule, "lesson has no computed cost; configure pricing first")
	}

	if err := s.repo.Approve(ctx, lessonType, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve lesson")
	}

	if lessonType == models.LessonTypeRemedial {
		if err := s.RecomputePendingRemedial(ctx, studentID); err != nil {
			s.logger.Warn("failed to recompute pending remedial lessons", zap.String("student_id", studentID), zap.Error(err))
		}
	}

	if s.dues != nil {
		s.dues.Invalidate(ctx)
	}
	if s.metrics != nil {
		s.metrics.RecordLessonApproved(string(lessonType))
	}

	s.recordLessonAudit(ctx, actor, models.AuditActionLessonApprove, lessonType, id, map[string]interface{}{"approved": true})
	return nil
}

// ApproveAll approves every pending lesson of a kind. Lessons fail
// independently; one unpriceable lesson never blocks the rest.
func (s *LessonService) ApproveAll(ctx context.Context, actor *models.JWTClaims, lessonType models.LessonType) (*models.ApproveAllResult, error) {
	if !lessonType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown lesson type")
	}

	ids, err := s.repo.ListPendingIDs(ctx, lessonType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending lessons")
	}

	result := &models.ApproveAllResult{Total: len(ids)}
	for _, id := range ids {
		if err := s.Approve(ctx, actor, lessonType, id); err != nil {
			s.logger.Warn("bulk approval skipped lesson", zap.String("lesson_id", id), zap.Error(err))
			result.Failed++
			continue
		}
		result.Approved++
	}
	return result, nil
}

// RecomputePendingRemedial reprices a student's pending unlocked remedial
// lessons against their current approved count.
func (s *LessonService) RecomputePendingRemedial(ctx context.Context, studentID string) error {
	pending, err := s.repo.ListPendingRemedialByStudent(ctx, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending remedial lessons")
	}
	for i := range pending {
		cost, err := s.remedialCostFor(ctx, studentID, pending[i].Hours)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateRemedialCost(ctx, pending[i].ID, cost); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update remedial cost")
		}
	}
	return nil
}

// Delete soft-deletes a lesson. Approved lessons are undeletable for
// every role; the financial record they anchor must survive.
func (s *LessonService) Delete(ctx context.Context, actor *models.JWTClaims, lessonType models.LessonType, id string, req dto.DeleteLessonRequest) error {
	if !lessonType.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown lesson type")
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid delete payload")
	}

	core, _, err := s.loadCore(ctx, lessonType, id)
	if err != nil {
		return err
	}
	if core.Deleted() {
		return appErrors.Clone(appErrors.ErrBusinessRule, "lesson is already deleted")
	}
	if core.Approved {
		return appErrors.Clone(appErrors.ErrBusinessRule, "approved lesson cannot be deleted")
	}

	if err := s.repo.SoftDelete(ctx, lessonType, id, req.Note); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lesson")
	}

	if s.dues != nil {
		s.dues.Invalidate(ctx)
	}

	s.recordLessonAudit(ctx, actor, models.AuditActionLessonDelete, lessonType, id, map[string]interface{}{"note": req.Note})
	return nil
}

// GetIndividual returns one individual lesson visible to the actor.
func (s *LessonService) GetIndividual(ctx context.Context, actor *models.JWTClaims, id string) (*models.IndividualLesson, error) {
	lesson, err := s.repo.FindIndividualByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if err := requireOwnership(actor, lesson.TeacherID); err != nil {
		return nil, err
	}
	return lesson, nil
}

// GetGroup returns one group lesson with participants.
func (s *LessonService) GetGroup(ctx context.Context, actor *models.JWTClaims, id string) (*models.GroupLesson, error) {
	lesson, err := s.repo.FindGroupByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if err := requireOwnership(actor, lesson.TeacherID); err != nil {
		return nil, err
	}
	return lesson, nil
}

// GetRemedial returns one remedial lesson visible to the actor.
func (s *LessonService) GetRemedial(ctx context.Context, actor *models.JWTClaims, id string) (*models.RemedialLesson, error) {
	lesson, err := s.repo.FindRemedialByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if err := requireOwnership(actor, lesson.TeacherID); err != nil {
		return nil, err
	}
	return lesson, nil
}

func (s *LessonService) remedialCostFor(ctx context.Context, studentID string, hours float64) (*float64, error) {
	count, err := s.repo.CountApprovedRemedial(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count remedial lessons")
	}
	return s.pricing.RemedialCost(ctx, count, hours)
}

func (s *LessonService) loadCore(ctx context.Context, lessonType models.LessonType, id string) (models.LessonCore, string, error) {
	var core models.LessonCore
	var studentID string
	var err error

	switch lessonType {
	case models.LessonTypeIndividual:
		var lesson *models.IndividualLesson
		if lesson, err = s.repo.FindIndividualByID(ctx, id); err == nil {
			core, studentID = lesson.LessonCore, lesson.StudentID
		}
	case models.LessonTypeGroup:
		var lesson *models.GroupLesson
		if lesson, err = s.repo.FindGroupByID(ctx, id); err == nil {
			core = lesson.LessonCore
		}
	default:
		var lesson *models.RemedialLesson
		if lesson, err = s.repo.FindRemedialByID(ctx, id); err == nil {
			core, studentID = lesson.LessonCore, lesson.StudentID
		}
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core, "", appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return core, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	return core, studentID, nil
}

func (s *LessonService) recordLessonAudit(ctx context.Context, actor *models.JWTClaims, action string, lessonType models.LessonType, id string, payload interface{}) {
	if s.audit == nil {
		return
	}
	values, _ := json.Marshal(payload)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   string(lessonType) + "_lesson",
		ResourceID: &id,
		NewValues:  values,
	}); err != nil {
		s.logger.Warn("failed to record lesson audit log", zap.Error(err))
	}
}
