package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/markaz-adp-api/internal/dto"
	"github.com/noah-isme/markaz-adp-api/internal/models"
	appErrors "github.com/noah-isme/markaz-adp-api/pkg/errors"
	"github.com/noah-isme/markaz-adp-api/pkg/response"
)

type lessonService interface {
	ListIndividual(ctx context.Context, actor *models.JWTClaims, filter models.LessonFilter) ([]models.IndividualLesson, int, error)
	ListGroup(ctx context.Context, actor *models.JWTClaims, filter models.LessonFilter) ([]models.GroupLesson, int, error)
	ListRemedial(ctx context.Context, actor *models.JWTClaims, filter models.LessonFilter) ([]models.RemedialLesson, int, error)
	GetIndividual(ctx context.Context, actor *models.JWTClaims, id string) (*models.IndividualLesson, error)
	GetGroup(ctx context.Context, actor *models.JWTClaims, id string) (*models.GroupLesson, error)
	GetRemedial(ctx context.Context, actor *models.JWTClaims, id string) (*models.RemedialLesson, error)
	CreateIndividual(ctx context.Context, actor *models.JWTClaims, req dto.CreateIndividualLessonRequest) (*models.IndividualLesson, error)
	CreateGroup(ctx context.Context, actor *models.JWTClaims, req dto.CreateGroupLessonRequest) (*models.GroupLesson, error)
	CreateRemedial(ctx context.Context, actor *models.JWTClaims, req dto.CreateRemedialLessonRequest) (*models.RemedialLesson, error)
	UpdateIndividual(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateIndividualLessonRequest) (*models.IndividualLesson, error)
	UpdateGroup(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateGroupLessonRequest) (*models.GroupLesson, error)
	UpdateRemedial(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateRemedialLessonRequest) (*models.RemedialLesson, error)
	AddParticipant(ctx context.Context, actor *models.JWTClaims, lessonID, studentID string) (*models.GroupLesson, error)
	RemoveParticipant(ctx context.Context, actor *models.JWTClaims, lessonID, studentID string) (*models.GroupLesson, error)
	Approve(ctx context.Context, actor *models.JWTClaims, lessonType models.LessonType, id string) error
	ApproveAll(ctx context.Context, actor *models.JWTClaims, lessonType models.LessonType) (*models.ApproveAllResult, error)
	Delete(ctx context.Context, actor *models.JWTClaims, lessonType models.LessonType, id string, req dto.DeleteLessonRequest) error
}

type lessonExporter interface {
	RenderLessons(ctx context.Context) ([]byte, string, error)
}

// LessonHandler exposes the three lesson collections plus the approval and
// soft-delete actions.
type LessonHandler struct {
	service  lessonService
	exporter lessonExporter
}

// NewLessonHandler constructs the handler.
func NewLessonHandler(service lessonService, exporter lessonExporter) *LessonHandler {
	return &LessonHandler{service: service, exporter: exporter}
}

func lessonFilterFromQuery(c *gin.Context) models.LessonFilter {
	return models.LessonFilter{
		DateFrom:         queryDate(c, "date_from"),
		DateTo:           queryDate(c, "date_to"),
		TeacherID:        c.Query("teacher_id"),
		StudentID:        c.Query("student_id"),
		EducationLevelID: c.Query("education_level_id"),
		Approved:         queryBoolPtr(c, "approved"),
		ShowDeleted:      queryBool(c, "show_deleted"),
		Page:             queryInt(c, "page", 1),
		PageSize:         queryInt(c, "page_size", 20),
	}
}

// ListIndividual godoc
// @Summary List individual lessons
// @Tags Lessons
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /lessons/individual [get]
func (h *LessonHandler) ListIndividual(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := lessonFilterFromQuery(c)
	lessons, total, err := h.service.ListIndividual(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, paginationMeta(filter.Page, filter.PageSize, total))
}

// ListGroup godoc
// @Summary List group lessons
// @Tags Lessons
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /lessons/group [get]
func (h *LessonHandler) ListGroup(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := lessonFilterFromQuery(c)
	lessons, total, err := h.service.ListGroup(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, paginationMeta(filter.Page, filter.PageSize, total))
}

// ListRemedial godoc
// @Summary List remedial lessons
// @Tags Lessons
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /lessons/remedial [get]
func (h *LessonHandler) ListRemedial(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := lessonFilterFromQuery(c)
	lessons, total, err := h.service.ListRemedial(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, paginationMeta(filter.Page, filter.PageSize, total))
}

// GetIndividual godoc
// @Summary Get one individual lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/individual/{id} [get]
func (h *LessonHandler) GetIndividual(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	lesson, err := h.service.GetIndividual(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// GetGroup godoc
// @Summary Get one group lesson with participants
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/group/{id} [get]
func (h *LessonHandler) GetGroup(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	lesson, err := h.service.GetGroup(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// GetRemedial godoc
// @Summary Get one remedial lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/remedial/{id} [get]
func (h *LessonHandler) GetRemedial(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	lesson, err := h.service.GetRemedial(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// CreateIndividual godoc
// @Summary Record an individual lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body dto.CreateIndividualLessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Router /lessons/individual [post]
func (h *LessonHandler) CreateIndividual(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateIndividualLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid lesson payload"))
		return
	}
	lesson, err := h.service.CreateIndividual(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// CreateGroup godoc
// @Summary Record a group lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body dto.CreateGroupLessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Router /lessons/group [post]
func (h *LessonHandler) CreateGroup(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateGroupLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid lesson payload"))
		return
	}
	lesson, err := h.service.CreateGroup(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// CreateRemedial godoc
// @Summary Record a remedial lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body dto.CreateRemedialLessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Router /lessons/remedial [post]
func (h *LessonHandler) CreateRemedial(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateRemedialLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid lesson payload"))
		return
	}
	lesson, err := h.service.CreateRemedial(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// UpdateIndividual godoc
// @Summary Update a pending individual lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/individual/{id} [put]
func (h *LessonHandler) UpdateIndividual(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateIndividualLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid lesson payload"))
		return
	}
	lesson, err := h.service.UpdateIndividual(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// UpdateGroup godoc
// @Summary Update a pending group lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/group/{id} [put]
func (h *LessonHandler) UpdateGroup(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateGroupLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid lesson payload"))
		return
	}
	lesson, err := h.service.UpdateGroup(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// UpdateRemedial godoc
// @Summary Update a pending remedial lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/remedial/{id} [put]
func (h *LessonHandler) UpdateRemedial(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateRemedialLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid lesson payload"))
		return
	}
	lesson, err := h.service.UpdateRemedial(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// AddParticipant godoc
// @Summary Add a student to a pending group lesson
// @Tags Lessons
// @Param id path string true "Lesson ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/group/{id}/participants/{studentId} [post]
func (h *LessonHandler) AddParticipant(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	lesson, err := h.service.AddParticipant(c.Request.Context(), claims, c.Param("id"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// RemoveParticipant godoc
// @Summary Remove a student from a pending group lesson
// @Tags Lessons
// @Param id path string true "Lesson ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/group/{id}/participants/{studentId} [delete]
func (h *LessonHandler) RemoveParticipant(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	lesson, err := h.service.RemoveParticipant(c.Request.Context(), claims, c.Param("id"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Approve returns a handler approving one lesson of the given kind.
func (h *LessonHandler) Approve(lessonType models.LessonType) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if err := h.service.Approve(c.Request.Context(), claims, lessonType, c.Param("id")); err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, gin.H{"approved": true}, nil)
	}
}

// ApproveAll returns a handler approving every pending lesson of a kind.
func (h *LessonHandler) ApproveAll(lessonType models.LessonType) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		result, err := h.service.ApproveAll(c.Request.Context(), claims, lessonType)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, result, nil)
	}
}

// Delete returns a handler soft-deleting one lesson of the given kind.
func (h *LessonHandler) Delete(lessonType models.LessonType) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		var req dto.DeleteLessonRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid delete payload"))
				return
			}
		}
		if err := h.service.Delete(c.Request.Context(), claims, lessonType, c.Param("id"), req); err != nil {
			response.Error(c, err)
			return
		}
		response.NoContent(c)
	}
}

// Export godoc
// @Summary Download the lesson ledger as CSV
// @Tags Lessons
// @Produce text/csv
// @Success 200 {file} file
// @Router /lessons/export [get]
func (h *LessonHandler) Export(c *gin.Context) {
	payload, contentType, err := h.exporter.RenderLessons(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	fileName := fmt.Sprintf("lessons-%s.csv", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, contentType, payload)
}
