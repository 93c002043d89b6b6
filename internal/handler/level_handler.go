package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/markaz-adp-api/internal/dto"
	"github.com/noah-isme/markaz-adp-api/internal/models"
	appErrors "github.com/noah-isme/markaz-adp-api/pkg/errors"
	"github.com/noah-isme/markaz-adp-api/pkg/response"
)

type levelService interface {
	List(ctx context.Context) ([]models.EducationLevel, error)
	Get(ctx context.Context, id string) (*models.EducationLevel, error)
	Create(ctx context.Context, req dto.CreateLevelRequest) (*models.EducationLevel, error)
}

// LevelHandler exposes the education-level reference endpoints.
type LevelHandler struct {
	service levelService
}

// NewLevelHandler constructs the handler.
func NewLevelHandler(service levelService) *LevelHandler {
	return &LevelHandler{service: service}
}

// List godoc
// @Summary List education levels
// @Tags Levels
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /education-levels [get]
func (h *LevelHandler) List(c *gin.Context) {
	levels, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, levels, nil)
}

// Get godoc
// @Summary Get one education level
// @Tags Levels
// @Produce json
// @Param id path string true "Level ID"
// @Success 200 {object} response.Envelope
// @Router /education-levels/{id} [get]
func (h *LevelHandler) Get(c *gin.Context) {
	level, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, level, nil)
}

// Create godoc
// @Summary Add an education level
// @Tags Levels
// @Accept json
// @Produce json
// @Param payload body dto.CreateLevelRequest true "Level payload"
// @Success 201 {object} response.Envelope
// @Router /education-levels [post]
func (h *LevelHandler) Create(c *gin.Context) {
	var req dto.CreateLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid level payload"))
		return
	}

	level, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, level)
}
