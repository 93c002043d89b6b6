package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/markaz-adp-api/internal/dto"
	"github.com/noah-isme/markaz-adp-api/internal/models"
	appErrors "github.com/noah-isme/markaz-adp-api/pkg/errors"
)

type levelStore interface {
	List(ctx context.Context) ([]models.EducationLevel, error)
	FindByID(ctx context.Context, id string) (*models.EducationLevel, error)
	Create(ctx context.Context, level *models.EducationLevel) error
}

// LevelService serves the education-level reference list. Levels are
// append-only; pricing rules and students reference them by ID.
type LevelService struct {
	repo      levelStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLevelService constructs a LevelService.
func NewLevelService(repo levelStore, validate *validator.Validate, logger *zap.Logger) *LevelService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &LevelService{repo: repo, validator: validate, logger: logger}
}

// List returns every education level in display order.
func (s *LevelService) List(ctx context.Context) ([]models.EducationLevel, error) {
	levels, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list levels")
	}
	return levels, nil
}

// Get returns one education level.
func (s *LevelService) Get(ctx context.Context, id string) (*models.EducationLevel, error) {
	level, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "education level not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load level")
	}
	return level, nil
}

// Create appends a new education level.
func (s *LevelService) Create(ctx context.Context, req dto.CreateLevelRequest) (*models.EducationLevel, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid level payload")
	}

	level := &models.EducationLevel{
		NameAr:    req.NameAr,
		NameEn:    req.NameEn,
		SortOrder: req.SortOrder,
	}
	if err := s.repo.Create(ctx, level); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create level")
	}
	return level, nil
}
