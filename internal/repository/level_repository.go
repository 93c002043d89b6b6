package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/markaz-adp-api/internal/models"
)

// LevelRepository serves the education-level reference data.
type LevelRepository struct {
	db *sqlx.DB
}

// NewLevelRepository constructs a LevelRepository.
func NewLevelRepository(db *sqlx.DB) *LevelRepository {
	return &LevelRepository{db: db}
}

// List returns all education levels in display order.
func (r *LevelRepository) List(ctx context.Context) ([]models.EducationLevel, error) {
	const query = `SELECT id, name_ar, name_en, sort_order, created_at FROM education_levels ORDER BY sort_order ASC, name_en ASC`
	var levels []models.EducationLevel
	if err := r.db.SelectContext(ctx, &levels, query); err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	return levels, nil
}

// FindByID returns one education level.
func (r *LevelRepository) FindByID(ctx context.Context, id string) (*models.EducationLevel, error) {
	const query = `SELECT id, name_ar, name_en, sort_order, created_at FROM education_levels WHERE id = $1`
	var level models.EducationLevel
	if err := r.db.GetContext(ctx, &level, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find level: %w", err)
	}
	return &level, nil
}

// Create appends a new level. Levels are never updated or removed.
func (r *LevelRepository) Create(ctx context.Context, level *models.EducationLevel) error {
	if level.ID == "" {
		level.ID = uuid.NewString()
	}
	if level.CreatedAt.IsZero() {
		level.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO education_levels (id, name_ar, name_en, sort_order, created_at) VALUES (:id, :name_ar, :name_en, :sort_order, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, level); err != nil {
		return fmt.Errorf("create level: %w", err)
	}
	return nil
}
