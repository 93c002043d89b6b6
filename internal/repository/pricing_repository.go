package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/markaz-adp-api/internal/models"
)

// uniqueViolation is the Postgres error code for unique-constraint failures.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique-constraint failure. The
// DB constraint is the authoritative duplicate check; service-level
// pre-checks only exist for friendlier messages.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

// PricingRepository persists hourly rates, group tiers and the remedial
// flat-rate settings row.
type PricingRepository struct {
	db *sqlx.DB
}

// NewPricingRepository constructs a PricingRepository.
func NewPricingRepository(db *sqlx.DB) *PricingRepository {
	return &PricingRepository{db: db}
}

// ListRules returns every pricing rule.
func (r *PricingRepository) ListRules(ctx context.Context) ([]models.PricingRule, error) {
	const query = `SELECT id, education_level_id, lesson_type, price_per_hour, created_at, updated_at FROM pricing_rules ORDER BY education_level_id, lesson_type`
	var rules []models.PricingRule
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("list pricing rules: %w", err)
	}
	return rules, nil
}

// FindRule returns the rule for a (level, lesson type) pair. sql.ErrNoRows
// when absent; the cost calculator treats that as "cost unknown".
func (r *PricingRepository) FindRule(ctx context.Context, levelID string, lessonType models.LessonType) (*models.PricingRule, error) {
	const query = `SELECT id, education_level_id, lesson_type, price_per_hour, created_at, updated_at FROM pricing_rules WHERE education_level_id = $1 AND lesson_type = $2 LIMIT 1`
	var rule models.PricingRule
	if err := r.db.GetContext(ctx, &rule, query, levelID, lessonType); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find pricing rule: %w", err)
	}
	return &rule, nil
}

// UpsertRule writes a rule with latest-write-wins semantics on the unique
// (education_level_id, lesson_type) pair.
func (r *PricingRepository) UpsertRule(ctx context.Context, rule *models.PricingRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	const query = `INSERT INTO pricing_rules (id, education_level_id, lesson_type, price_per_hour, created_at, updated_at)
        VALUES (:id, :education_level_id, :lesson_type, :price_per_hour, :created_at, :updated_at)
        ON CONFLICT (education_level_id, lesson_type) DO UPDATE SET price_per_hour = EXCLUDED.price_per_hour, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("upsert pricing rule: %w", err)
	}
	return nil
}

// ListTiers returns every group pricing tier.
func (r *PricingRepository) ListTiers(ctx context.Context) ([]models.GroupPricingTier, error) {
	const query = `SELECT id, education_level_id, student_count, total_price_per_hour, created_at FROM group_pricing_tiers ORDER BY education_level_id, student_count`
	var tiers []models.GroupPricingTier
	if err := r.db.SelectContext(ctx, &tiers, query); err != nil {
		return nil, fmt.Errorf("list group tiers: %w", err)
	}
	return tiers, nil
}

// FindTier returns the tier for a (level, participant count) pair.
func (r *PricingRepository) FindTier(ctx context.Context, levelID string, studentCount int) (*models.GroupPricingTier, error) {
	const query = `SELECT id, education_level_id, student_count, total_price_per_hour, created_at FROM group_pricing_tiers WHERE education_level_id = $1 AND student_count = $2 LIMIT 1`
	var tier models.GroupPricingTier
	if err := r.db.GetContext(ctx, &tier, query, levelID, studentCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find group tier: %w", err)
	}
	return &tier, nil
}

// CreateTier inserts a tier. The unique (level, count) index rejects
// duplicates; callers map that to a conflict error.
func (r *PricingRepository) CreateTier(ctx context.Context, tier *models.GroupPricingTier) error {
	if tier.ID == "" {
		tier.ID = uuid.NewString()
	}
	if tier.CreatedAt.IsZero() {
		tier.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO group_pricing_tiers (id, education_level_id, student_count, total_price_per_hour, created_at) VALUES (:id, :education_level_id, :student_count, :total_price_per_hour, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, tier); err != nil {
		return fmt.Errorf("create group tier: %w", err)
	}
	return nil
}

// DeleteTier removes a tier. Existing lessons keep their stored cost.
func (r *PricingRepository) DeleteTier(ctx context.Context, id string) error {
	const query = `DELETE FROM group_pricing_tiers WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete group tier: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RemedialSettings returns the single remedial flat-rate row.
func (r *PricingRepository) RemedialSettings(ctx context.Context) (*models.RemedialRateSettings, error) {
	const query = `SELECT id, initial_rate, subsequent_rate, lesson_threshold, updated_at FROM remedial_rate_settings LIMIT 1`
	var settings models.RemedialRateSettings
	if err := r.db.GetContext(ctx, &settings, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("load remedial settings: %w", err)
	}
	return &settings, nil
}

// SaveRemedialSettings upserts the settings row.
func (r *PricingRepository) SaveRemedialSettings(ctx context.Context, settings *models.RemedialRateSettings) error {
	if settings.ID == "" {
		settings.ID = uuid.NewString()
	}
	settings.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO remedial_rate_settings (id, initial_rate, subsequent_rate, lesson_threshold, updated_at)
        VALUES (:id, :initial_rate, :subsequent_rate, :lesson_threshold, :updated_at)
        ON CONFLICT (id) DO UPDATE SET initial_rate = EXCLUDED.initial_rate, subsequent_rate = EXCLUDED.subsequent_rate, lesson_threshold = EXCLUDED.lesson_threshold, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("save remedial settings: %w", err)
	}
	return nil
}
