package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/markaz-adp-api/internal/dto"
	"github.com/noah-isme/markaz-adp-api/internal/models"
	"github.com/noah-isme/markaz-adp-api/internal/repository"
	appErrors "github.com/noah-isme/markaz-adp-api/pkg/errors"
)

type pricingStore interface {
	ListRules(ctx context.Context) ([]models.PricingRule, error)
	FindRule(ctx context.Context, levelID string, lessonType models.LessonType) (*models.PricingRule, error)
	UpsertRule(ctx context.Context, rule *models.PricingRule) error
	ListTiers(ctx context.Context) ([]models.GroupPricingTier, error)
	FindTier(ctx context.Context, levelID string, studentCount int) (*models.GroupPricingTier, error)
	CreateTier(ctx context.Context, tier *models.GroupPricingTier) error
	DeleteTier(ctx context.Context, id string) error
	RemedialSettings(ctx context.Context) (*models.RemedialRateSettings, error)
	SaveRemedialSettings(ctx context.Context, settings *models.RemedialRateSettings) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// PricingService manages the three pricing tables and computes lesson
// costs from them. A missing rule or tier never fails lesson creation;
// the cost simply stays unknown (nil) until pricing is configured.
type PricingService struct {
	repo      pricingStore
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPricingService constructs a PricingService.
func NewPricingService(repo pricingStore, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *PricingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PricingService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// round2 rounds to cents, half away from zero. All monetary amounts pass
// through this exactly once, at computation time.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// IndividualCost computes hours x the (level, individual) hourly rate.
// Returns nil when no rule exists.
func (s *PricingService) IndividualCost(ctx context.Context, levelID string, hours float64) (*float64, error) {
	rule, err := s.repo.FindRule(ctx, levelID, models.LessonTypeIndividual)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pricing rule")
	}
	cost := round2(rule.PricePerHour * hours)
	return &cost, nil
}

// GroupCost computes hours x the whole-group hourly price. The exact
// (level, participant count) tier wins; without one the flat (level, group)
// hourly rate applies. There is no interpolation between tiers. Returns
// nil when neither a tier nor a rule exists.
func (s *PricingService) GroupCost(ctx context.Context, levelID string, participantCount int, hours float64) (*float64, error) {
	tier, err := s.repo.FindTier(ctx, levelID, participantCount)
	if err == nil {
		cost := round2(tier.TotalPricePerHour * hours)
		return &cost, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group tier")
	}

	rule, err := s.repo.FindRule(ctx, levelID, models.LessonTypeGroup)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pricing rule")
	}
	cost := round2(rule.PricePerHour * hours)
	return &cost, nil
}

// RemedialCost computes hours x the flat remedial rate. The rate is
// InitialRate while the student's prior approved remedial count is below
// the threshold, SubsequentRate from then on. Returns nil when the
// settings row has never been configured.
func (s *PricingService) RemedialCost(ctx context.Context, priorApproved int, hours float64) (*float64, error) {
	settings, err := s.repo.RemedialSettings(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load remedial settings")
	}
	rate := settings.InitialRate
	if priorApproved >= settings.LessonThreshold {
		rate = settings.SubsequentRate
	}
	cost := round2(rate * hours)
	return &cost, nil
}

// ListRules returns every hourly-rate rule.
func (s *PricingService) ListRules(ctx context.Context) ([]models.PricingRule, error) {
	rules, err := s.repo.ListRules(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pricing rules")
	}
	return rules, nil
}

// UpsertRule writes an hourly rate. Existing unapproved lessons are not
// recomputed retroactively; they pick up the new rate on their next edit.
func (s *PricingService) UpsertRule(ctx context.Context, actorID string, req dto.UpsertPricingRuleRequest) (*models.PricingRule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pricing rule payload")
	}

	rule := &models.PricingRule{
		EducationLevelID: req.EducationLevelID,
		LessonType:       models.LessonType(req.LessonType),
		PricePerHour:     req.PricePerHour,
	}
	if err := s.repo.UpsertRule(ctx, rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save pricing rule")
	}

	s.recordPricingAudit(ctx, actorID, "pricing_rule", rule.ID, req)
	return rule, nil
}

// ListTiers returns every group pricing tier.
func (s *PricingService) ListTiers(ctx context.Context) ([]models.GroupPricingTier, error) {
	tiers, err := s.repo.ListTiers(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list group tiers")
	}
	return tiers, nil
}

// CreateTier adds a group pricing tier. The DB unique index on
// (level, count) is the authoritative duplicate check.
func (s *PricingService) CreateTier(ctx context.Context, actorID string, req dto.CreateGroupTierRequest) (*models.GroupPricingTier, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group tier payload")
	}

	tier := &models.GroupPricingTier{
		EducationLevelID:  req.EducationLevelID,
		StudentCount:      req.StudentCount,
		TotalPricePerHour: req.TotalPricePerHour,
	}
	if err := s.repo.CreateTier(ctx, tier); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a tier for this level and student count already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create group tier")
	}

	s.recordPricingAudit(ctx, actorID, "group_pricing_tier", tier.ID, req)
	return tier, nil
}

// DeleteTier removes a tier. Approved lessons keep their locked cost and
// pending lessons keep their stored cost until re-edited.
func (s *PricingService) DeleteTier(ctx context.Context, actorID string, id string) error {
	if err := s.repo.DeleteTier(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "group tier not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete group tier")
	}

	s.recordPricingAudit(ctx, actorID, "group_pricing_tier", id, map[string]string{"deleted": id})
	return nil
}

// RemedialSettings returns the flat-rate pair, or not-found before first
// configuration.
func (s *PricingService) RemedialSettings(ctx context.Context) (*models.RemedialRateSettings, error) {
	settings, err := s.repo.RemedialSettings(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "remedial rates not configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load remedial settings")
	}
	return settings, nil
}

// UpdateRemedialSettings rewrites the flat-rate pair.
func (s *PricingService) UpdateRemedialSettings(ctx context.Context, actorID string, req dto.UpdateRemedialSettingsRequest) (*models.RemedialRateSettings, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid remedial settings payload")
	}

	settings, err := s.repo.RemedialSettings(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load remedial settings")
	}
	if settings == nil {
		settings = &models.RemedialRateSettings{}
	}
	settings.InitialRate = req.InitialRate
	settings.SubsequentRate = req.SubsequentRate
	settings.LessonThreshold = req.LessonThreshold

	if err := s.repo.SaveRemedialSettings(ctx, settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save remedial settings")
	}

	s.recordPricingAudit(ctx, actorID, "remedial_rate_settings", settings.ID, req)
	return settings, nil
}

func (s *PricingService) recordPricingAudit(ctx context.Context, actorID, resource, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	values, _ := json.Marshal(payload)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionPricingWrite,
		Resource:   resource,
		ResourceID: &resourceID,
		NewValues:  values,
	}); err != nil {
		s.logger.Warn("failed to record pricing audit log", zap.Error(err))
	}
}
