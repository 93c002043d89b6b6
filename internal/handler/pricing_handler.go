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

type pricingService interface {
	ListRules(ctx context.Context) ([]models.PricingRule, error)
	UpsertRule(ctx context.Context, actorID string, req dto.UpsertPricingRuleRequest) (*models.PricingRule, error)
	ListTiers(ctx context.Context) ([]models.GroupPricingTier, error)
	CreateTier(ctx context.Context, actorID string, req dto.CreateGroupTierRequest) (*models.GroupPricingTier, error)
	DeleteTier(ctx context.Context, actorID string, id string) error
	RemedialSettings(ctx context.Context) (*models.RemedialRateSettings, error)
	UpdateRemedialSettings(ctx context.Context, actorID string, req dto.UpdateRemedialSettingsRequest) (*models.RemedialRateSettings, error)
}

// PricingHandler exposes the pricing configuration endpoints.
type PricingHandler struct {
	service pricingService
}

// NewPricingHandler constructs the handler.
func NewPricingHandler(service pricingService) *PricingHandler {
	return &PricingHandler{service: service}
}

// ListRules godoc
// @Summary List hourly pricing rules
// @Tags Pricing
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /pricing/rules [get]
func (h *PricingHandler) ListRules(c *gin.Context) {
	rules, err := h.service.ListRules(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// UpsertRule godoc
// @Summary Create or replace an hourly pricing rule
// @Tags Pricing
// @Accept json
// @Produce json
// @Param payload body dto.UpsertPricingRuleRequest true "Rule payload"
// @Success 200 {object} response.Envelope
// @Router /pricing/rules [put]
func (h *PricingHandler) UpsertRule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.UpsertPricingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid pricing rule payload"))
		return
	}

	rule, err := h.service.UpsertRule(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// ListTiers godoc
// @Summary List group pricing tiers
// @Tags Pricing
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /group-pricing-tiers [get]
func (h *PricingHandler) ListTiers(c *gin.Context) {
	tiers, err := h.service.ListTiers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tiers, nil)
}

// CreateTier godoc
// @Summary Add a group pricing tier
// @Tags Pricing
// @Accept json
// @Produce json
// @Param payload body dto.CreateGroupTierRequest true "Tier payload"
// @Success 201 {object} response.Envelope
// @Router /group-pricing-tiers [post]
func (h *PricingHandler) CreateTier(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateGroupTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid group tier payload"))
		return
	}

	tier, err := h.service.CreateTier(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tier)
}

// DeleteTier godoc
// @Summary Delete a group pricing tier
// @Tags Pricing
// @Param id path string true "Tier ID"
// @Success 204
// @Router /group-pricing-tiers/{id} [delete]
func (h *PricingHandler) DeleteTier(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.DeleteTier(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemedialSettings godoc
// @Summary Get the remedial flat-rate settings
// @Tags Pricing
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /pricing/remedial [get]
func (h *PricingHandler) RemedialSettings(c *gin.Context) {
	settings, err := h.service.RemedialSettings(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}

// UpdateRemedialSettings godoc
// @Summary Update the remedial flat-rate settings
// @Tags Pricing
// @Accept json
// @Produce json
// @Param payload body dto.UpdateRemedialSettingsRequest true "Settings payload"
// @Success 200 {object} response.Envelope
// @Router /pricing/remedial [put]
func (h *PricingHandler) UpdateRemedialSettings(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.UpdateRemedialSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid remedial settings payload"))
		return
	}

	settings, err := h.service.UpdateRemedialSettings(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}
