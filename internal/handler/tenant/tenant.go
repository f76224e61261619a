package tenant

import (
	"io"
	"net/http"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/treasury-settlement/internal/controller"
	"github.com/dwarvesf/treasury-settlement/internal/exchange"
	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/tenant"
	"github.com/dwarvesf/treasury-settlement/internal/treasury"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
	"github.com/dwarvesf/treasury-settlement/internal/view"
)

type OnboardRequest struct {
	ID                  string           `json:"id" binding:"required,max=64"`
	Name                string           `json:"name" binding:"required,max=255"`
	SubscriptionTier    string           `json:"subscriptionTier" binding:"omitempty,oneof=starter growth enterprise"`
	WithdrawalAddress   string           `json:"withdrawalAddress"`
	MonthlyVolumeLimit  *decimal.Decimal `json:"monthlyVolumeLimit"`
	DailyVolumeLimit    *decimal.Decimal `json:"dailyVolumeLimit"`
	PerTransactionLimit *decimal.Decimal `json:"perTransactionLimit"`
}

type PartitionResponse struct {
	TenantID string `json:"tenantId"`
	Exists   bool   `json:"exists"`
}

type ScheduledConversionRequest struct {
	// RunID defaults to a fresh uuid; callers retrying a run must reuse theirs.
	RunID string `json:"runId"`
}

type handler struct {
	resolver   tenant.IResolver
	controller controller.IController
	network    *chaincfg.Params
	logger     *logger.Logger
}

func New(resolver tenant.IResolver, controller controller.IController, network *chaincfg.Params, logger *logger.Logger) IHandler {
	return &handler{
		resolver:   resolver,
		controller: controller,
		network:    network,
		logger:     logger,
	}
}

// Onboard godoc
// @Summary Onboard a tenant
// @Description Stores the tenant and creates its partition in one transaction
// @id onboardTenant
// @Tags Tenant
// @Accept json
// @Produce json
// @Param request body OnboardRequest true "Tenant"
// @Success 201 {object} view.Response[model.Tenant]
// @Failure 400 {object} view.ErrorResponse
// @Failure 409 {object} view.ErrorResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /tenants [post]
func (h *handler) Onboard(c *gin.Context) {
	var req OnboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("[Onboard][ShouldBindJSON]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, req, "invalid request"))
		return
	}
	if req.WithdrawalAddress != "" {
		if err := exchange.ValidateAddress(req.WithdrawalAddress, h.network); err != nil {
			c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, req, "invalid withdrawal address"))
			return
		}
	}

	t := &model.Tenant{
		ID:                  req.ID,
		Name:                req.Name,
		SubscriptionTier:    model.SubscriptionTier(req.SubscriptionTier),
		WithdrawalAddress:   req.WithdrawalAddress,
		MonthlyVolumeLimit:  nullDecimal(req.MonthlyVolumeLimit),
		DailyVolumeLimit:    nullDecimal(req.DailyVolumeLimit),
		PerTransactionLimit: nullDecimal(req.PerTransactionLimit),
	}
	if err := h.resolver.Onboard(c.Request.Context(), t); err != nil {
		h.logger.Error("[Onboard][resolver.Onboard]", map[string]string{
			"tenantID": req.ID,
			"error":    err.Error(),
		})
		c.JSON(statusFor(err), view.CreateResponse[any](nil, err, nil, "failed to onboard tenant"))
		return
	}

	c.JSON(http.StatusCreated, view.CreateResponse(t, nil, nil, "tenant onboarded"))
}

// CreatePartition godoc
// @Summary Create a tenant partition
// @Description Idempotent; creates every tenant table or none
// @id createPartition
// @Tags Tenant
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Success 200 {object} view.Response[PartitionResponse]
// @Failure 404 {object} view.ErrorResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /tenants/{tenantId}/partition [post]
func (h *handler) CreatePartition(c *gin.Context) {
	tenantID := c.Param("tenantId")
	if err := h.resolver.CreatePartition(c.Request.Context(), tenantID); err != nil {
		h.logger.Error("[CreatePartition][resolver.CreatePartition]", map[string]string{
			"tenantID": tenantID,
			"error":    err.Error(),
		})
		c.JSON(statusFor(err), view.CreateResponse[any](nil, err, nil, "failed to create partition"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(PartitionResponse{TenantID: tenantID, Exists: true}, nil, nil, "partition ready"))
}

// GetPartition godoc
// @Summary Check a tenant partition
// @id getPartition
// @Tags Tenant
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Success 200 {object} view.Response[PartitionResponse]
// @Failure 404 {object} view.ErrorResponse
// @Router /tenants/{tenantId}/partition [get]
func (h *handler) GetPartition(c *gin.Context) {
	tenantID := c.Param("tenantId")
	exists, err := h.resolver.PartitionExists(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(statusFor(err), view.CreateResponse[any](nil, err, nil, "failed to check partition"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(PartitionResponse{TenantID: tenantID, Exists: exists}, nil, nil, ""))
}

// GetRule godoc
// @Summary Get the active treasury rule
// @id getRule
// @Tags Tenant
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Success 200 {object} view.Response[model.TreasuryRule]
// @Failure 404 {object} view.ErrorResponse
// @Router /tenants/{tenantId}/rule [get]
func (h *handler) GetRule(c *gin.Context) {
	handle, ok := h.resolve(c)
	if !ok {
		return
	}
	rule, err := handle.ActiveRule(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, view.CreateResponse[any](nil, err, nil, "failed to load rule"))
		return
	}
	if rule == nil {
		c.JSON(http.StatusNotFound, view.CreateResponse[any](nil, errors.New(treasury.ReasonNoActiveRule), nil, "no active rule"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(rule, nil, nil, ""))
}

// ReplaceRule godoc
// @Summary Replace the treasury rule
// @Description Deactivates the current rule and stores the new one
// @id replaceRule
// @Tags Tenant
// @Accept json
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param request body treasury.RuleConfig true "Rule"
// @Success 200 {object} view.Response[model.TreasuryRule]
// @Failure 400 {object} view.ErrorResponse
// @Failure 404 {object} view.ErrorResponse
// @Router /tenants/{tenantId}/rule [put]
func (h *handler) ReplaceRule(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "invalid request"))
		return
	}
	cfg, err := treasury.ParseRuleConfig(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "invalid rule"))
		return
	}

	handle, ok := h.resolve(c)
	if !ok {
		return
	}
	rule, err := handle.ReplaceRule(c.Request.Context(), *cfg)
	if err != nil {
		h.logger.Error("[ReplaceRule][handle.ReplaceRule]", map[string]string{
			"tenantID": c.Param("tenantId"),
			"error":    err.Error(),
		})
		c.JSON(statusFor(err), view.CreateResponse[any](nil, err, nil, "failed to replace rule"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(rule, nil, nil, "rule replaced"))
}

// TriggerScheduledConversion godoc
// @Summary Run a scheduled conversion
// @Description Evaluates a FIXED_AMOUNT or DCA rule; the same runId never buys twice
// @id triggerScheduledConversion
// @Tags Tenant
// @Accept json
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param request body ScheduledConversionRequest false "Run"
// @Success 200 {object} view.Response[controller.ConversionResult]
// @Failure 404 {object} view.ErrorResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /tenants/{tenantId}/conversions/scheduled [post]
func (h *handler) TriggerScheduledConversion(c *gin.Context) {
	var req ScheduledConversionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "invalid request"))
			return
		}
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	tenantID := c.Param("tenantId")
	result, err := h.controller.TriggerScheduledConversion(c.Request.Context(), tenantID, req.RunID)
	if err != nil {
		h.logger.Error("[TriggerScheduledConversion][controller]", map[string]string{
			"tenantID": tenantID,
			"runID":    req.RunID,
			"error":    err.Error(),
		})
		c.JSON(statusFor(err), view.CreateResponse[any](nil, err, nil, "failed to run scheduled conversion"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(result, nil, nil, result.Decision.Reason))
}

func (h *handler) resolve(c *gin.Context) (tenant.IHandle, bool) {
	handle, err := h.resolver.Resolve(c.Request.Context(), c.Param("tenantId"))
	if err != nil {
		c.JSON(statusFor(err), view.CreateResponse[any](nil, err, nil, "failed to resolve tenant"))
		return nil, false
	}
	return handle, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound):
		return http.StatusNotFound
	case errors.Is(err, tenant.ErrTenantInactive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tenant.ErrTenantExists):
		return http.StatusConflict
	case errors.Is(err, tenant.ErrInvalidSchema), errors.Is(err, tenant.ErrInvalidTenantID),
		errors.Is(err, treasury.ErrInvalidRuleConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}
