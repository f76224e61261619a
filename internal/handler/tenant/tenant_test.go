package tenant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarvesf/treasury-settlement/internal/controller"
	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/tenant"
	"github.com/dwarvesf/treasury-settlement/internal/treasury"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
	"github.com/dwarvesf/treasury-settlement/internal/webhook"
)

const testnetAddress = "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"

type stubHandle struct {
	tenant.IHandle
	rule     *model.TreasuryRule
	replaced *treasury.RuleConfig
}

func (h *stubHandle) ActiveRule(context.Context) (*model.TreasuryRule, error) { return h.rule, nil }

func (h *stubHandle) ReplaceRule(_ context.Context, cfg treasury.RuleConfig) (*model.TreasuryRule, error) {
	h.replaced = &cfg
	r := cfg.ToRule("acme")
	r.ID = "rule-2"
	return r, nil
}

type stubResolver struct {
	handle     *stubHandle
	onboarded  *model.Tenant
	onboardErr error
	partitions map[string]bool
}

func (r *stubResolver) Resolve(_ context.Context, tenantID string) (tenant.IHandle, error) {
	if tenantID != "acme" {
		return nil, errors.Wrap(tenant.ErrTenantNotFound, tenantID)
	}
	return r.handle, nil
}

func (r *stubResolver) CreatePartition(_ context.Context, tenantID string) error {
	if tenantID != "acme" {
		return errors.Wrap(tenant.ErrTenantNotFound, tenantID)
	}
	r.partitions[tenantID] = true
	return nil
}

func (r *stubResolver) PartitionExists(_ context.Context, tenantID string) (bool, error) {
	return r.partitions[tenantID], nil
}

func (r *stubResolver) Onboard(_ context.Context, t *model.Tenant) error {
	if r.onboardErr != nil {
		return r.onboardErr
	}
	t.SchemaRef = tenant.SchemaRefFor(t.ID)
	t.Status = model.TenantStatusActive
	r.onboarded = t
	return nil
}

func (r *stubResolver) ListActive(context.Context) ([]model.Tenant, error) { return nil, nil }

type stubController struct {
	runID string
}

func (s *stubController) IngestEvent(context.Context, *webhook.InboundEvent) (*controller.IngestResult, error) {
	return nil, errors.New("not used")
}

func (s *stubController) TriggerScheduledConversion(_ context.Context, tenantID, runID string) (*controller.ConversionResult, error) {
	if tenantID != "acme" {
		return nil, errors.Wrap(tenant.ErrTenantNotFound, tenantID)
	}
	s.runID = runID
	return &controller.ConversionResult{
		TenantID: tenantID,
		RunID:    runID,
		Decision: treasury.Decision{Convert: true, Amount: decimal.NewFromInt(500), Reason: treasury.ReasonFixedAmount},
	}, nil
}

func setup() (*gin.Engine, *stubResolver, *stubController) {
	gin.SetMode(gin.TestMode)
	resolver := &stubResolver{handle: &stubHandle{}, partitions: map[string]bool{}}
	ctrl := &stubController{}
	h := New(resolver, ctrl, &chaincfg.TestNet3Params, logger.New("test"))

	router := gin.New()
	router.POST("/tenants", h.Onboard)
	router.POST("/tenants/:tenantId/partition", h.CreatePartition)
	router.GET("/tenants/:tenantId/partition", h.GetPartition)
	router.GET("/tenants/:tenantId/rule", h.GetRule)
	router.PUT("/tenants/:tenantId/rule", h.ReplaceRule)
	router.POST("/tenants/:tenantId/conversions/scheduled", h.TriggerScheduledConversion)
	return router, resolver, ctrl
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestOnboard(t *testing.T) {
	router, resolver, _ := setup()

	w := do(router, http.MethodPost, "/tenants", `{"id":"acme","name":"Acme","subscriptionTier":"growth","withdrawalAddress":"`+testnetAddress+`","dailyVolumeLimit":"5000"}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotNil(t, resolver.onboarded)
	assert.Equal(t, model.SubscriptionTierGrowth, resolver.onboarded.SubscriptionTier)
	assert.True(t, resolver.onboarded.DailyVolumeLimit.Valid)
	assert.Equal(t, "5000", resolver.onboarded.DailyVolumeLimit.Decimal.String())
	assert.False(t, resolver.onboarded.MonthlyVolumeLimit.Valid)
	assert.Contains(t, w.Body.String(), `"schema_ref":"tenant_acme"`)
}

func TestOnboard_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		onboardErr error
		status     int
	}{
		{name: "missing name", body: `{"id":"acme"}`, status: http.StatusBadRequest},
		{name: "bad tier", body: `{"id":"acme","name":"Acme","subscriptionTier":"gold"}`, status: http.StatusBadRequest},
		{name: "mainnet address on testnet", body: `{"id":"acme","name":"Acme","withdrawalAddress":"bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"}`, status: http.StatusBadRequest},
		{name: "exists", body: `{"id":"acme","name":"Acme"}`, onboardErr: errors.Wrap(tenant.ErrTenantExists, "acme"), status: http.StatusConflict},
		{name: "bad schema", body: `{"id":"acme","name":"Acme"}`, onboardErr: tenant.ErrInvalidSchema, status: http.StatusBadRequest},
		{name: "bad id", body: `{"id":"Acme-Corp","name":"Acme"}`, onboardErr: errors.Wrap(tenant.ErrInvalidTenantID, "Acme-Corp"), status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, resolver, _ := setup()
			resolver.onboardErr = tt.onboardErr

			w := do(router, http.MethodPost, "/tenants", tt.body)

			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestPartition(t *testing.T) {
	router, _, _ := setup()

	w := do(router, http.MethodGet, "/tenants/acme/partition", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"exists":false`)

	w = do(router, http.MethodPost, "/tenants/acme/partition", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/tenants/acme/partition", "")
	assert.Contains(t, w.Body.String(), `"exists":true`)

	w = do(router, http.MethodPost, "/tenants/globex/partition", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRule(t *testing.T) {
	router, resolver, _ := setup()

	w := do(router, http.MethodGet, "/tenants/acme/rule", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodPut, "/tenants/acme/rule", `{"type":"PERCENTAGE","percentage":"150","isActive":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, resolver.handle.replaced)

	w = do(router, http.MethodPut, "/tenants/acme/rule", `{"type":"PERCENTAGE","percentage":"10","minTransactionAmount":"0","maxTransactionAmount":"0","isActive":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, resolver.handle.replaced)
	assert.Equal(t, model.RuleTypePercentage, resolver.handle.replaced.Type)

	w = do(router, http.MethodPut, "/tenants/globex/rule", `{"type":"PERCENTAGE","percentage":"10","isActive":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerScheduledConversion(t *testing.T) {
	router, _, ctrl := setup()

	w := do(router, http.MethodPost, "/tenants/acme/conversions/scheduled", `{"runId":"2026-10-19"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2026-10-19", ctrl.runID)

	var body struct {
		Data    controller.ConversionResult `json:"data"`
		Message string                      `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, treasury.ReasonFixedAmount, body.Message)

	w = do(router, http.MethodPost, "/tenants/acme/conversions/scheduled", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, ctrl.runID)
	assert.NotEqual(t, "2026-10-19", ctrl.runID)

	w = do(router, http.MethodPost, "/tenants/globex/conversions/scheduled", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
