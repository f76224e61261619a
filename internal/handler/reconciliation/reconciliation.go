package reconciliation

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/dwarvesf/treasury-settlement/internal/reconciliation"
	"github.com/dwarvesf/treasury-settlement/internal/tenant"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
	"github.com/dwarvesf/treasury-settlement/internal/view"
)

// SweepRequest selects the window to reconcile. Both bounds are optional;
// the default is the trailing configured window ending now.
type SweepRequest struct {
	WindowStart *time.Time `json:"windowStart"`
	WindowEnd   *time.Time `json:"windowEnd"`
}

type handler struct {
	ledger        reconciliation.ILedger
	defaultWindow time.Duration
	logger        *logger.Logger
	now           func() time.Time
}

func New(ledger reconciliation.ILedger, defaultWindow time.Duration, logger *logger.Logger) IHandler {
	return &handler{
		ledger:        ledger,
		defaultWindow: defaultWindow,
		logger:        logger,
		now:           time.Now,
	}
}

// RunSweep godoc
// @Summary Run a reconciliation sweep
// @Description Classifies payments against purchases for every active tenant
// @id runReconciliationSweep
// @Tags Reconciliation
// @Accept json
// @Produce json
// @Param request body SweepRequest false "Window"
// @Success 200 {object} view.Response[reconciliation.Report]
// @Failure 400 {object} view.ErrorResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /reconciliation/sweeps [post]
func (h *handler) RunSweep(c *gin.Context) {
	var req SweepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "invalid request"))
			return
		}
	}

	window := reconciliation.Trailing(h.now(), h.defaultWindow)
	if req.WindowEnd != nil {
		window.End = *req.WindowEnd
		window.Start = window.End.Add(-h.defaultWindow)
	}
	if req.WindowStart != nil {
		window.Start = *req.WindowStart
	}

	report, err := h.ledger.RunSweep(c.Request.Context(), window)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, reconciliation.ErrInvalidWindow) {
			status = http.StatusBadRequest
		}
		h.logger.Error("[RunSweep][ledger.RunSweep]", map[string]string{
			"windowStart": window.Start.Format(time.RFC3339),
			"windowEnd":   window.End.Format(time.RFC3339),
			"error":       err.Error(),
		})
		c.JSON(status, view.CreateResponse[any](nil, err, req, "failed to run reconciliation sweep"))
		return
	}

	c.JSON(http.StatusOK, view.CreateResponse(report, nil, nil, report.Status))
}

// ListRecords godoc
// @Summary List the records a sweep appended for one tenant
// @id listReconciliationRecords
// @Tags Reconciliation
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param sweepId path string true "Sweep ID"
// @Success 200 {object} view.Response[[]model.ReconciliationRecord]
// @Failure 404 {object} view.ErrorResponse
// @Router /tenants/{tenantId}/reconciliation/sweeps/{sweepId}/records [get]
func (h *handler) ListRecords(c *gin.Context) {
	records, err := h.ledger.ListRecords(c.Request.Context(), c.Param("tenantId"), c.Param("sweepId"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, tenant.ErrTenantNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, view.CreateResponse[any](nil, err, nil, "failed to list reconciliation records"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(records, nil, nil, ""))
}
