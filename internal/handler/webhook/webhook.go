package webhook

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/dwarvesf/treasury-settlement/internal/controller"
	"github.com/dwarvesf/treasury-settlement/internal/idempotency"
	"github.com/dwarvesf/treasury-settlement/internal/tenant"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
	"github.com/dwarvesf/treasury-settlement/internal/view"
	inbound "github.com/dwarvesf/treasury-settlement/internal/webhook"
)

// MaxBodyBytes caps a webhook body; providers send well under this.
const MaxBodyBytes = 1 << 20

type handler struct {
	controller controller.IController
	verifier   inbound.IVerifier
	logger     *logger.Logger
	metrics    controller.MetricsRecorder
}

// New builds the ingress handler. metrics may be nil.
func New(controller controller.IController, verifier inbound.IVerifier, logger *logger.Logger, metrics controller.MetricsRecorder) IHandler {
	return &handler{
		controller: controller,
		verifier:   verifier,
		logger:     logger,
		metrics:    metrics,
	}
}

// Receive godoc
// @Summary Receive a payment provider webhook
// @Description Verifies the signature, rejects replays and runs the event through the settlement pipeline
// @id receiveWebhook
// @Tags Webhook
// @Accept json
// @Produce json
// @Param provider path string true "Payment provider (stripe, generic)"
// @Success 200 {object} view.Response[controller.IngestResult]
// @Failure 400 {object} view.ErrorResponse
// @Failure 401 {object} view.ErrorResponse
// @Failure 404 {object} view.ErrorResponse
// @Failure 503 {object} view.ErrorResponse
// @Router /webhooks/{provider} [post]
func (h *handler) Receive(c *gin.Context) {
	provider, err := inbound.ParseProvider(c.Param("provider"))
	if err != nil {
		h.reject(c, c.Param("provider"), err)
		return
	}
	h.receive(c, provider)
}

// ReceiveDetected godoc
// @Summary Receive a webhook, detecting the provider from its signature header
// @id receiveDetectedWebhook
// @Tags Webhook
// @Accept json
// @Produce json
// @Success 200 {object} view.Response[controller.IngestResult]
// @Failure 400 {object} view.ErrorResponse
// @Failure 401 {object} view.ErrorResponse
// @Failure 404 {object} view.ErrorResponse
// @Router /webhooks [post]
func (h *handler) ReceiveDetected(c *gin.Context) {
	provider, err := inbound.DetectProvider(c.Request.Header)
	if err != nil {
		h.reject(c, "", err)
		return
	}
	h.receive(c, provider)
}

func (h *handler) receive(c *gin.Context, provider inbound.Provider) {
	start := time.Now()
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		h.reject(c, string(provider), errors.Wrap(inbound.ErrMalformedPayload, err.Error()))
		return
	}

	event, err := h.verifier.Verify(provider, c.Request.Header, payload)
	if err != nil {
		h.reject(c, string(provider), err)
		return
	}

	result, err := h.controller.IngestEvent(c.Request.Context(), event)
	if err != nil {
		status := ingestStatus(err)
		h.logger.Error("[Webhook][IngestEvent]", map[string]string{
			"provider": string(provider),
			"eventID":  event.EventID,
			"tenantID": event.TenantID,
			"status":   http.StatusText(status),
			"error":    err.Error(),
		})
		c.JSON(status, view.CreateResponse[any](nil, err, nil, "failed to process webhook"))
		return
	}

	h.logger.Info("[Webhook][IngestEvent] webhook processed", map[string]string{
		"provider": string(provider),
		"eventID":  event.EventID,
		"tenantID": event.TenantID,
		"outcome":  string(result.Outcome),
		"duration": time.Since(start).String(),
	})
	c.JSON(http.StatusOK, view.CreateResponse(result, nil, nil, string(result.Outcome)))
}

func (h *handler) reject(c *gin.Context, provider string, err error) {
	status := rejectionStatus(err)
	h.logger.Warn("[Webhook][Verify] webhook rejected", map[string]string{
		"provider": provider,
		"remoteIP": c.ClientIP(),
		"error":    err.Error(),
	})
	if h.metrics != nil {
		h.metrics.RecordIngest(provider, "rejected", 0)
	}
	c.JSON(status, view.CreateResponse[any](nil, err, nil, "webhook rejected"))
}

func rejectionStatus(err error) int {
	switch {
	case errors.Is(err, inbound.ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, inbound.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, inbound.ErrInvalidSignature), errors.Is(err, inbound.ErrReplayRejected):
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

// ingestStatus maps pipeline failures. Tenant errors are final so the
// provider gets a 4xx; storage failures ask it to redeliver.
func ingestStatus(err error) int {
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound):
		return http.StatusNotFound
	case errors.Is(err, tenant.ErrTenantInactive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, controller.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, idempotency.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
