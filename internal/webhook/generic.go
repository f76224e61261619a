package webhook

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/dwarvesf/treasury-settlement/internal/model"
)

var validate = validator.New()

// genericPayload is the body of a provider that signs with the shared
// "t=<unix>,v1=<hmac>" scheme. Either id or event_id names the event.
type genericPayload struct {
	ID        string          `json:"id"`
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type" validate:"required"`
	TenantID  string          `json:"tenant_id"`
	Payment   *genericPayment `json:"payment"`
}

type genericPayment struct {
	ExternalPaymentID string `json:"external_payment_id" validate:"required,max=255"`
	AmountMinorUnits  int64  `json:"amount_minor_units" validate:"gte=0"`
	Currency          string `json:"currency" validate:"required,len=3"`
	Status            string `json:"status" validate:"required,oneof=succeeded failed pending"`
}

type genericHandler struct {
	secret string
}

func (h genericHandler) configured() bool {
	return h.secret != ""
}

func (h genericHandler) decode(payload []byte, _ string, sh SignatureHeader) (*InboundEvent, error) {
	if !sh.matches(h.secret, payload) {
		return nil, ErrInvalidSignature
	}

	var body genericPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, errors.Wrap(ErrMalformedPayload, err.Error())
	}
	if err := validate.Struct(body); err != nil {
		return nil, errors.Wrap(ErrMalformedPayload, err.Error())
	}

	eventID := body.EventID
	if eventID == "" {
		eventID = body.ID
	}
	if eventID == "" {
		return nil, errors.Wrap(ErrMalformedPayload, "missing event id")
	}

	in := &InboundEvent{
		EventID:   eventID,
		EventType: body.EventType,
		TenantID:  body.TenantID,
	}
	if body.Payment == nil {
		return in, nil
	}
	if body.TenantID == "" {
		return nil, ErrMissingTenant
	}
	in.Payment = &PaymentData{
		ExternalPaymentID: body.Payment.ExternalPaymentID,
		AmountMinorUnits:  body.Payment.AmountMinorUnits,
		Currency:          body.Payment.Currency,
		Status:            model.PaymentStatus(body.Payment.Status),
	}
	return in, nil
}
