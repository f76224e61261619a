package webhook

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/dwarvesf/treasury-settlement/internal/model"
)

// MetadataTenantID is the PaymentIntent metadata key naming the tenant.
const MetadataTenantID = "tenant_id"

var stripePaymentStatuses = map[stripe.EventType]model.PaymentStatus{
	"payment_intent.succeeded":      model.PaymentStatusSucceeded,
	"payment_intent.payment_failed": model.PaymentStatusFailed,
	"payment_intent.processing":     model.PaymentStatusPending,
}

type stripeHandler struct {
	secret string
}

func (h stripeHandler) configured() bool {
	return h.secret != ""
}

func (h stripeHandler) decode(payload []byte, header string, _ SignatureHeader) (*InboundEvent, error) {
	// the replay window was already enforced against our own clock
	event, err := stripewebhook.ConstructEventWithOptions(payload, header, h.secret, stripewebhook.ConstructEventOptions{
		IgnoreTolerance:          true,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, stripewebhook.ErrNoValidSignature) ||
			errors.Is(err, stripewebhook.ErrNotSigned) ||
			errors.Is(err, stripewebhook.ErrInvalidHeader) {
			return nil, errors.Wrap(ErrInvalidSignature, err.Error())
		}
		return nil, errors.Wrap(ErrMalformedPayload, err.Error())
	}
	if event.ID == "" {
		return nil, errors.Wrap(ErrMalformedPayload, "missing event id")
	}

	in := &InboundEvent{
		EventID:   event.ID,
		EventType: string(event.Type),
	}

	status, ok := stripePaymentStatuses[event.Type]
	if !ok || event.Data == nil {
		return in, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, errors.Wrap(ErrMalformedPayload, err.Error())
	}
	if intent.ID == "" || intent.Amount < 0 {
		return nil, errors.Wrap(ErrMalformedPayload, "payment intent without id or with negative amount")
	}
	in.TenantID = intent.Metadata[MetadataTenantID]
	if in.TenantID == "" {
		return nil, ErrMissingTenant
	}
	in.Payment = &PaymentData{
		ExternalPaymentID: intent.ID,
		AmountMinorUnits:  intent.Amount,
		Currency:          string(intent.Currency),
		Status:            status,
	}
	return in, nil
}
