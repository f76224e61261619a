// Package webhook verifies inbound payment-provider deliveries and
// normalises them into InboundEvent values.
package webhook

import (
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dwarvesf/treasury-settlement/internal/consts"
	"github.com/dwarvesf/treasury-settlement/internal/model"
)

type Provider string

const (
	ProviderStripe  Provider = "stripe"
	ProviderGeneric Provider = "generic"
)

// signatureHeaders is also the detection order when no provider is named.
var signatureHeaders = []struct {
	provider Provider
	header   string
}{
	{ProviderStripe, consts.HeaderStripeSignature},
	{ProviderGeneric, consts.HeaderGenericSignature},
}

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderStripe, ProviderGeneric:
		return p, nil
	}
	return "", errors.Wrap(ErrUnknownProvider, s)
}

// DetectProvider picks the provider whose signature header is present.
func DetectProvider(h http.Header) (Provider, error) {
	for _, sh := range signatureHeaders {
		if h.Get(sh.header) != "" {
			return sh.provider, nil
		}
	}
	return "", ErrUnknownProvider
}

func (p Provider) SignatureHeader() string {
	for _, sh := range signatureHeaders {
		if sh.provider == p {
			return sh.header
		}
	}
	return ""
}

// PaymentData is the payment an event describes.
type PaymentData struct {
	ExternalPaymentID string
	AmountMinorUnits  int64
	Currency          string
	Status            model.PaymentStatus
}

// InboundEvent is a verified delivery. Payment is nil for event types that
// carry no payment; those are acknowledged and otherwise ignored.
type InboundEvent struct {
	Provider  Provider
	EventID   string
	EventType string
	TenantID  string
	SignedAt  time.Time
	Payment   *PaymentData
}
