package webhook

import (
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/dwarvesf/treasury-settlement/internal/utils/config"
)

const DefaultTolerance = 300 * time.Second

// IVerifier turns a raw delivery into a verified InboundEvent. The replay
// window is checked before the signature.
type IVerifier interface {
	Verify(provider Provider, header http.Header, payload []byte) (*InboundEvent, error)
}

type providerHandler interface {
	configured() bool
	decode(payload []byte, header string, sh SignatureHeader) (*InboundEvent, error)
}

type Config struct {
	StripeSecret  string
	GenericSecret string
	Tolerance     time.Duration
	Now           func() time.Time
}

func ConfigFrom(appConfig *config.AppConfig) Config {
	return Config{
		StripeSecret:  appConfig.Webhook.StripeSecret,
		GenericSecret: appConfig.Webhook.GenericSecret,
		Tolerance:     time.Duration(appConfig.Webhook.ToleranceSeconds) * time.Second,
	}
}

type Verifier struct {
	handlers  map[Provider]providerHandler
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(cfg Config) *Verifier {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{
		handlers: map[Provider]providerHandler{
			ProviderStripe:  stripeHandler{secret: cfg.StripeSecret},
			ProviderGeneric: genericHandler{secret: cfg.GenericSecret},
		},
		tolerance: cfg.Tolerance,
		now:       cfg.Now,
	}
}

func (v *Verifier) Verify(provider Provider, header http.Header, payload []byte) (*InboundEvent, error) {
	handler, ok := v.handlers[provider]
	if !ok {
		return nil, errors.Wrap(ErrUnknownProvider, string(provider))
	}
	if !handler.configured() {
		return nil, errors.Wrap(ErrProviderNotConfigured, string(provider))
	}

	raw := header.Get(provider.SignatureHeader())
	if raw == "" {
		return nil, errors.Wrapf(ErrMalformedHeader, "missing %s", provider.SignatureHeader())
	}
	sh, err := ParseSignatureHeader(raw)
	if err != nil {
		return nil, err
	}
	if err := sh.CheckReplay(v.now(), v.tolerance); err != nil {
		return nil, err
	}

	event, err := handler.decode(payload, raw, sh)
	if err != nil {
		return nil, err
	}
	event.Provider = provider
	event.SignedAt = sh.Timestamp
	return event, nil
}
