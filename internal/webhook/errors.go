package webhook

import "github.com/pkg/errors"

var (
	ErrUnknownProvider       = errors.New("unknown webhook provider")
	ErrProviderNotConfigured = errors.New("webhook provider has no signing secret")
	ErrMalformedHeader       = errors.New("malformed signature header")
	ErrReplayRejected        = errors.New("signature timestamp outside tolerance")
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrMalformedPayload      = errors.New("malformed webhook payload")
	ErrMissingTenant         = errors.New("webhook payload has no tenant id")
)

// IsRejection reports whether err means the request itself is bad and must
// not be retried by the sender as-is.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrUnknownProvider, ErrMalformedHeader, ErrReplayRejected,
		ErrInvalidSignature, ErrMalformedPayload, ErrMissingTenant,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
