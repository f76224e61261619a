package webhook

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarvesf/treasury-settlement/internal/consts"
)

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider(" Stripe ")
	require.NoError(t, err)
	assert.Equal(t, ProviderStripe, p)

	_, err = ParseProvider("paypal")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestDetectProvider(t *testing.T) {
	h := http.Header{}
	_, err := DetectProvider(h)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	h.Set(consts.HeaderGenericSignature, "t=1,v1=aa")
	p, err := DetectProvider(h)
	require.NoError(t, err)
	assert.Equal(t, ProviderGeneric, p)

	h.Set(consts.HeaderStripeSignature, "t=1,v1=aa")
	p, err = DetectProvider(h)
	require.NoError(t, err)
	assert.Equal(t, ProviderStripe, p)
}

func TestParseSignatureHeader(t *testing.T) {
	sh, err := ParseSignatureHeader("t=1700000000,v1=abc,v0=old,v1=def")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), sh.Timestamp.Unix())
	assert.Equal(t, []string{"abc", "def"}, sh.Signatures)

	for _, bad := range []string{"", "v1=abc", "t=notanumber,v1=abc", "t=1700000000", "garbage"} {
		_, err := ParseSignatureHeader(bad)
		assert.ErrorIs(t, err, ErrMalformedHeader, bad)
	}
}

func TestSignatureHeader_Matches(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	payload := []byte(`{"event_id":"e"}`)
	sh, err := ParseSignatureHeader(FormatSignatureHeader("secret", ts, payload))
	require.NoError(t, err)

	assert.True(t, sh.matches("secret", payload))
	assert.False(t, sh.matches("other", payload))
	assert.False(t, sh.matches("secret", []byte(`{"event_id":"f"}`)))
}
