package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SignatureHeader is the parsed form of "t=<unix>,v1=<hex>[,v1=<hex>...]".
type SignatureHeader struct {
	Timestamp  time.Time
	Signatures []string
}

func ParseSignatureHeader(header string) (SignatureHeader, error) {
	var sh SignatureHeader
	var sawTimestamp bool
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return SignatureHeader{}, errors.Wrapf(ErrMalformedHeader, "segment %q", part)
		}
		switch key {
		case "t":
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return SignatureHeader{}, errors.Wrap(ErrMalformedHeader, "timestamp")
			}
			sh.Timestamp = time.Unix(unix, 0)
			sawTimestamp = true
		case "v1":
			sh.Signatures = append(sh.Signatures, value)
		}
	}
	if !sawTimestamp {
		return SignatureHeader{}, errors.Wrap(ErrMalformedHeader, "missing timestamp")
	}
	if len(sh.Signatures) == 0 {
		return SignatureHeader{}, errors.Wrap(ErrMalformedHeader, "missing v1 signature")
	}
	return sh, nil
}

// CheckReplay rejects a header signed more than tolerance ago. A timestamp
// in the future is accepted up to the same tolerance.
func (sh SignatureHeader) CheckReplay(now time.Time, tolerance time.Duration) error {
	age := now.Sub(sh.Timestamp)
	if age > tolerance || -age > tolerance {
		return errors.Wrapf(ErrReplayRejected, "signed %s ago", age.Truncate(time.Second))
	}
	return nil
}

// Sign computes the v1 signature over "<unix>.<payload>".
func Sign(secret string, ts time.Time, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// FormatSignatureHeader builds the header value senders attach.
func FormatSignatureHeader(secret string, ts time.Time, payload []byte) string {
	return "t=" + strconv.FormatInt(ts.Unix(), 10) + ",v1=" + Sign(secret, ts, payload)
}

func (sh SignatureHeader) matches(secret string, payload []byte) bool {
	expected, _ := hex.DecodeString(Sign(secret, sh.Timestamp, payload))
	for _, sig := range sh.Signatures {
		got, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, got) {
			return true
		}
	}
	return false
}
