package exchange

import (
	"fmt"

	"github.com/pkg/errors"
)

type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
	KindTimeout   ErrorKind = "timeout"
)

var (
	ErrRateLimited           = errors.New("rate limited")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInvalidAddress        = errors.New("invalid destination address")
	ErrBelowMinimum          = errors.New("order amount below exchange minimum")
	ErrInvalidAmount         = errors.New("order amount must be positive")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderRejected         = errors.New("order rejected")
	ErrOrderPending          = errors.New("order still pending")
	ErrBackendUnavailable    = errors.New("exchange unavailable")
)

// Error classifies a backend failure so the executor knows whether to retry.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("exchange %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Transient(op string, err error) *Error { return NewError(KindTransient, op, err) }
func Permanent(op string, err error) *Error { return NewError(KindPermanent, op, err) }
func Timeout(op string, err error) *Error   { return NewError(KindTimeout, op, err) }

func kindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsTransient(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTransient
}

func IsPermanent(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindPermanent
}

func IsTimeout(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTimeout
}

// IsRetryable is true for transient failures and timeouts. Unclassified
// errors are not retried.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsTimeout(err)
}
