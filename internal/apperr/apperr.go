package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindExternal:
		return "external"
	default:
		return "internal"
	}
}

// Error carries a stable Code next to the message. Two errors with the same
// Code match under errors.Is, so callers compare against the sentinels below.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// Errorf derives an error from a sentinel with a more specific message.
func Errorf(sentinel *Error, format string, args ...any) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap derives an error from a sentinel keeping cause as the wrapped error.
func Wrap(sentinel *Error, cause error, format string, args ...any) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Msg: fmt.Sprintf(format, args...), Err: cause}
}

func Validation(format string, args ...any) *Error {
	return Errorf(ErrValidation, format, args...)
}

var (
	ErrValidation = New(KindValidation, "VALIDATION_ERROR", "validation error")
	ErrNotFound   = New(KindNotFound, "NOT_FOUND", "resource not found")
	ErrInternal   = New(KindInternal, "INTERNAL", "internal error")

	ErrInvalidToken       = New(KindValidation, "INVALID_TOKEN", "invalid or inactive qr token")
	ErrProductUnavailable = New(KindValidation, "PRODUCT_UNAVAILABLE", "product not found or unavailable")

	ErrInsufficientStock       = New(KindConflict, "INSUFFICIENT_STOCK", "insufficient stock")
	ErrAlreadyBound            = New(KindConflict, "ALREADY_BOUND", "qr token already bound")
	ErrDuplicateBinding        = New(KindConflict, "DUPLICATE_BINDING", "user already holds a token for this business")
	ErrNotBound                = New(KindConflict, "NOT_BOUND", "qr token is not bound")
	ErrInvalidTransition       = New(KindConflict, "INVALID_TRANSITION", "invalid status transition")
	ErrPaymentAlreadyInitiated = New(KindConflict, "PAYMENT_ALREADY_INITIATED", "payment already initiated")
	ErrOrderNotPayable         = New(KindConflict, "ORDER_NOT_PAYABLE", "order cannot be paid")
	ErrStaleNotification       = New(KindConflict, "STALE_NOTIFICATION", "stale payment notification")
	ErrRefundExceedsBalance    = New(KindConflict, "REFUND_EXCEEDS_BALANCE", "refund exceeds refundable balance")
	ErrNotRefundable           = New(KindConflict, "NOT_REFUNDABLE", "transaction cannot be refunded")
	ErrCodeTaken               = New(KindConflict, "QR_CODE_TAKEN", "qr code already exists for this business")
	ErrConcurrentUpdate        = New(KindConflict, "CONCURRENT_UPDATE", "resource changed concurrently")

	ErrUnknownTracking     = New(KindNotFound, "UNKNOWN_TRACKING", "gateway has no record of tracking id")
	ErrTransactionNotFound = New(KindNotFound, "TRANSACTION_NOT_FOUND", "transaction not found")

	ErrGatewayAuthFailed  = New(KindExternal, "GATEWAY_AUTH_FAILED", "payment gateway authentication failed")
	ErrGatewayUnavailable = New(KindExternal, "GATEWAY_UNAVAILABLE", "payment gateway unavailable")
)

// KindOf reports the kind of err; anything outside the taxonomy is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of err, INTERNAL when it has none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal.Code
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
