package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindConflict      Kind = "conflict"
	KindUpstream      Kind = "upstream"
)

// Error is a classified domain failure. Two errors are equal under errors.Is
// when their codes match, so a sentinel can be wrapped with extra detail.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidQuantity          = newError(KindValidation, "InvalidQuantity", "quantity must be at least 1")
	ErrEmptyCart                = newError(KindValidation, "EmptyCart", "cart is empty")
	ErrInvalidChannelIdentifier = newError(KindValidation, "InvalidChannelIdentifier", "phone number is not a valid mobile number")
	ErrAmountMismatch           = newError(KindValidation, "AmountMismatch", "amount does not match order total")
	ErrInvalidStatus            = newError(KindValidation, "InvalidStatus", "unknown order status")
	ErrInvalidOutcome           = newError(KindValidation, "InvalidOutcome", "unknown settlement outcome")
	ErrInvalidPrice             = newError(KindValidation, "InvalidPrice", "price must not be negative")

	ErrProductUnavailable      = newError(KindNotFound, "ProductUnavailable", "product is unavailable")
	ErrProductNotFound         = newError(KindNotFound, "ProductNotFound", "product not found")
	ErrOrderNotFound           = newError(KindNotFound, "OrderNotFound", "order not found")
	ErrCartLineNotFound        = newError(KindNotFound, "CartLineNotFound", "cart item not found")
	ErrUnknownCorrelationToken = newError(KindNotFound, "UnknownCorrelationToken", "no payment attempt for correlation token")

	ErrAccessDenied = newError(KindAuthorization, "AccessDenied", "access denied")

	ErrAlreadySettled    = newError(KindConflict, "AlreadySettled", "payment attempt already settled")
	ErrIllegalTransition = newError(KindConflict, "IllegalTransition", "illegal order status transition")
	ErrAlreadyPaid       = newError(KindConflict, "AlreadyPaid", "order is already paid")
	ErrOrderCancelled    = newError(KindConflict, "OrderCancelled", "order is cancelled")
	ErrDuplicateRequest  = newError(KindConflict, "DuplicateRequest", "request with this idempotency key was already processed")
	ErrCatalogReadOnly   = newError(KindConflict, "CatalogReadOnly", "catalog is managed by the product service")
	ErrPaymentInProgress = newError(KindConflict, "PaymentInProgress", "a payment prompt for this order is still awaiting an answer")

	ErrUpstream = newError(KindUpstream, "UpstreamError", "payment gateway unavailable")
)

// KindOf reports the classification of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of the outermost domain error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Wrap attaches detail to a sentinel while keeping it matchable.
func Wrap(sentinel *Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
