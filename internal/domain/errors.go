package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidAmount          ErrorKind = "InvalidAmount"
	KindInvalidIntent          ErrorKind = "InvalidIntent"
	KindInsufficientReserve    ErrorKind = "InsufficientReserve"
	KindUnsupportedOperator    ErrorKind = "UnsupportedOperator"
	KindUnsupportedBank        ErrorKind = "UnsupportedBank"
	KindInvalidPhoneNumber     ErrorKind = "InvalidPhoneNumber"
	KindGatewayRejected        ErrorKind = "GatewayRejected"
	KindGatewayTimeout         ErrorKind = "GatewayTimeout"
	KindNotRetryable           ErrorKind = "NotRetryable"
	KindRateLimited            ErrorKind = "RateLimited"
	KindInvalidReason          ErrorKind = "InvalidReason"
	KindNotAuthorized          ErrorKind = "NotAuthorized"
	KindDuplicateDispute       ErrorKind = "DuplicateDispute"
	KindAlreadyResolved        ErrorKind = "AlreadyResolved"
	KindMissingNotes           ErrorKind = "MissingNotes"
	KindReconciliationRequired ErrorKind = "ReconciliationRequired"
	KindInvalidTransition      ErrorKind = "InvalidTransition"
	KindNotFound               ErrorKind = "NotFound"
	KindInternal               ErrorKind = "Internal"
)

// Error is the machine-readable failure surfaced to callers of the engine.
// Two errors are equal under errors.Is when their kinds match, so a sentinel
// such as ErrRateLimited matches any RateLimited error regardless of message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds an Error of the given kind with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind to an underlying cause.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

var (
	ErrInvalidAmount          = &Error{Kind: KindInvalidAmount, Message: "amount must be a positive integer"}
	ErrInvalidIntent          = &Error{Kind: KindInvalidIntent, Message: "invalid settlement intent"}
	ErrInsufficientReserve    = &Error{Kind: KindInsufficientReserve, Message: "insufficient reserve balance"}
	ErrUnsupportedOperator    = &Error{Kind: KindUnsupportedOperator, Message: "unsupported mobile money operator"}
	ErrUnsupportedBank        = &Error{Kind: KindUnsupportedBank, Message: "unsupported bank"}
	ErrInvalidPhoneNumber     = &Error{Kind: KindInvalidPhoneNumber, Message: "invalid phone number"}
	ErrGatewayRejected        = &Error{Kind: KindGatewayRejected, Message: "payment gateway rejected the request"}
	ErrGatewayTimeout         = &Error{Kind: KindGatewayTimeout, Message: "payment gateway timed out"}
	ErrNotRetryable           = &Error{Kind: KindNotRetryable, Message: "settlement is not retryable"}
	ErrRateLimited            = &Error{Kind: KindRateLimited, Message: "too many attempts, try again later"}
	ErrInvalidReason          = &Error{Kind: KindInvalidReason, Message: "dispute reason is too short"}
	ErrNotAuthorized          = &Error{Kind: KindNotAuthorized, Message: "not authorized"}
	ErrDuplicateDispute       = &Error{Kind: KindDuplicateDispute, Message: "a pending dispute already exists for this transaction"}
	ErrAlreadyResolved        = &Error{Kind: KindAlreadyResolved, Message: "dispute is already resolved"}
	ErrMissingNotes           = &Error{Kind: KindMissingNotes, Message: "admin notes are required"}
	ErrReconciliationRequired = &Error{Kind: KindReconciliationRequired, Message: "settlement requires manual reconciliation"}
	ErrInvalidTransition      = &Error{Kind: KindInvalidTransition, Message: "invalid settlement state transition"}
	ErrNotFound               = &Error{Kind: KindNotFound, Message: "not found"}
)
