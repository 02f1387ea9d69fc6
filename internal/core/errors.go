package core

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the ledger wraps exactly one of these.
var (
	ErrValidation  = errors.New("validation error")
	ErrForbidden   = errors.New("forbidden")
	ErrNotFound    = errors.New("not found")
	ErrConsistency = errors.New("ledger consistency violation")
)

var (
	ErrInvalidAmount          = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrInvalidKind            = fmt.Errorf("%w: unknown transaction kind", ErrValidation)
	ErrInvalidAccountKind     = fmt.Errorf("%w: unknown account kind", ErrValidation)
	ErrEmptyDescription       = fmt.Errorf("%w: empty description", ErrValidation)
	ErrDescriptionTooLong     = fmt.Errorf("%w: description too long (max %d characters)", ErrValidation, maxDescriptionLen)
	ErrEmptyName              = fmt.Errorf("%w: empty name", ErrValidation)
	ErrEmptyOwner             = fmt.Errorf("%w: empty owner", ErrValidation)
	ErrMissingAccount         = fmt.Errorf("%w: account is required", ErrValidation)
	ErrMissingTransaction     = fmt.Errorf("%w: transaction id is required", ErrValidation)
	ErrMissingDestination     = fmt.Errorf("%w: transfer requires a destination account", ErrValidation)
	ErrSameAccount            = fmt.Errorf("%w: transfer destination must differ from source", ErrValidation)
	ErrUnexpectedDestination  = fmt.Errorf("%w: destination account is only allowed on transfers", ErrValidation)
	ErrInvalidTimestamp       = fmt.Errorf("%w: invalid timestamp", ErrValidation)
	ErrNegativeLimit          = fmt.Errorf("%w: limit cannot be negative", ErrValidation)
	ErrAccountHasTransactions = fmt.Errorf("%w: account still has transactions", ErrValidation)
)

// Error type labels used in structured logs.
const (
	ErrorTypeValidation  = "validation_error"
	ErrorTypeAuth        = "auth_error"
	ErrorTypeNotFound    = "not_found_error"
	ErrorTypeConsistency = "consistency_error"
	ErrorTypeInternal    = "internal_error"
)

// ErrorType classifies err for logging.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return ErrorTypeValidation
	case errors.Is(err, ErrForbidden):
		return ErrorTypeAuth
	case errors.Is(err, ErrNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, ErrConsistency):
		return ErrorTypeConsistency
	default:
		return ErrorTypeInternal
	}
}
