package errors

import (
	"errors"
	"fmt"
)

var (
	// Payment record errors
	ErrPaymentNotFound         = errors.New("payment does not exist")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidStateTransition  = errors.New("invalid state transition")
	ErrPaymentAlreadyProcessed = errors.New("payment already processed")
	ErrDuplicateReference      = errors.New("duplicate payment reference")
	ErrReferenceExhausted      = errors.New("could not generate a unique reference")

	// Processor errors
	ErrUnknownProcessor        = errors.New("unknown payment processor")
	ErrMissingCredential       = errors.New("missing processor credential")
	ErrGatewayUnavailable      = errors.New("cannot process payment at the moment")
	ErrVerificationFailed      = errors.New("unable to verify payment")
	ErrEventVerificationFailed = errors.New("event verification failed")
	ErrMalformedEvent          = errors.New("malformed webhook event")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
