package tally

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("tally: not found")
	ErrAlreadyExists = errors.New("tally: already exists")
	ErrInvalidInput  = errors.New("tally: invalid input")

	// Aggregate lookups
	ErrBusinessNotFound = errors.New("tally: business not found")
	ErrClientNotFound   = errors.New("tally: client not found")
	ErrTaxTypeNotFound  = errors.New("tally: tax type not found")
	ErrInvoiceNotFound  = errors.New("tally: invoice not found")

	// Invoice state machine errors
	ErrInvalidTransition   = errors.New("tally: invalid status transition")
	ErrStatusConflict      = errors.New("tally: invoice status changed concurrently")
	ErrInvoiceNotEditable  = errors.New("tally: invoice is no longer a draft")
	ErrTemplateNotSendable = errors.New("tally: recurring templates are never sent")
	ErrNotPayable          = errors.New("tally: invoice does not accept payments")

	// Payment errors
	ErrPaymentExceedsBalance = errors.New("tally: payment exceeds balance due")
	ErrDuplicatePayment      = errors.New("tally: payment reference already recorded")

	// Usage errors
	ErrQuotaExceeded = errors.New("tally: monthly send quota exceeded")

	// External collaborators
	ErrGatewayNotConfigured = errors.New("tally: payment gateway not configured")
	ErrNotifyQueueFull      = errors.New("tally: notification queue full")

	// Store errors
	ErrStoreClosed     = errors.New("tally: store is closed")
	ErrMigrationFailed = errors.New("tally: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tally: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "tally: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("tally: %d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e *MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e *MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e *MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// ErrOrNil returns e when it holds errors and nil otherwise.
func (e *MultiError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// QuotaExceededError is returned when a free-tier business has used its
// monthly sends. The invoice it was raised for stays a draft.
type QuotaExceededError struct {
	BusinessID string
	Period     string
	Used       int64
	Limit      int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("tally: monthly send quota exceeded (%d of %d used in %s)", e.Used, e.Limit, e.Period)
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }

// NotFoundError hides whether a resource is missing or owned by someone else.
type NotFoundError struct {
	Resource string
	ID       string
	sentinel error
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("tally: %s not found", e.Resource)
	}
	return fmt.Sprintf("tally: %s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() []error {
	if e.sentinel == nil {
		return []error{ErrNotFound}
	}
	return []error{ErrNotFound, e.sentinel}
}

func notFound(resource, id string) *NotFoundError {
	var sentinel error
	switch resource {
	case "business":
		sentinel = ErrBusinessNotFound
	case "client":
		sentinel = ErrClientNotFound
	case "tax type":
		sentinel = ErrTaxTypeNotFound
	case "invoice":
		sentinel = ErrInvoiceNotFound
	}
	return &NotFoundError{Resource: resource, ID: id, sentinel: sentinel}
}

// ExternalServiceError wraps a failure of the notification, gateway or
// rendering collaborators.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("tally: %s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBusinessNotFound) ||
		errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrTaxTypeNotFound) ||
		errors.Is(err, ErrInvoiceNotFound)
}

// IsValidation returns true for errors the actor can fix by changing input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvoiceNotEditable) ||
		errors.Is(err, ErrTemplateNotSendable) ||
		errors.Is(err, ErrNotPayable) ||
		errors.Is(err, ErrPaymentExceedsBalance)
}

// IsQuotaExceeded returns true if the error is a send quota rejection.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsExternal returns true if a collaborator failed.
func IsExternal(err error) bool {
	var ee *ExternalServiceError
	return errors.As(err, &ee)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStatusConflict) ||
		errors.Is(err, ErrNotifyQueueFull) ||
		IsExternal(err)
}
