package utils

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

// NotFoundError wraps ErrorRecordNotFound with the resource that was looked up,
// so callers can still match with errors.Is(err, ErrorRecordNotFound).
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

func (e *NotFoundError) Unwrap() error {
	return ErrorRecordNotFound
}

func NewNotFoundError(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}

// InsufficientStockError rejects an outgoing movement that would drive a
// balance negative. Carries both sides so callers can show the shortfall.
type InsufficientStockError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: available %s, requested %s", e.Available, e.Requested)
}

// CapacityExceededError rejects an incoming tank movement that would push the
// fill level above the tank's capacity.
type CapacityExceededError struct {
	Kapasitas  decimal.Decimal
	IsiSaatIni decimal.Decimal
	Requested  decimal.Decimal
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("tank capacity exceeded: capacity %s, current fill %s, requested %s", e.Kapasitas, e.IsiSaatIni, e.Requested)
}

// DuplicateNameError is returned when a unique-per-company field collides.
type DuplicateNameError struct {
	Field string
	Value string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate %s: %s", e.Field, e.Value)
}

// InvalidStateTransitionError is returned when a document status change is
// not permitted from its current status.
type InvalidStateTransitionError struct {
	Document string
	From     string
	To       string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s cannot transition from %s to %s", e.Document, e.From, e.To)
}

// ValidationError is any malformed-input failure (zero/negative quantity,
// missing required reference, unknown enum value).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
