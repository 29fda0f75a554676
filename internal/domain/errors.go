package domain

import (
	"errors"
	"fmt"
)

// Domain errors. Callers branch on them with errors.Is / errors.As.
var (
	// ErrNotFound is returned when no tenant-visible batch or line item matches a reference
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a transition is attempted on a batch that is not pending
	ErrInvalidState = errors.New("invalid state")

	// ErrEmptyBatch is returned when a batch view is built from zero line items
	ErrEmptyBatch = errors.New("batch has no line items")

	// ErrInconsistentBatch is returned when members of one batch disagree on status
	ErrInconsistentBatch = errors.New("batch members have differing statuses")

	// ErrValidation is returned for malformed input
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientStock is returned when the warehouse cannot reserve the requested quantity
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrBatchLocked is returned when another replica holds the transition lock of a batch
	ErrBatchLocked = errors.New("batch is locked by another operation")
)

// InvalidStateError explains why a transition was refused
type InvalidStateError struct {
	BatchID       string
	CurrentStatus LineItemStatus
	Transition    Transition
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s batch %s: status is %s", e.Transition, e.BatchID, e.CurrentStatus)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// ValidationError names the offending field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a ValidationError for field
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStockError reports a reservation that could not be satisfied
type InsufficientStockError struct {
	WarehouseID string
	ProductID   string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("warehouse %s has %d of product %s available, %d requested",
		e.WarehouseID, e.Available, e.ProductID, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
