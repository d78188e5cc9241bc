package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrApplication is matched by every caller-recoverable error below.
	ErrApplication = errors.New("application error")
	// ErrNotFound is matched by InstanceNotFoundError.
	ErrNotFound = errors.New("not found")
)

// ApplicationError is a business rule violation that the caller can fix.
type ApplicationError struct {
	Message string
}

func NewApplicationError(format string, args ...any) *ApplicationError {
	return &ApplicationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ApplicationError) Error() string { return e.Message }

func (e *ApplicationError) Is(target error) bool { return target == ErrApplication }

// StockError reports a reservation larger than the product's current stock.
type StockError struct {
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("Insufficient stock for product '%s'. Requested: %d, Available: %d.",
		e.ProductName, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool { return target == ErrApplication }

type EmptyCartError struct {
	UserID string
}

func (e *EmptyCartError) Error() string {
	return fmt.Sprintf("Cart for user ID %s is empty. Cannot place an order.", e.UserID)
}

func (e *EmptyCartError) Is(target error) bool { return target == ErrApplication }

type AddressOwnershipError struct {
	AddressID int64
	UserID    string
}

func (e *AddressOwnershipError) Error() string {
	return fmt.Sprintf("Address with ID %d does not belong to user ID %s. Please provide a valid address.",
		e.AddressID, e.UserID)
}

func (e *AddressOwnershipError) Is(target error) bool { return target == ErrApplication }

// StatusError covers unknown status names (Current empty) and transitions the
// status table does not allow.
type StatusError struct {
	Current   string
	Requested string
}

func (e *StatusError) Error() string {
	if e.Current == "" {
		return fmt.Sprintf("Invalid status: %s.", e.Requested)
	}
	return fmt.Sprintf("Cannot change status from %s to %s.", e.Current, e.Requested)
}

func (e *StatusError) Is(target error) bool { return target == ErrApplication }

type InstanceNotFoundError struct {
	Entity string
	ID     any
}

func NewNotFound(entity string, id any) *InstanceNotFoundError {
	return &InstanceNotFoundError{Entity: entity, ID: id}
}

func (e *InstanceNotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %v not found.", e.Entity, e.ID)
}

func (e *InstanceNotFoundError) Is(target error) bool {
	return target == ErrNotFound || target == ErrApplication
}

// ValidationError rejects a malformed input value such as an unknown sort field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrApplication }
