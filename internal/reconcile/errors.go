package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrQuantityFloor is returned when a quantity below 1 is requested
	ErrQuantityFloor = errors.New("quantity must be at least 1")
	// ErrNotInCart is returned when changing a line that does not exist
	ErrNotInCart = errors.New("product is not in the cart")
	// ErrUnknownProduct is returned when adding a product the catalog does not know
	ErrUnknownProduct = errors.New("unknown product")
	// ErrAlreadyAttached is returned by Attach on a remote-backed reconciler
	ErrAlreadyAttached = errors.New("reconciler already has an identity")
)

// ValidationError is a rejected input, reported before any remote call
type ValidationError struct {
	Field string
	Value any
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
