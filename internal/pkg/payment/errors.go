package payment

import (
	"errors"
	"fmt"
)

// ErrOrderNotFound is returned when no order matches the given public id.
var ErrOrderNotFound = errors.New("payment order not found")

// ValidationError reports malformed or missing input. It is surfaced to the
// caller synchronously and never produces side effects.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProviderError wraps a failed interaction with the payment provider. The
// local order stays pending; reconciliation is safe to retry later.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a local storage failure. Failures before the atomic
// transition leave the order pending and retriable; failures inside it roll
// the whole transaction back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
