package workflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for matching with errors.Is. The structured error types
// below unwrap to these.
var (
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrPaymentNotConfirmed    = errors.New("payment not completed")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrUnauthorizedBackward   = errors.New("backward move not authorized")
	ErrConcurrentModification = errors.New("order status changed concurrently")
	ErrUnknownStatus          = errors.New("unknown status")
)

// InvalidTransitionError reports a rejected edge with the attempted from/to
// statuses and a human-readable reason.
type InvalidTransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s: %s", e.From.Code, e.To.Code, e.Reason)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// PaymentNotConfirmedError is raised when a wallet-gated edge is attempted
// before the wallet payment completes. Distinct from InvalidTransitionError so
// callers can prompt for payment instead of rejecting outright.
type PaymentNotConfirmedError struct {
	From Status
	To   Status
}

func (e *PaymentNotConfirmedError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s: payment not completed", e.From.Code, e.To.Code)
}

func (e *PaymentNotConfirmedError) Unwrap() error { return ErrPaymentNotConfirmed }

// InsufficientStockError aborts a confirmation when any line item exceeds
// current stock. No partial deduction happens.
type InsufficientStockError struct {
	ProductID string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }
