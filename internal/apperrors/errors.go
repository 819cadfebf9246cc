// internal/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
	"time"

	"github.com/loanbridge/loanbridge-backend/internal/models"
)

// Sentinel errors for the common failure classes. Services wrap these with
// context via fmt.Errorf("...: %w", err); handlers map them to HTTP codes.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrConcurrencyConflict = errors.New("concurrent modification conflict")
)

// InvalidStateError reports an operation attempted against a resource whose
// current state does not allow it.
type InvalidStateError struct {
	Resource string
	State    string
	Msg      string
}

func (e *InvalidStateError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("%s is in state %s which does not allow this operation", e.Resource, e.State)
}

// InvalidTransitionError is returned when a status change violates the
// application transition table.
type InvalidTransitionError struct {
	From models.ApplicationStatus
	To   models.ApplicationStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// OfferExpiredError is returned when a borrower attempts to select an offer
// past its expiry.
type OfferExpiredError struct {
	ExpiredAt time.Time
}

func (e *OfferExpiredError) Error() string {
	return fmt.Sprintf("offer has expired at %s", e.ExpiredAt.Format(time.RFC3339))
}

// InsufficientMarketDataError enforces the market analysis privacy floor.
type InsufficientMarketDataError struct {
	Found    int
	Required int
}

func (e *InsufficientMarketDataError) Error() string {
	return fmt.Sprintf("insufficient market data: only %d banks found, minimum %d required", e.Found, e.Required)
}

// IsRetryable reports whether the caller may safely retry the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
