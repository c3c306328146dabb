package session

import (
	"net/http"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/apperrors"
)

var (
	ErrSessionError apperrors.Error = apperrors.New("session error").SetStatusCode(http.StatusInternalServerError)

	// ErrInvalidTransition is returned when an operation does not apply to
	// the session's current lifecycle state.
	ErrInvalidTransition apperrors.Error = ErrSessionError.New("invalid state transition").SetStatusCode(http.StatusConflict)

	ErrNotFound         apperrors.Error = ErrSessionError.New("session not found").SetStatusCode(http.StatusNotFound)
	ErrValidationFailed apperrors.Error = ErrSessionError.New("validation failed").SetStatusCode(http.StatusBadRequest)

	// ErrBillingViolation covers attempts to bend the billing gate: invoicing
	// unapproved work, mutating invoiced sessions.
	ErrBillingViolation apperrors.Error = ErrSessionError.New("billing invariant violation").SetStatusCode(http.StatusConflict)

	// ErrStoreUnavailable is returned once transient store failures exhaust
	// their retry budget.
	ErrStoreUnavailable apperrors.Error = ErrSessionError.New("session store unavailable").SetStatusCode(http.StatusServiceUnavailable)
)
