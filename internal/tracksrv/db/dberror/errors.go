// Package dberror defines the error taxonomy of the session store layer.
package dberror

import (
	"net/http"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/apperrors"
)

var (
	ErrStore apperrors.Error = apperrors.New("store error").SetStatusCode(http.StatusInternalServerError)

	// ErrDatabase marks transient database failures (lock timeout, lost
	// connection). Callers may retry operations failing with this error.
	ErrDatabase apperrors.Error = ErrStore.New("database error").SetStatusCode(http.StatusInternalServerError)

	ErrNotFound      apperrors.Error = ErrStore.New("not found").SetStatusCode(http.StatusNotFound)
	ErrAlreadyExists apperrors.Error = ErrStore.New("already exists").SetStatusCode(http.StatusConflict)

	// ErrStaleStatus is returned when a compare-and-swap update observes a
	// status different from the one the caller expected.
	ErrStaleStatus apperrors.Error = ErrStore.New("session status changed concurrently").SetStatusCode(http.StatusConflict)

	ErrInvalidInput apperrors.Error = ErrStore.New("invalid input").SetStatusCode(http.StatusBadRequest)
)
