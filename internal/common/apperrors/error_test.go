package apperrors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	ErrBaseErr := New("base error")
	assert.Equal(t, "base error", ErrBaseErr.Error())
	assert.Equal(t, "msg", ErrBaseErr.New("msg").Error())
	assert.ErrorIs(t, ErrBaseErr, ErrBaseErr)

	ErrFirstLevel := ErrBaseErr.New("first level")
	assert.Equal(t, "first level", ErrFirstLevel.Error())
	assert.ErrorIs(t, ErrFirstLevel, ErrBaseErr)

	ErrAnotherErr := New("another error")
	ErrAnotherErrMsg := ErrAnotherErr.Msg("another error msg")
	ErrWrappedErr := ErrFirstLevel.Err(ErrAnotherErrMsg)
	assert.Equal(t, "first level", ErrWrappedErr.Error())
	assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
	assert.ErrorIs(t, ErrWrappedErr, ErrFirstLevel)
	assert.ErrorIs(t, ErrWrappedErr, ErrAnotherErr)
	assert.ErrorIs(t, ErrWrappedErr, ErrAnotherErrMsg)

	err := errors.New("error")
	ErrWrappedErr = ErrFirstLevel.Err(err)
	assert.Equal(t, "first level", ErrWrappedErr.Error())
	assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
	assert.ErrorIs(t, ErrWrappedErr, err)

	ErrWrappedErr = ErrFirstLevel.MsgErr("msg", err)
	assert.Equal(t, "msg", ErrWrappedErr.Error())
	assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
	assert.ErrorIs(t, ErrWrappedErr, err)

	ErrAnotherGoErr := fmt.Errorf("another error")
	ErrYetAnotherGoErr := fmt.Errorf("yet another error")
	ErrWrappedGoErr := ErrFirstLevel.Err(ErrAnotherGoErr, ErrYetAnotherGoErr)
	assert.Equal(t, "first level", ErrWrappedGoErr.Error())
	assert.ErrorIs(t, ErrWrappedGoErr, ErrBaseErr)
	assert.ErrorIs(t, ErrWrappedGoErr, ErrAnotherGoErr)
	assert.ErrorIs(t, ErrWrappedGoErr, ErrYetAnotherGoErr)
}

func TestErrorStatusCode(t *testing.T) {
	base := New("store error").SetStatusCode(http.StatusInternalServerError)
	derived := base.New("not found").SetStatusCode(http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, derived.StatusCode())
	assert.Equal(t, http.StatusNotFound, derived.Msg("session not found").StatusCode())
	assert.ErrorIs(t, derived.Msg("session not found"), base)
}

func TestErrorAllExpansion(t *testing.T) {
	base := New("validation failed").SetExpandError(true)
	wrapped := base.Err(fmt.Errorf("activity too short"))
	assert.Equal(t, "validation failed", wrapped.Error())
	assert.Contains(t, wrapped.SetExpandError(true).ErrorAll(), "activity too short")
}
