package platformerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorGeneratesCodeWhenUnset(t *testing.T) {
	anon := NewError(context.Background(), LayerDomain, ErrorTypeInternal, "boom", nil, "")
	other := NewError(context.Background(), LayerDomain, ErrorTypeInternal, "boom", nil, "")

	assert.NotEmpty(t, anon.GetCode())
	assert.NotEqual(t, anon.GetCode(), other.GetCode())

	coded := NewError(context.Background(), LayerDomain, ErrorTypeValidation, "bad input", nil, "tool-001")
	assert.Equal(t, "tool-001", coded.GetCode())
}

func TestNewErrorCarriesRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), RequestIDContextKey{}, "req-42")

	withID := NewError(ctx, LayerHandler, ErrorTypeNotFound, "missing", nil, "h-001")
	assert.Equal(t, "req-42", withID.GetRequestID())

	withoutID := NewError(context.Background(), LayerHandler, ErrorTypeNotFound, "missing", nil, "h-001")
	assert.Empty(t, withoutID.GetRequestID())
}

func TestAsErrorPreservesTypeAndCode(t *testing.T) {
	ctx := context.Background()
	inner := NewError(ctx, LayerRepository, ErrorTypeConflict, "duplicate key", nil, "repo-007")

	wrapped := AsError(ctx, LayerDomain, fmt.Errorf("saving: %w", inner), "save failed")

	require.NotNil(t, wrapped)
	assert.Equal(t, ErrorTypeConflict, wrapped.Type)
	assert.Equal(t, "repo-007", wrapped.Code)
	assert.Equal(t, LayerDomain, wrapped.Layer)
	assert.True(t, IsErrorType(wrapped, ErrorTypeConflict))
	assert.True(t, errors.Is(wrapped, inner))
}

func TestAsErrorNilAndForeignErrors(t *testing.T) {
	assert.Nil(t, AsError(context.Background(), LayerDomain, nil, "nothing"))

	wrapped := AsError(context.Background(), LayerDomain, errors.New("connection refused"), "query failed")
	require.NotNil(t, wrapped)
	assert.Equal(t, ErrorTypeInternal, wrapped.Type)
	assert.NotEmpty(t, wrapped.Code)
}

func TestIsErrorTypeOnForeignError(t *testing.T) {
	assert.False(t, IsErrorType(errors.New("plain"), ErrorTypeNotFound))
	assert.False(t, IsErrorType(nil, ErrorTypeNotFound))
}

func TestErrorTypeToHTTPStatus(t *testing.T) {
	cases := map[ErrorType]int{
		ErrorTypeNotFound:      http.StatusNotFound,
		ErrorTypeValidation:    http.StatusBadRequest,
		ErrorTypeConflict:      http.StatusConflict,
		ErrorTypeUnauthorized:  http.StatusUnauthorized,
		ErrorTypeForbidden:     http.StatusForbidden,
		ErrorTypeRateLimited:   http.StatusTooManyRequests,
		ErrorTypeUnavailable:   http.StatusServiceUnavailable,
		ErrorTypeDatabaseError: http.StatusInternalServerError,
		ErrorTypeExternal:      http.StatusBadGateway,
		ErrorTypeInternal:      http.StatusInternalServerError,
		ErrorType("unmapped"):  http.StatusInternalServerError,
	}
	for errorType, want := range cases {
		assert.Equal(t, want, ErrorTypeToHTTPStatus(errorType), string(errorType))
	}
}
