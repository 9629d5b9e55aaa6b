package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mcpbox/internal/utils/platformerrors"
)

// ErrorResponse is the JSON error body for the admin and internal planes.
// ErrorCode carries the stable code from PlatformError so an operator can
// find the exact emission point.
type ErrorResponse struct {
	Error         string `json:"error"`
	ErrorCode     string `json:"error_code,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	ErrorInstance error  `json:"-"`
}

// HandleError maps domain errors onto HTTP responses. Platform errors carry
// their own message and status; anything else becomes an opaque 500.
func HandleError(reqCtx *gin.Context, err error, message string) {
	var domainErr *platformerrors.PlatformError
	if errors.As(err, &domainErr) {
		statusCode := platformerrors.ErrorTypeToHTTPStatus(domainErr.GetErrorType())

		errorMessage := domainErr.Message
		if errorMessage == "" {
			errorMessage = message
		}

		errResp := ErrorResponse{
			Error:         errorMessage,
			ErrorCode:     domainErr.GetCode(),
			RequestID:     domainErr.GetRequestID(),
			ErrorInstance: domainErr,
		}

		reqCtx.AbortWithStatusJSON(statusCode, errResp)
		return
	}
	// Non-platform errors
	errResp := ErrorResponse{
		Error:         message,
		ErrorInstance: err,
	}
	reqCtx.AbortWithStatusJSON(http.StatusInternalServerError, errResp)
}

// HandleValidationError maps a request binding failure onto a 400 response
// carrying the validator's message.
func HandleValidationError(reqCtx *gin.Context, err error) {
	reqCtx.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error:         err.Error(),
		ErrorInstance: err,
	})
}

// HandleNewError creates a new typed error at the route layer and handles it
func HandleNewError(reqCtx *gin.Context, errorType platformerrors.ErrorType, message string, code string) {
	ctx := reqCtx.Request.Context()
	err := platformerrors.NewError(ctx, platformerrors.LayerRoute, errorType, message, nil, code)

	statusCode := platformerrors.ErrorTypeToHTTPStatus(err.GetErrorType())

	errResp := ErrorResponse{
		Error:         message,
		ErrorCode:     err.GetCode(),
		RequestID:     err.GetRequestID(),
		ErrorInstance: err,
	}

	reqCtx.AbortWithStatusJSON(statusCode, errResp)
}
