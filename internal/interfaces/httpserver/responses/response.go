package responses

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ruvnet/fine-tune-mcp/utils/platformerrors"
)

type ErrorResponse struct {
	Code          string `json:"code"` // UUID from PlatformError
	Error         string `json:"error"`
	ErrorInstance error  `json:"-"`
	RequestID     string `json:"request_id,omitempty"`
}

// HandleNewError creates a new typed error at the route layer and handles it.
// The uuid parameter should be provided from the route for error tracking.
func HandleNewError(reqCtx *gin.Context, errorType platformerrors.ErrorType, message string, uuid string) {
	ctx := reqCtx.Request.Context()
	err := platformerrors.NewError(ctx, platformerrors.LayerRoute, errorType, message, nil, uuid)

	statusCode := platformerrors.ErrorTypeToHTTPStatus(err.GetErrorType())

	reqCtx.AbortWithStatusJSON(statusCode, ErrorResponse{
		Code:          err.GetUUID(),
		Error:         message,
		ErrorInstance: err,
		RequestID:     err.GetRequestID(),
	})
}

// NewInternalServerError reports a 500 with the given response payload.
func NewInternalServerError(reqCtx *gin.Context, errResp ErrorResponse) {
	if errResp.ErrorInstance != nil {
		reqCtx.Error(errResp.ErrorInstance)
	}
	reqCtx.AbortWithStatusJSON(http.StatusInternalServerError, errResp)
}
