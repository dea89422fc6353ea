package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pageza/alchemorsel-v2/recommender/internal/service"
)

// Error codes returned in ErrorResponse.Code
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeNoCandidate        = "NO_CANDIDATE"
	CodeBudgetExceeded     = "BUDGET_EXCEEDED"
	CodeInsufficientData   = "INSUFFICIENT_DATA"
	CodeModelNotFound      = "MODEL_NOT_FOUND"
	CodeTrainingInProgress = "TRAINING_IN_PROGRESS"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeRequestTimeout     = "REQUEST_TIMEOUT"
	CodeInternal           = "INTERNAL_ERROR"
	CodeModelUnavailable   = "MODEL_UNAVAILABLE"
	CodeGatewayTimeout     = "GATEWAY_TIMEOUT"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// CustomError pairs an error with its response code and HTTP status
type CustomError struct {
	Code    string
	Message string
	Field   string
	Status  int
	Err     error
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *CustomError) Unwrap() error { return e.Err }

// NewError creates a CustomError
func NewError(code, message string, status int, err error) *CustomError {
	return &CustomError{Code: code, Message: message, Status: status, Err: err}
}

// Response is the body sent for e
func (e *CustomError) Response() ErrorResponse {
	return ErrorResponse{Code: e.Code, Message: e.Message, Field: e.Field}
}

var sentinels = []struct {
	err    error
	code   string
	status int
}{
	{service.ErrNoCandidate, CodeNoCandidate, http.StatusNotFound},
	{service.ErrBudgetExceeded, CodeBudgetExceeded, http.StatusUnprocessableEntity},
	{service.ErrInsufficientData, CodeInsufficientData, http.StatusUnprocessableEntity},
	{service.ErrModelNotFound, CodeModelNotFound, http.StatusNotFound},
	{service.ErrTrainingInProgress, CodeTrainingInProgress, http.StatusConflict},
	{service.ErrModelUnavailable, CodeModelUnavailable, http.StatusServiceUnavailable},
}

// Resolve maps an error onto its response. Errors that carry no client
// meaning get a generic 500 so internal details never leak.
func Resolve(err error) *CustomError {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce
	}

	var verr service.ValidationError
	if errors.As(err, &verr) {
		e := NewError(CodeInvalidRequest, err.Error(), http.StatusBadRequest, err)
		e.Field = verr.Field
		return e
	}

	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return NewError(s.code, err.Error(), s.status, err)
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(CodeGatewayTimeout, "the operation timed out", http.StatusGatewayTimeout, err)
	case errors.Is(err, context.Canceled):
		return NewError(CodeRequestTimeout, "the request was cancelled", http.StatusRequestTimeout, err)
	}
	return NewError(CodeInternal, "internal server error", http.StatusInternalServerError, err)
}

// ErrorHandler renders the last error a handler attached with c.Error,
// unless the handler already wrote a response
func ErrorHandler(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}
		e := Resolve(last.Err)
		if e.Status >= http.StatusInternalServerError {
			log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(last.Err))
		}
		c.AbortWithStatusJSON(e.Status, e.Response())
	}
}
