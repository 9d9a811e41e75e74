package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/sirupsen/logrus"
)

// Code classifies an AppError so callers can branch without parsing messages.
type Code string

const (
	CodeBadRequest           Code = "BAD_REQUEST"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeNotFound             Code = "NOT_FOUND"
	CodeTooManyRequests      Code = "TOO_MANY_REQUESTS"
	CodeInternal             Code = "INTERNAL"
	CodeValidationFailed     Code = "VALIDATION_FAILED"
	CodeInvalidTransition    Code = "INVALID_TRANSITION"
	CodePolicyViolation      Code = "POLICY_VIOLATION"
	CodeConnectorUnavailable Code = "CONNECTOR_UNAVAILABLE"
	CodeStorageFailure       Code = "STORAGE_FAILURE"
)

type AppError struct {
	StatusCode int
	Code       Code
	Message    string
	Reasons    []string
	Err        error
}

func (e *AppError) Error() string {
	if len(e.Reasons) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Reasons, "; ")
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(statusCode int, message string) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       codeForStatus(statusCode),
		Message:    message,
	}
}

func NewBadRequestError(message string) *AppError {
	return NewAppError(http.StatusBadRequest, message)
}

func NewUnauthorizedError(message ...string) *AppError {
	if len(message) > 0 {
		return NewAppError(http.StatusUnauthorized, message[0])
	}
	return NewAppError(http.StatusUnauthorized, "Unauthorized")
}

func NewNotFoundError(message string) *AppError {
	return NewAppError(http.StatusNotFound, message)
}

func NewTooManyRequestsError(message string, limit int, reset int64) *AppError {
	return &AppError{
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeTooManyRequests,
		Message:    message,
		Reasons:    []string{fmt.Sprintf("limit %d per window, resets at %d", limit, reset)},
	}
}

func NewInternalServerError(originalError error, message string) *AppError {
	logrus.Errorf("[%s] %s", reflect.TypeOf(originalError).String(), originalError)
	return &AppError{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    message,
		Err:        originalError,
	}
}

// NewValidationFailed reports user-fixable problems with a request.
func NewValidationFailed(reasons []string) *AppError {
	return &AppError{
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeValidationFailed,
		Message:    "Validation failed",
		Reasons:    reasons,
	}
}

// NewInvalidTransition reports a guard that was not satisfied: wrong state,
// wrong actor or an out-of-order approval.
func NewInvalidTransition(message string) *AppError {
	return &AppError{
		StatusCode: http.StatusConflict,
		Code:       CodeInvalidTransition,
		Message:    message,
	}
}

func NewPolicyViolation(reasons []string) *AppError {
	return &AppError{
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodePolicyViolation,
		Message:    "Policy violation",
		Reasons:    reasons,
	}
}

// NewConnectorUnavailable is transient; only the dispatch call itself may be retried.
func NewConnectorUnavailable(message string) *AppError {
	return &AppError{
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeConnectorUnavailable,
		Message:    message,
	}
}

func NewStorageFailure(originalError error, message string) *AppError {
	logrus.Errorf("[storage] %s: %v", message, originalError)
	return &AppError{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeStorageFailure,
		Message:    message,
		Err:        originalError,
	}
}

// CodeOf returns the Code of the first AppError in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func codeForStatus(statusCode int) Code {
	switch statusCode {
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusTooManyRequests:
		return CodeTooManyRequests
	case http.StatusConflict:
		return CodeInvalidTransition
	default:
		return CodeInternal
	}
}
