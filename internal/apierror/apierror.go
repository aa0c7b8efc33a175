package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrInsufficientFunds   ErrorCode = "INSUFFICIENT_FUNDS"
	ErrActionRejected      ErrorCode = "ACTION_REJECTED"
	ErrCompensationFailed  ErrorCode = "COMPENSATION_FAILED"
	ErrUnsupportedCurrency ErrorCode = "UNSUPPORTED_CURRENCY"
	ErrTimeout             ErrorCode = "TIMEOUT"
	ErrUnreachable         ErrorCode = "UNREACHABLE"
	ErrStaleView           ErrorCode = "STALE_VIEW"
	ErrActionInFlight      ErrorCode = "ACTION_IN_FLIGHT"
	ErrNotFound            ErrorCode = "NOT_FOUND"
	ErrInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrInternalServer      ErrorCode = "INTERNAL_SERVER_ERROR"
)

// APIError is the structured error returned to callers of every action:
// a kind, a human readable message and optional details.
type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`

	cause error
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e APIError) Unwrap() error {
	return e.cause
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	entry := logrus.WithField("code", code)
	if details != nil {
		entry = entry.WithField("details", details)
	}
	if code == ErrCompensationFailed {
		entry.Error(message)
	} else {
		entry.Debug(message)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Wrap builds an APIError that keeps cause reachable through errors.Unwrap.
func Wrap(cause error, code ErrorCode, message string) APIError {
	e := NewAPIError(code, message, nil)
	e.cause = cause
	return e
}

// CodeOf returns the code of the first APIError in err's chain. Errors that
// carry no code are reported as ErrInternalServer.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrInternalServer
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// As returns the APIError carried by err, classifying uncoded errors as
// fallback with err's text as the message.
func As(err error, fallback ErrorCode) APIError {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Wrap(err, fallback, err.Error())
}

func MapErrorToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrActionInFlight:
		return http.StatusConflict
	case ErrInvalidInput, ErrUnsupportedCurrency:
		return http.StatusBadRequest
	case ErrInsufficientFunds:
		return http.StatusPaymentRequired
	case ErrActionRejected:
		return http.StatusUnprocessableEntity
	case ErrTimeout:
		return http.StatusGatewayTimeout
	case ErrUnreachable, ErrStaleView:
		return http.StatusBadGateway
	case ErrCompensationFailed, ErrInternalServer:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
