package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jerry-enebeli/rwa/internal/apierror"
	"github.com/jerry-enebeli/rwa/internal/request"
)

// Classify maps a failure of a remote call into the platform error kinds.
// Errors that already carry a kind pass through untouched.
//
//   - a deadline or cancellation is ErrTimeout
//   - a {code: INSUFFICIENT_FUNDS} body is ErrInsufficientFunds
//   - 502, 503 and 504 are ErrUnreachable
//   - any other non-2xx answer is ErrActionRejected
//   - anything else never reached the service and is ErrUnreachable
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apierror.Wrap(err, apierror.ErrTimeout, fmt.Sprintf("%s did not complete in time", op))
	}

	var respErr *request.ResponseError
	if errors.As(err, &respErr) {
		msg := respErr.Message
		if msg == "" {
			msg = http.StatusText(respErr.Status)
		}
		switch {
		case respErr.Code == string(apierror.ErrInsufficientFunds):
			return apierror.Wrap(err, apierror.ErrInsufficientFunds, msg)
		case respErr.Status == http.StatusBadGateway,
			respErr.Status == http.StatusServiceUnavailable,
			respErr.Status == http.StatusGatewayTimeout:
			return apierror.Wrap(err, apierror.ErrUnreachable, fmt.Sprintf("%s: %s", op, msg))
		default:
			return apierror.Wrap(err, apierror.ErrActionRejected, msg)
		}
	}

	return apierror.Wrap(err, apierror.ErrUnreachable, fmt.Sprintf("%s: %v", op, err))
}

// IsTransient reports whether retrying err may succeed.
func IsTransient(err error) bool {
	switch apierror.CodeOf(err) {
	case apierror.ErrUnreachable, apierror.ErrTimeout:
		return true
	}
	return false
}
