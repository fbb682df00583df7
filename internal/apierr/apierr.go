// Package apierr maps the gateway's error taxonomy onto
// github.com/gravitational/trace. Handlers return trace-wrapped errors;
// this package's ToHTTPStatus classifies them into the documented
// status codes without every call site needing to know about HTTP.
package apierr

import (
	"fmt"
	"net/http"

	"github.com/gravitational/trace"
)

// unauthorized and serviceUnavailable and payloadTooLarge are the taxonomy
// kinds trace has no built-in constructor for. Each embeds trace.Traces so
// it still records a stack trace and participates in trace.Wrap the same
// way trace's own built-in kinds do (see trace.Error / OrigError).
type unauthorized struct {
	trace.Traces
	Message string
}

func (e *unauthorized) Error() string    { return e.Message }
func (e *unauthorized) OrigError() error { return e }

// Unauthorized builds the 401 the mediator returns when the externally
// verified token is missing, expired, or rejected.
func Unauthorized(format string, args ...any) error {
	return trace.Wrap(&unauthorized{Message: fmt.Sprintf(format, args...)})
}

// IsUnauthorized reports whether err unwraps to an Unauthorized.
func IsUnauthorized(err error) bool {
	var target *unauthorized
	return asKind(err, &target)
}

type serviceUnavailable struct {
	trace.Traces
	Message string
}

func (e *serviceUnavailable) Error() string    { return e.Message }
func (e *serviceUnavailable) OrigError() error { return e }

// ServiceUnavailable builds the 503 the health gate returns when a cluster
// service is flagged unhealthy. The message is the prober's cached
// diagnostic for that service.
func ServiceUnavailable(format string, args ...any) error {
	return trace.Wrap(&serviceUnavailable{Message: fmt.Sprintf(format, args...)})
}

// IsServiceUnavailable reports whether err unwraps to a ServiceUnavailable.
func IsServiceUnavailable(err error) bool {
	var target *serviceUnavailable
	return asKind(err, &target)
}

type payloadTooLarge struct {
	trace.Traces
	Message string
}

func (e *payloadTooLarge) Error() string    { return e.Message }
func (e *payloadTooLarge) OrigError() error { return e }

// PayloadTooLarge builds the 413 a read/write endpoint returns when a
// request body or `size` query parameter exceeds max_ops_file_size.
func PayloadTooLarge(format string, args ...any) error {
	return trace.Wrap(&payloadTooLarge{Message: fmt.Sprintf(format, args...)})
}

// IsPayloadTooLarge reports whether err unwraps to a PayloadTooLarge.
func IsPayloadTooLarge(err error) bool {
	var target *payloadTooLarge
	return asKind(err, &target)
}

// AccountRequired builds the 400 returned when a cluster's scheduler
// directives reference {account} but the caller's request didn't supply
// one.
func AccountRequired() error {
	return trace.BadParameter("account parameter is required on this system")
}

// asKind walks err's OrigError/Unwrap chain looking for a concrete type T.
func asKind[T error](err error, target *T) bool {
	for err != nil {
		if t, ok := err.(T); ok {
			*target = t
			return true
		}
		switch u := err.(type) {
		case interface{ OrigError() error }:
			orig := u.OrigError()
			if orig == err {
				return false
			}
			err = orig
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			return false
		}
	}
	return false
}

// ToHTTPStatus maps an error returned by a mediator operation to its HTTP
// status code. Unrecognized errors map to 500, matching the taxonomy's
// Internal kind.
func ToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsUnauthorized(err):
		return http.StatusUnauthorized
	case IsServiceUnavailable(err):
		return http.StatusServiceUnavailable
	case IsPayloadTooLarge(err):
		return http.StatusRequestEntityTooLarge
	case trace.IsNotFound(err):
		return http.StatusNotFound
	case trace.IsAccessDenied(err):
		return http.StatusForbidden
	case trace.IsBadParameter(err), trace.IsCompareFailed(err):
		return http.StatusBadRequest
	case trace.IsNotImplemented(err):
		return http.StatusNotImplemented
	case trace.IsConnectionProblem(err), trace.IsLimitExceeded(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
