// Package gateway wires the mediator surfaces onto the HTTP API: httprouter
// for path routing, a MakeHandler adapter in the
// `func(w, r, p) (interface{}, error)` style, JSON in/out, and
// apierr.ToHTTPStatus for uniform error shaping.
package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/eth-cscs/firecrest-v2/internal/apierr"
)

var log = logrus.WithField(trace.Component, "gateway")

// HandlerFunc is the shape every route handler in this package implements:
// return the value to JSON-encode, or an error apierr/trace can classify.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error)

// Response lets a handler pick a success status other than the 200/204
// MakeHandler defaults to (e.g. 201 Created on job submit).
type Response struct {
	Status int
	Body   any
}

type rawSentinel struct{}

// Raw is returned by handlers that stream their own response body (view,
// download) directly to w; MakeHandler performs no further writes.
var Raw any = rawSentinel{}

// MakeHandler adapts a HandlerFunc into an httprouter.Handle: it writes the
// returned value as JSON on success, or an {error:"..."} body with the
// status apierr.ToHTTPStatus maps the error to.
func MakeHandler(fn HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		result, err := fn(w, r, p)
		if err != nil {
			writeError(w, err)
			return
		}
		switch v := result.(type) {
		case rawSentinel:
			return
		case Response:
			writeJSON(w, v.Status, v.Body)
		case nil:
			w.WriteHeader(http.StatusNoContent)
		default:
			writeJSON(w, http.StatusOK, v)
		}
	}
}

// writeJSON writes v as a JSON body with the given status code; every JSON
// response, success or error, goes through it.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("failed to encode response body")
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := apierr.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error(trace.DebugReport(err))
	}
	writeJSON(w, status, errorBody{Error: trace.UserMessage(err)})
}
