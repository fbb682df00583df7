// Package slurmrest implements scheduler.Client against a SLURM REST API
// endpoint. One *http.Client is shared process-wide with a bounded
// per-host connection pool: a single long-lived client amortizes TLS/TCP
// setup far better than one per request, and the pool bounds host
// concurrency to a sane default.
package slurmrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gravitational/trace"
)

// DefaultMaxConnsPerHost bounds the shared transport's per-host connection
// pool.
const DefaultMaxConnsPerHost = 100

// Client implements scheduler.Client against SLURM's REST API.
type Client struct {
	apiURL     string
	apiVersion string
	username   string
	token      string
	httpClient *http.Client
}

// sharedTransport is the process-wide transport every Client instance
// reuses, so N per-request Clients (one per mediator call, carrying that
// call's user token) don't each open their own connection pool.
var sharedTransport = &http.Transport{
	MaxConnsPerHost:     DefaultMaxConnsPerHost,
	MaxIdleConnsPerHost: DefaultMaxConnsPerHost,
}

// New builds a Client scoped to one user's request: username and token are
// sent as X-SLURM-USER-NAME/X-SLURM-USER-TOKEN on every call. The
// underlying *http.Transport is shared across every Client.
func New(apiURL, apiVersion, username, token string, timeout time.Duration) *Client {
	return &Client{
		apiURL:     apiURL,
		apiVersion: apiVersion,
		username:   username,
		token:      token,
		httpClient: &http.Client{Transport: sharedTransport, Timeout: timeout},
	}
}

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/slurm/v%s%s", c.apiURL, c.apiVersion, path)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-SLURM-USER-NAME", c.username)
	req.Header.Set("X-SLURM-USER-TOKEN", c.token)
	return req, nil
}

// do issues req and decodes a JSON response body into out (if non-nil),
// mapping non-200 responses to SchedulerBackendError (502).
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return trace.ConnectionProblem(err, "calling SLURM REST API")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return trace.Wrap(err)
	}

	if resp.StatusCode != http.StatusOK {
		return trace.Wrap(&backendError{status: resp.StatusCode, message: string(body)})
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return trace.Wrap(err, "decoding SLURM REST response")
	}
	return nil
}

type backendError struct {
	status  int
	message string
}

func (e *backendError) Error() string {
	return fmt.Sprintf("unexpected SLURM API response: status=%d message=%s", e.status, e.message)
}
func (e *backendError) OrigError() error { return e }

// IsConnectionProblemError makes trace.IsConnectionProblem match it, so a
// non-200 scheduler response maps to 502.
func (e *backendError) IsConnectionProblemError() bool { return true }

// Ping calls the scheduler's /ping endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/ping", nil)
	if err != nil {
		return trace.Wrap(err)
	}
	return c.do(req, nil)
}

// CancelJob issues a DELETE against the job endpoint.
func (c *Client) CancelJob(ctx context.Context, jobID int64) error {
	req, err := c.newRequest(ctx, http.MethodDelete, fmt.Sprintf("/job/%d", jobID), nil)
	if err != nil {
		return trace.Wrap(err)
	}
	return c.do(req, nil)
}

// AttachCommand is not meaningful over the REST transport: interactive
// attach always goes over the user's own SSH client, so the REST client
// reports it isn't supported by this transport.
func (c *Client) AttachCommand(jobID int64, entrypoint string) (string, error) {
	return "", trace.NotImplemented("attach is not available over the SLURM REST backend")
}
