// Package pbscli implements scheduler.Client against PBS Professional /
// OpenPBS's CLI tools (qsub, qstat, pbsnodes, qdel) invoked over a caller's
// SSH session, parsing their text/JSON output with plain Go parsing
// functions.
package pbscli

import (
	"context"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/eth-cscs/firecrest-v2/internal/sshpool"
)

var log = logrus.WithField(trace.Component, "pbscli")

// Client implements scheduler.Client by running PBS CLI tools over a pooled
// SSH connection scoped to one (cluster, user) pair.
type Client struct {
	pool     *sshpool.Pool
	username string
	token    string
}

// New builds a Client bound to the caller's identity.
func New(pool *sshpool.Pool, username, token string) *Client {
	return &Client{pool: pool, username: username, token: token}
}

func (c *Client) withClient(ctx context.Context, fn func(*sshpool.Client) error) error {
	return c.pool.WithClient(ctx, c.username, c.token, fn)
}

// AttachCommand: PBS has no equivalent to SLURM's srun-based job-step
// overlap, so interactive attach isn't supported; PBS returns
// NotImplemented rather than simulating attach.
func (c *Client) AttachCommand(jobID int64, entrypoint string) (string, error) {
	return "", trace.NotImplemented("interactive attach is not supported by the PBS backend")
}
