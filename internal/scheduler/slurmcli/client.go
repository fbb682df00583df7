// Package slurmcli implements scheduler.Client against SLURM's CLI tools
// (sbatch, sacct, scontrol, sinfo, scancel) invoked over a caller's SSH
// session, for clusters whose SLURM REST daemon (slurmrestd) isn't
// reachable. Each command follows the fsops.Command value-object idiom
// already used for filesystem operations.
package slurmcli

import (
	"context"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/eth-cscs/firecrest-v2/internal/sshpool"
)

var log = logrus.WithField(trace.Component, "slurmcli")

// Client implements scheduler.Client by running SLURM CLI tools over a
// pooled SSH connection scoped to one (cluster, user) pair.
type Client struct {
	pool     *sshpool.Pool
	username string
	token    string
}

// New builds a Client bound to the caller's identity; every call runs its
// CLI command as that user over the pool's SSH connection.
func New(pool *sshpool.Pool, username, token string) *Client {
	return &Client{pool: pool, username: username, token: token}
}

func (c *Client) withClient(ctx context.Context, fn func(*sshpool.Client) error) error {
	return c.pool.WithClient(ctx, c.username, c.token, fn)
}

// Ping runs `scontrol ping --json` and succeeds if every reported node
// responded.
func (c *Client) Ping(ctx context.Context) error {
	var result any
	err := c.withClient(ctx, func(client *sshpool.Client) error {
		res, err := client.Execute(ctx, &scontrolPingCommand{}, nil)
		result = res
		return err
	})
	if err != nil {
		return trace.Wrap(err)
	}
	pings, ok := result.([]pingResult)
	if !ok || len(pings) == 0 {
		return trace.ConnectionProblem(nil, "scontrol ping returned no controllers")
	}
	for _, p := range pings {
		if !p.Pinged {
			return trace.ConnectionProblem(nil, "SLURM controller %s did not respond to ping", p.Hostname)
		}
	}
	return nil
}

// CancelJob runs `scancel <job_id>`.
func (c *Client) CancelJob(ctx context.Context, jobID int64) error {
	return c.withClient(ctx, func(client *sshpool.Client) error {
		_, err := client.Execute(ctx, &scancelCommand{jobID: jobID}, nil)
		return err
	})
}

// AttachCommand returns the `sattach` invocation for a running job's first
// step, matching the REST backend's contract that attach always runs over
// the caller's own SSH client rather than this Client.
func (c *Client) AttachCommand(jobID int64, entrypoint string) (string, error) {
	return formatAttachCommand(jobID, entrypoint), nil
}
