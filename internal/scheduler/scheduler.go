// Package scheduler defines the backend-agnostic Scheduler Client contract
// and the shared normalized model every implementation (SLURM-REST,
// SLURM-CLI, PBS-CLI) produces: one interface, multiple transports.
package scheduler

import (
	"context"

	"github.com/eth-cscs/firecrest-v2/internal/model"
)

// Client is the interface every scheduler backend implements.
type Client interface {
	SubmitJob(ctx context.Context, desc model.JobDescription) (jobID int64, err error)
	GetJob(ctx context.Context, jobID int64) (*model.Job, error)
	GetJobs(ctx context.Context, allUsers bool) ([]model.Job, error)
	GetJobMetadata(ctx context.Context, jobID int64) (*model.JobMetadata, error)
	CancelJob(ctx context.Context, jobID int64) error
	Nodes(ctx context.Context) ([]model.Node, error)
	Partitions(ctx context.Context) ([]model.Partition, error)
	Reservations(ctx context.Context) ([]model.Reservation, error)
	Ping(ctx context.Context) error
	// AttachCommand returns the shell command line that, when run over the
	// user's SSH client, attaches to a running job's shell. PBS returns
	// trace.NotImplemented since it has no equivalent mechanism.
	AttachCommand(jobID int64, entrypoint string) (string, error)
}

// Resolver builds the Client bound to one caller's identity, letting a
// long-lived collaborator (a transfer.Method built once at startup) defer
// client construction to request time instead of binding to a single user.
type Resolver interface {
	For(username, accessToken string) Client
}
