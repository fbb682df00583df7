package mediator

import (
	"context"

	"github.com/gravitational/trace"

	"github.com/eth-cscs/firecrest-v2/internal/model"
)

// Compute is the mediator surface backing `/compute/{system}/jobs*`.
type Compute struct {
	registry *Registry
	sched    *SchedulerFactory
}

func NewCompute(registry *Registry, sched *SchedulerFactory) *Compute {
	return &Compute{registry: registry, sched: sched}
}

// resolve runs the common system-lookup + availability-gate sequence every
// compute operation needs before dispatching to the scheduler client.
func (c *Compute) resolve(system string) (*model.Cluster, error) {
	cluster, err := c.registry.Resolve(system)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if err := Gate(cluster, model.ServiceScheduler); err != nil {
		return nil, err
	}
	return cluster, nil
}

func (c *Compute) SubmitJob(ctx context.Context, system, username, accessToken string, desc model.JobDescription) (int64, error) {
	cluster, err := c.resolve(system)
	if err != nil {
		return 0, err
	}
	jobID, err := c.sched.For(cluster, username, accessToken).SubmitJob(ctx, desc)
	return jobID, trace.Wrap(err)
}

func (c *Compute) GetJobs(ctx context.Context, system, username, accessToken string, allUsers bool) ([]model.Job, error) {
	cluster, err := c.resolve(system)
	if err != nil {
		return nil, err
	}
	jobs, err := c.sched.For(cluster, username, accessToken).GetJobs(ctx, allUsers)
	return jobs, trace.Wrap(err)
}

func (c *Compute) GetJob(ctx context.Context, system, username, accessToken string, jobID int64) (*model.Job, error) {
	cluster, err := c.resolve(system)
	if err != nil {
		return nil, err
	}
	job, err := c.sched.For(cluster, username, accessToken).GetJob(ctx, jobID)
	return job, trace.Wrap(err)
}

func (c *Compute) GetJobMetadata(ctx context.Context, system, username, accessToken string, jobID int64) (*model.JobMetadata, error) {
	cluster, err := c.resolve(system)
	if err != nil {
		return nil, err
	}
	meta, err := c.sched.For(cluster, username, accessToken).GetJobMetadata(ctx, jobID)
	return meta, trace.Wrap(err)
}

func (c *Compute) CancelJob(ctx context.Context, system, username, accessToken string, jobID int64) error {
	cluster, err := c.resolve(system)
	if err != nil {
		return err
	}
	return trace.Wrap(c.sched.For(cluster, username, accessToken).CancelJob(ctx, jobID))
}

// AttachCommand resolves the remote command line to run over the caller's
// own SSH client for a WebSocket attach session; internal/attach.Bridge
// executes it.
func (c *Compute) AttachCommand(system, username, accessToken string, jobID int64, entrypoint string) (string, error) {
	cluster, err := c.resolve(system)
	if err != nil {
		return "", err
	}
	cmd, err := c.sched.For(cluster, username, accessToken).AttachCommand(jobID, entrypoint)
	return cmd, trace.Wrap(err)
}

func (c *Compute) Nodes(ctx context.Context, system, username, accessToken string) ([]model.Node, error) {
	cluster, err := c.resolve(system)
	if err != nil {
		return nil, err
	}
	nodes, err := c.sched.For(cluster, username, accessToken).Nodes(ctx)
	return nodes, trace.Wrap(err)
}

func (c *Compute) Partitions(ctx context.Context, system, username, accessToken string) ([]model.Partition, error) {
	cluster, err := c.resolve(system)
	if err != nil {
		return nil, err
	}
	partitions, err := c.sched.For(cluster, username, accessToken).Partitions(ctx)
	return partitions, trace.Wrap(err)
}

func (c *Compute) Reservations(ctx context.Context, system, username, accessToken string) ([]model.Reservation, error) {
	cluster, err := c.resolve(system)
	if err != nil {
		return nil, err
	}
	reservations, err := c.sched.For(cluster, username, accessToken).Reservations(ctx)
	return reservations, trace.Wrap(err)
}
