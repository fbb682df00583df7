// Package mediator resolves the `{system}` path segment to a *model.Cluster,
// builds the per-request scheduler client and data-transfer methods bound
// to the caller's identity, runs the availability gate, and shapes backend
// results/errors the way internal/gateway's handlers expect: the request
// context resolves dependencies up front so the handler itself stays thin.
package mediator

import (
	"github.com/eth-cscs/firecrest-v2/internal/model"
	"github.com/eth-cscs/firecrest-v2/internal/scheduler"
	"github.com/eth-cscs/firecrest-v2/internal/scheduler/pbscli"
	"github.com/eth-cscs/firecrest-v2/internal/scheduler/slurmcli"
	"github.com/eth-cscs/firecrest-v2/internal/scheduler/slurmrest"
	"github.com/eth-cscs/firecrest-v2/internal/sshpool"
)

// SchedulerFactory builds the scheduler.Client for one cluster bound to one
// caller's identity, picking the concrete backend from the cluster's
// configured (Type, Impl) pair.
type SchedulerFactory struct {
	pools map[string]*sshpool.Pool
}

// NewSchedulerFactory builds a factory over one SSH pool per cluster name,
// the set the gateway's startup wiring creates from Settings.Clusters.
func NewSchedulerFactory(pools map[string]*sshpool.Pool) *SchedulerFactory {
	return &SchedulerFactory{pools: pools}
}

// For returns the scheduler client cluster exposes for username/accessToken.
func (f *SchedulerFactory) For(cluster *model.Cluster, username, accessToken string) scheduler.Client {
	sched := cluster.Scheduler
	switch {
	case sched.Impl == model.SchedulerImplREST:
		return slurmrest.New(sched.APIURL, sched.APIVersion, username, accessToken, sched.Timeout)
	case sched.Type == model.SchedulerPBS:
		return pbscli.New(f.pools[cluster.Name], username, accessToken)
	default:
		return slurmcli.New(f.pools[cluster.Name], username, accessToken)
	}
}

// clusterResolver adapts SchedulerFactory to scheduler.Resolver for one
// fixed cluster, so a transfer.Method built once at startup can still build
// a client bound to whichever caller's request it is currently serving.
type clusterResolver struct {
	factory *SchedulerFactory
	cluster *model.Cluster
}

func (r clusterResolver) For(username, accessToken string) scheduler.Client {
	return r.factory.For(r.cluster, username, accessToken)
}

// Resolver returns a scheduler.Resolver bound to cluster, for wiring
// transfer.Method implementations that defer client construction to
// request time.
func (f *SchedulerFactory) Resolver(cluster *model.Cluster) scheduler.Resolver {
	return clusterResolver{factory: f, cluster: cluster}
}
