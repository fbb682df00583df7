package mediator

import (
	"github.com/gravitational/trace"

	"github.com/eth-cscs/firecrest-v2/internal/model"
)

// Registry resolves a `{system}` URL path segment to its *model.Cluster.
type Registry struct {
	clusters map[string]*model.Cluster
	ordered  []*model.Cluster
}

// NewRegistry indexes clusters by name.
func NewRegistry(clusters []*model.Cluster) *Registry {
	r := &Registry{clusters: make(map[string]*model.Cluster, len(clusters)), ordered: clusters}
	for _, c := range clusters {
		r.clusters[c.Name] = c
	}
	return r
}

// Resolve returns the cluster named by system, or NotFound.
func (r *Registry) Resolve(system string) (*model.Cluster, error) {
	c, ok := r.clusters[system]
	if !ok {
		return nil, trace.NotFound("no such system %q", system)
	}
	return c, nil
}

// All returns every registered cluster, in configuration order, for
// GET /status/systems.
func (r *Registry) All() []*model.Cluster {
	return r.ordered
}
