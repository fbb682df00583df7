package mediator

import (
	"github.com/eth-cscs/firecrest-v2/internal/apierr"
	"github.com/eth-cscs/firecrest-v2/internal/model"
)

// Gate checks a cluster's cached health snapshot before a handler is let
// through to issue any SSH/scheduler call: a service flagged unhealthy
// returns 503 with the prober's cached message and the handler never
// touches the network.
func Gate(cluster *model.Cluster, service model.ServiceType) error {
	snap := cluster.Health()
	if snap == nil {
		// No probe cycle has completed yet; treat as available rather than
		// blocking every request during startup.
		return nil
	}
	result, ok := snap.Services[service]
	if !ok || result.Healthy {
		return nil
	}
	return apierr.ServiceUnavailable("%s", result.Message)
}
