package mediator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eth-cscs/firecrest-v2/internal/apierr"
	"github.com/eth-cscs/firecrest-v2/internal/model"
)

func TestGateNoSnapshotYetAllowsThrough(t *testing.T) {
	cluster := &model.Cluster{Name: "daint"}
	require.NoError(t, Gate(cluster, model.ServiceScheduler))
}

func TestGateHealthyServicePasses(t *testing.T) {
	cluster := &model.Cluster{Name: "daint"}
	cluster.SetHealth(&model.HealthSnapshot{Services: map[model.ServiceType]model.HealthResult{
		model.ServiceScheduler: {ServiceType: model.ServiceScheduler, Healthy: true},
	}})
	require.NoError(t, Gate(cluster, model.ServiceScheduler))
}

func TestGateUnhealthyServiceBlocks(t *testing.T) {
	cluster := &model.Cluster{Name: "daint"}
	cluster.SetHealth(&model.HealthSnapshot{Services: map[model.ServiceType]model.HealthResult{
		model.ServiceScheduler: {ServiceType: model.ServiceScheduler, Healthy: false, Message: "sbatch timed out"},
	}})
	err := Gate(cluster, model.ServiceScheduler)
	require.Error(t, err)
	require.Contains(t, err.Error(), "sbatch timed out")
	require.True(t, apierr.IsServiceUnavailable(err))
	require.Equal(t, 503, apierr.ToHTTPStatus(err))
}

func TestGateUnprobedServiceOnCurrentSnapshotPasses(t *testing.T) {
	cluster := &model.Cluster{Name: "daint"}
	cluster.SetHealth(&model.HealthSnapshot{Services: map[model.ServiceType]model.HealthResult{
		model.ServiceScheduler: {ServiceType: model.ServiceScheduler, Healthy: true},
	}})
	require.NoError(t, Gate(cluster, model.ServiceS3))
}
